package auth

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"

	apperrors "weakapi/internal/errors"
)

// DefaultBcryptCost is used when the configured cost is out of range.
const DefaultBcryptCost = 10

// PasswordHasher hashes and verifies passwords with bcrypt.
type PasswordHasher struct {
	cost int

	dummyOnce sync.Once
	dummy     []byte
}

// NewPasswordHasher creates a hasher with the given bcrypt cost.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash returns a salted bcrypt hash of plaintext.
func (h *PasswordHasher) Hash(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err == bcrypt.ErrPasswordTooLong {
		return "", apperrors.WithMessage(apperrors.ErrValidation, "password must be at most 72 bytes")
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether plaintext matches hash. Mismatch and malformed
// hashes both yield false.
func (h *PasswordHasher) Verify(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// VerifyMissing spends the same bcrypt work as Verify and always reports
// false. Login calls it for unknown usernames so response time does not
// reveal which accounts exist.
func (h *PasswordHasher) VerifyMissing(plaintext string) bool {
	h.dummyOnce.Do(func() {
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte("weakapi:no-such-user"), h.cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plaintext))
	return false
}
