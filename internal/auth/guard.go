package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	apperrors "weakapi/internal/errors"
	"weakapi/internal/model"
)

const bearerScheme = "Bearer"

// UserLookup resolves a user id to its current record.
type UserLookup interface {
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
}

// Guard turns a bearer header into an acting user and holds the
// per-operation access rules for notes.
type Guard struct {
	tokens *JWTService
	users  UserLookup
}

// NewGuard creates a guard backed by the token service and user lookup.
func NewGuard(tokens *JWTService, users UserLookup) *Guard {
	return &Guard{tokens: tokens, users: users}
}

// Authenticate extracts the bearer token from an Authorization header value
// and verifies it.
func (g *Guard) Authenticate(rawHeader string) (*Claims, error) {
	rawHeader = strings.TrimSpace(rawHeader)
	if rawHeader == "" {
		return nil, apperrors.ErrNotAuthenticated
	}

	scheme, token, found := strings.Cut(rawHeader, " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return nil, apperrors.ErrNotAuthenticated
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperrors.ErrNotAuthenticated
	}

	return g.tokens.Verify(token)
}

// LoadActingUser fetches the user named by claims. Tokens outlive their
// users, so a missing row is reported as ErrUserNotFound.
func (g *Guard) LoadActingUser(ctx context.Context, claims *Claims) (*model.User, error) {
	user, err := g.users.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, apperrors.ErrUserNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("load acting user: %w", err)
	}
	return user, nil
}

// ResolveNotesOwner picks whose notes a list request reads. With override
// allowed the caller supplied id is trusted as is.
func ResolveNotesOwner(acting *model.User, requested *uuid.UUID, allowOverride bool) uuid.UUID {
	if allowOverride && requested != nil {
		return *requested
	}
	return acting.ID
}

// AuthorizeNoteView applies the view rule. Admin notes are hidden from
// non-admins; everything else is visible to any authenticated caller
// unless strict is set.
func AuthorizeNoteView(acting *model.User, note *model.Note, owner *model.User, strict bool) error {
	if strict && note.UserID != acting.ID {
		return apperrors.ErrNoteNotFound
	}
	if owner != nil && owner.IsAdmin && !acting.IsAdmin {
		return apperrors.ErrUnauthorized
	}
	return nil
}
