package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"weakapi/internal/auth"
	"weakapi/internal/config"
	"weakapi/internal/model"
	"weakapi/internal/repository"
)

// FlagNoteTitle is the title of the admin note holding the flag.
const FlagNoteTitle = "flag"

// SeedOptions describes the admin account to provision.
type SeedOptions struct {
	AdminUsername string
	// AdminPassword is generated when empty.
	AdminPassword string
	Flag          string
}

// SeedResult reports what Seed did.
type SeedResult struct {
	AdminID           string
	AdminCreated      bool
	FlagNoteCreated   bool
	GeneratedPassword string
}

// Seeder provisions the admin account and its flag note. Running it twice
// leaves the data unchanged.
type Seeder struct {
	users  repository.UserRepository
	notes  repository.NoteRepository
	hasher *auth.PasswordHasher
	policy config.Policy
	log    logrus.FieldLogger
}

// NewSeeder creates a new seeder.
func NewSeeder(
	users repository.UserRepository,
	notes repository.NoteRepository,
	hasher *auth.PasswordHasher,
	policy config.Policy,
	log logrus.FieldLogger,
) *Seeder {
	return &Seeder{
		users:  users,
		notes:  notes,
		hasher: hasher,
		policy: policy,
		log:    log,
	}
}

// Seed creates the admin user and flag note if they are missing.
func (s *Seeder) Seed(ctx context.Context, opts SeedOptions) (*SeedResult, error) {
	username := NormalizeUsername(s.policy, opts.AdminUsername)
	if username == "" {
		return nil, errors.New("admin username must not be empty")
	}

	result := &SeedResult{}
	admin, err := s.users.FindByUsername(ctx, username)
	switch {
	case err == nil:
		if !admin.IsAdmin {
			return nil, fmt.Errorf("user %q exists but is not an admin", username)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		password := opts.AdminPassword
		if password == "" {
			if password, err = randomPassword(); err != nil {
				return nil, err
			}
			result.GeneratedPassword = password
		}

		hashed, err := s.hasher.Hash(password)
		if err != nil {
			return nil, err
		}
		admin = &model.User{Username: username, Password: hashed, IsAdmin: true}
		if err := s.users.Create(ctx, admin); err != nil {
			return nil, fmt.Errorf("create admin: %w", err)
		}
		result.AdminCreated = true
	default:
		return nil, fmt.Errorf("find admin: %w", err)
	}
	result.AdminID = admin.ID.String()

	existing, err := s.notes.ListByUser(ctx, admin.ID)
	if err != nil {
		return nil, fmt.Errorf("list admin notes: %w", err)
	}
	for _, n := range existing {
		if n.Title == FlagNoteTitle {
			return result, nil
		}
	}

	note := &model.Note{Title: FlagNoteTitle, Description: opts.Flag, UserID: admin.ID}
	if err := s.notes.Create(ctx, note); err != nil {
		return nil, fmt.Errorf("create flag note: %w", err)
	}
	result.FlagNoteCreated = true

	s.log.WithFields(logrus.Fields{
		"admin_id": admin.ID,
		"note_id":  note.ID,
	}).Info("flag note created")
	return result, nil
}

func randomPassword() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
