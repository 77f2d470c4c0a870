package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"weakapi/internal/auth"
	"weakapi/internal/cache"
	"weakapi/internal/config"
	apperrors "weakapi/internal/errors"
	"weakapi/internal/metrics"
	"weakapi/internal/model"
	"weakapi/internal/repository"
)

const (
	userCacheTTL      = time.Minute
	userLookupTimeout = 5 * time.Second
)

// AccountService handles signup, login and acting-user lookups.
type AccountService interface {
	// Signup creates an account. isAdmin is only honoured when the policy
	// trusts the client supplied flag.
	Signup(ctx context.Context, username, password string, isAdmin *bool) (*model.User, error)
	// Login returns a bearer token for valid credentials.
	Login(ctx context.Context, username, password string) (string, error)
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	// DeleteUser removes the account together with its notes.
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

type accountService struct {
	users   repository.UserRepository
	hasher  *auth.PasswordHasher
	tokens  *auth.JWTService
	cache   *cache.Client
	metrics *metrics.Metrics
	policy  config.Policy
	log     logrus.FieldLogger

	// collapses concurrent cache misses for the same user
	lookups singleflight.Group
}

// NewAccountService creates a new account service.
func NewAccountService(
	users repository.UserRepository,
	hasher *auth.PasswordHasher,
	tokens *auth.JWTService,
	cache *cache.Client,
	metrics *metrics.Metrics,
	policy config.Policy,
	log logrus.FieldLogger,
) AccountService {
	return &accountService{
		users:   users,
		hasher:  hasher,
		tokens:  tokens,
		cache:   cache,
		metrics: metrics,
		policy:  policy,
		log:     log,
	}
}

func (s *accountService) cacheKey(id uuid.UUID) string {
	return fmt.Sprintf("user:%s", id.String())
}

// NormalizeUsername applies the username case policy.
func NormalizeUsername(policy config.Policy, username string) string {
	if policy.CaseInsensitiveUsernames {
		return strings.ToLower(username)
	}
	return username
}

func (s *accountService) Signup(ctx context.Context, username, password string, isAdmin *bool) (*model.User, error) {
	username = NormalizeUsername(s.policy, username)
	if strings.TrimSpace(username) == "" {
		return nil, apperrors.WithMessage(apperrors.ErrValidation, "username must not be empty")
	}

	admin := false
	if s.policy.TrustSignupAdminFlag && isAdmin != nil {
		admin = *isAdmin
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username: username,
		Password: hashed,
		IsAdmin:  admin,
	}

	err = s.users.WithTransaction(ctx, func(ctx context.Context, repo repository.UserRepository) error {
		_, err := repo.FindByUsername(ctx, username)
		if err == nil {
			return apperrors.ErrUsernameTaken
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.Persistence(err)
		}

		if err := repo.Create(ctx, user); err != nil {
			// lost a race with a concurrent signup
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperrors.ErrUsernameTaken
			}
			return apperrors.Persistence(err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrPersistence) {
			s.log.WithError(err).Error("signup failed")
		}
		return nil, err
	}

	s.metrics.Signup(admin)
	s.log.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"is_admin": admin,
	}).Info("account created")
	return user, nil
}

func (s *accountService) Login(ctx context.Context, username, password string) (string, error) {
	username = NormalizeUsername(s.policy, username)

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.hasher.VerifyMissing(password)
			return "", apperrors.ErrInvalidCredentials
		}
		s.log.WithError(err).Error("login lookup failed")
		return "", apperrors.Persistence(err)
	}

	if !s.hasher.Verify(password, user.Password) {
		return "", apperrors.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// GetUser returns the user without its password hash. Results are cached
// briefly since every authenticated request performs this lookup.
func (s *accountService) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var cached model.User
	if s.cache.GetJSON(ctx, s.cacheKey(id), &cached) {
		return &cached, nil
	}

	v, err, _ := s.lookups.Do(id.String(), func() (interface{}, error) {
		// the flight is shared, so one caller going away must not fail the rest
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), userLookupTimeout)
		defer cancel()

		user, err := s.users.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperrors.ErrUserNotFound
			}
			return nil, apperrors.Persistence(err)
		}
		user.Password = ""

		s.cache.SetJSON(ctx, s.cacheKey(id), user, userCacheTTL)
		return user, nil
	})
	if err != nil {
		return nil, err
	}

	// callers sharing a flight must not share the pointer
	user := *v.(*model.User)
	return &user, nil
}

func (s *accountService) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrUserNotFound
		}
		s.log.WithError(err).WithField("user_id", id).Error("delete user failed")
		return apperrors.Persistence(err)
	}

	if err := s.cache.Delete(ctx, s.cacheKey(id)); err != nil {
		s.log.WithError(err).WithField("user_id", id).
			Warn("cached user not invalidated, stale entry lives until ttl")
	}
	s.log.WithField("user_id", id).Info("account deleted")
	return nil
}
