package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ByAncort/JwtAuth/internal/events"
	"github.com/ByAncort/JwtAuth/internal/store"
	"github.com/ByAncort/JwtAuth/internal/token"
	"github.com/ByAncort/JwtAuth/types"
	"github.com/rs/zerolog"
)

// DefaultRole is assigned to every freshly registered user.
const DefaultRole = "ROLE_USER"

var (
	// ErrUserNotFound means no user exists for the given username. Handlers
	// must present it identically to ErrInvalidCredentials.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials means the password did not match or the account
	// is disabled.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUsernameTaken means the username is already registered.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrEmailTaken means the email is already registered.
	ErrEmailTaken = errors.New("email already in use")
	// ErrRoleNotConfigured means the default role row is missing. This is a
	// deployment fault, not a user error.
	ErrRoleNotConfigured = errors.New("default role not configured")
)

// UserStore defines the persistence operations the auth flows need.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (types.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, user types.User, roleIDs []int) (types.User, error)
}

// RoleStore resolves roles by name.
type RoleStore interface {
	GetByName(ctx context.Context, name string) (types.Role, error)
}

// EventPublisher emits auth activity events. Publishing is best-effort and
// never fails a flow.
type EventPublisher interface {
	Publish(ctx context.Context, eventType, username string) error
}

// AuthResult is the response envelope for signin and signup.
type AuthResult struct {
	Token      string    `json:"token"`
	IssuedAt   time.Time `json:"issuedAt"`
	Expiration time.Time `json:"expiration"`
}

// AuthService orchestrates credential verification, registration and token
// minting. It is stateless; every method may run concurrently.
type AuthService struct {
	users     UserStore
	roles     RoleStore
	hasher    PasswordHasher
	codec     *token.Codec
	publisher EventPublisher
	logger    zerolog.Logger
}

func NewAuthService(
	users UserStore,
	roles RoleStore,
	hasher PasswordHasher,
	codec *token.Codec,
	publisher EventPublisher,
	logger zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		roles:     roles,
		hasher:    hasher,
		codec:     codec,
		publisher: publisher,
		logger:    logger,
	}
}

// Login verifies the credentials and mints a bearer token.
func (s *AuthService) Login(ctx context.Context, username, password string) (AuthResult, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return AuthResult{}, ErrUserNotFound
		}
		return AuthResult{}, fmt.Errorf("look up user: %w", err)
	}

	if !user.Enabled || !s.hasher.Verify(user.PasswordHash, password) {
		return AuthResult{}, ErrInvalidCredentials
	}

	result, err := s.mint(user.Username)
	if err != nil {
		return AuthResult{}, err
	}

	s.emit(ctx, events.TypeSignin, user.Username)
	return result, nil
}

// Register creates a new user with the default role and mints a bearer token.
// The user row and its role assignment become visible atomically or not at
// all; no token is returned when persistence fails.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (AuthResult, error) {
	if taken, err := s.users.ExistsByUsername(ctx, username); err != nil {
		return AuthResult{}, fmt.Errorf("check username: %w", err)
	} else if taken {
		return AuthResult{}, ErrUsernameTaken
	}

	if taken, err := s.users.ExistsByEmail(ctx, email); err != nil {
		return AuthResult{}, fmt.Errorf("check email: %w", err)
	} else if taken {
		return AuthResult{}, ErrEmailTaken
	}

	role, err := s.roles.GetByName(ctx, DefaultRole)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return AuthResult{}, ErrRoleNotConfigured
		}
		return AuthResult{}, fmt.Errorf("resolve default role: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}

	user := types.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Enabled:      true,
	}
	if _, err := s.users.Create(ctx, user, []int{role.ID}); err != nil {
		// The pre-insert checks can race with a concurrent registration;
		// the store reports the losing insert as a uniqueness error.
		switch {
		case errors.Is(err, store.ErrUsernameTaken):
			return AuthResult{}, ErrUsernameTaken
		case errors.Is(err, store.ErrEmailTaken):
			return AuthResult{}, ErrEmailTaken
		}
		return AuthResult{}, fmt.Errorf("create user: %w", err)
	}

	result, err := s.mint(username)
	if err != nil {
		return AuthResult{}, err
	}

	s.emit(ctx, events.TypeSignup, username)
	return result, nil
}

func (s *AuthService) mint(username string) (AuthResult, error) {
	signed, claims, err := s.codec.Mint(username, nil)
	if err != nil {
		return AuthResult{}, fmt.Errorf("mint token: %w", err)
	}
	return AuthResult{
		Token:      signed,
		IssuedAt:   claims.IssuedAt,
		Expiration: claims.ExpiresAt,
	}, nil
}

func (s *AuthService) emit(ctx context.Context, eventType, username string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, eventType, username); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Str("username", username).
			Msg("failed to publish auth event")
	}
}
