package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"smartcrop/api/internal/apperr"
	"smartcrop/api/internal/ids"
	"smartcrop/api/internal/models"
	"smartcrop/api/internal/repository"
	"smartcrop/api/internal/security"
)

const (
	minUsernameLen = 3
	minPasswordLen = 6

	msgDuplicateUser = "Username or email already in use"
)

// UserStore is the slice of the credential store the auth flow needs.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByUsername(ctx context.Context, username string) (models.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	GetByID(ctx context.Context, id string) (models.User, error)
}

type AuthService struct {
	users      UserStore
	secret     string
	sessionTTL time.Duration
	log        zerolog.Logger
}

func NewAuthService(users UserStore, secret string, sessionTTL time.Duration, log zerolog.Logger) *AuthService {
	return &AuthService{
		users:      users,
		secret:     secret,
		sessionTTL: sessionTTL,
		log:        log,
	}
}

type SignupInput struct {
	Username string
	Email    string
	Password string
}

type LoginInput struct {
	Username string
	Password string
}

type AuthResult struct {
	Token string
	User  models.User
}

func (s *AuthService) SessionTTL() time.Duration { return s.sessionTTL }

func (s *AuthService) Signup(ctx context.Context, input SignupInput) (AuthResult, error) {
	input.Username = strings.TrimSpace(input.Username)

	verr := &apperr.ValidationError{}
	if utf8.RuneCountInString(input.Username) < minUsernameLen {
		verr.Add("username", "Username must be at least 3 chars")
	}
	email, ok := normalizeEmail(input.Email)
	if !ok {
		verr.Add("email", "Valid email required")
	}
	if utf8.RuneCountInString(input.Password) < minPasswordLen {
		verr.Add("password", "Password must be at least 6 chars")
	}
	if err := verr.OrNil(); err != nil {
		return AuthResult{}, err
	}

	exists, err := s.users.ExistsByUsernameOrEmail(ctx, input.Username, email)
	if err != nil {
		return AuthResult{}, err
	}
	if exists {
		return AuthResult{}, apperr.Conflict(msgDuplicateUser)
	}

	hash, err := security.HashPassword(input.Password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		ID:           ids.New(),
		Username:     input.Username,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserDuplicate) {
			return AuthResult{}, apperr.Conflict(msgDuplicateUser)
		}
		return AuthResult{}, err
	}

	s.log.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("user signed up")

	return s.issue(user)
}

// Login answers unknown usernames and wrong passwords with the same error.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	input.Username = strings.TrimSpace(input.Username)

	verr := &apperr.ValidationError{}
	if input.Username == "" {
		verr.Add("username", "Username is required")
	}
	if input.Password == "" {
		verr.Add("password", "Password is required")
	}
	if err := verr.OrNil(); err != nil {
		return AuthResult{}, err
	}

	user, err := s.users.FindByUsername(ctx, input.Username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, apperr.Auth(apperr.ErrInvalidCredentials)
		}
		return AuthResult{}, err
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("stored password hash unreadable")
		return AuthResult{}, apperr.Auth(apperr.ErrInvalidCredentials)
	}
	if !ok {
		return AuthResult{}, apperr.Auth(apperr.ErrInvalidCredentials)
	}

	return s.issue(user)
}

// CurrentUser resolves a session token to its user.
func (s *AuthService) CurrentUser(ctx context.Context, token string) (models.User, error) {
	claims, err := security.ParseSessionToken(token, s.secret)
	if err != nil {
		return models.User{}, apperr.Auth(apperr.ErrUnauthorized)
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, apperr.Auth(apperr.ErrUnauthorized)
		}
		return models.User{}, err
	}
	return user, nil
}

func (s *AuthService) issue(user models.User) (AuthResult, error) {
	token, err := security.GenerateSessionToken(s.secret, user.ID, user.Username, s.sessionTTL)
	if err != nil {
		return AuthResult{}, fmt.Errorf("sign session: %w", err)
	}
	return AuthResult{Token: token, User: user}, nil
}

// normalizeEmail accepts a bare address and lower-cases it.
func normalizeEmail(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw || addr.Name != "" {
		return "", false
	}
	at := strings.LastIndex(addr.Address, "@")
	if at <= 0 || !strings.Contains(addr.Address[at+1:], ".") {
		return "", false
	}
	return strings.ToLower(addr.Address), true
}
