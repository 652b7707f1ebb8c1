package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strconv"
	"strings"

	"github.com/sakif/matchday/internal/apperror"
	"github.com/sakif/matchday/internal/auth"
	"github.com/sakif/matchday/internal/model"
	"github.com/sakif/matchday/internal/repository"
)

const (
	MinPasswordLength = 6
	MaxPasswordLength = 72
)

// AuthService handles registration, sign-in and profile changes.
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT), PasswordService (bcrypt)
//
// DEPENDENCIES (injected via NewAuthService):
//   - users        repository.UserRepository  → read/write user records
//   - tokens       *auth.TokenService         → generate/validate JWTs
//   - passwords    *auth.PasswordService      → bcrypt hashing
//   - adminEmails  lower-cased addresses that are granted the admin flag
//   - logger       *slog.Logger               → structured logging
type AuthService struct {
	users       repository.UserRepository
	tokens      *auth.TokenService
	passwords   *auth.PasswordService
	adminEmails map[string]bool
	logger      *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	adminEmails []string,
	logger *slog.Logger,
) *AuthService {
	admins := make(map[string]bool, len(adminEmails))
	for _, e := range adminEmails {
		if e = normalizeEmail(e); e != "" {
			admins[e] = true
		}
	}
	return &AuthService{
		users:       users,
		tokens:      tokens,
		passwords:   passwords,
		adminEmails: admins,
		logger:      logger,
	}
}

// AuthResult bundles the user record and the issued JWT so the handler can
// set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// RegisterInput is the payload for creating an account.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// ProfileUpdate is a partial profile change. Nil fields are left unchanged.
type ProfileUpdate struct {
	Name     *string
	Email    *string
	Password *string
}

// Register creates an email/password account and signs it in.
// Duplicate emails yield apperror.ErrConflict.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	name, err := validateUserName(in.Name)
	if err != nil {
		return nil, err
	}
	email, err := validateEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		IsAdmin:      s.adminEmails[email],
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, &apperror.AppError{
				Err:     apperror.ErrConflict,
				Message: "an account with this email already exists",
				Field:   "email",
			}
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.Bool("admin", user.IsAdmin),
	)
	return s.issue(user)
}

// Login checks an email and password. Unknown emails and wrong passwords
// give the same unauthorized error.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperror.ValidationFailed("email", "email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("invalid email or password")
		}
		return nil, fmt.Errorf("service/auth: fetching user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			s.logger.Warn("failed login", slog.String("userID", user.ID))
			return nil, apperror.Unauthorized("invalid email or password")
		}
		return nil, fmt.Errorf("service/auth: verifying password: %w", err)
	}

	if err := s.promote(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return s.issue(user)
}

// LoginOrRegisterGitHub handles the GitHub OAuth callback.
//
// Lookup order:
//  1. an account already linked to the GitHub id
//  2. an account with the same email, which gets linked
//  3. a new account
//
// GitHub users with a hidden email get a noreply address so the email stays
// unique and non-empty.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil || gh.ID == 0 {
		return nil, fmt.Errorf("service/auth: GitHub user must not be empty")
	}

	user, err := s.users.GetByGitHubID(ctx, gh.ID)
	if err == nil {
		if err := s.promote(ctx, user); err != nil {
			return nil, err
		}
		s.logger.Info("user authenticated via GitHub", slog.String("userID", user.ID))
		return s.issue(user)
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: fetching user by GitHub id %d: %w", gh.ID, err)
	}

	email := normalizeEmail(gh.Email)
	if email == "" {
		email = strconv.FormatInt(gh.ID, 10) + "+" + strings.ToLower(gh.Login) + "@users.noreply.github.com"
	}

	githubID := gh.ID
	user, err = s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		user.GitHubID = &githubID
		user.IsAdmin = user.IsAdmin || s.adminEmails[email]
		if err := s.users.Update(ctx, user); err != nil {
			return nil, fmt.Errorf("service/auth: linking GitHub account: %w", err)
		}
		s.logger.Info("GitHub account linked", slog.String("userID", user.ID))
	case errors.Is(err, apperror.ErrNotFound):
		name := gh.DisplayName()
		if len(name) > MaxUserNameLength {
			name = name[:MaxUserNameLength]
		}
		user = &model.User{
			Name:     name,
			Email:    email,
			GitHubID: &githubID,
			IsAdmin:  s.adminEmails[email],
		}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("service/auth: creating GitHub user: %w", err)
		}
		s.logger.Info("user registered via GitHub", slog.String("userID", user.ID))
	default:
		return nil, fmt.Errorf("service/auth: fetching user by email: %w", err)
	}

	return s.issue(user)
}

// GetUserByID returns the user for the given internal ID.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.Unauthorized("authentication required")
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// UpdateProfile changes the caller's name, email or password. A new password
// is hashed before it is stored.
func (s *AuthService) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*model.User, error) {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		name, err := validateUserName(*upd.Name)
		if err != nil {
			return nil, err
		}
		user.Name = name
	}
	if upd.Email != nil {
		email, err := validateEmail(*upd.Email)
		if err != nil {
			return nil, err
		}
		user.Email = email
	}
	if upd.Password != nil {
		if err := validatePassword(*upd.Password); err != nil {
			return nil, err
		}
		hash, err := s.passwords.Hash(*upd.Password)
		if err != nil {
			return nil, fmt.Errorf("service/auth: hashing password: %w", err)
		}
		user.PasswordHash = hash
	}

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, &apperror.AppError{
				Err:     apperror.ErrConflict,
				Message: "an account with this email already exists",
				Field:   "email",
			}
		}
		return nil, fmt.Errorf("service/auth: updating user %s: %w", id, err)
	}

	s.logger.Info("profile updated", slog.String("userID", user.ID))
	return user, nil
}

// ValidateToken validates a JWT string and returns the identity it encodes.
func (s *AuthService) ValidateToken(token string) (auth.Identity, error) {
	id, err := s.tokens.Validate(token)
	if err != nil {
		return auth.Identity{}, fmt.Errorf("service/auth: %w", err)
	}
	return id, nil
}

// TokenTTL is how long issued tokens stay valid. Handlers use it for the
// cookie lifetime.
func (s *AuthService) TokenTTL() int {
	return int(s.tokens.TTL().Seconds())
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(auth.Identity{UserID: user.ID, IsAdmin: user.IsAdmin})
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// promote grants the admin flag to users whose email was added to the admin
// list after they registered.
func (s *AuthService) promote(ctx context.Context, user *model.User) error {
	if user.IsAdmin || !s.adminEmails[user.Email] {
		return nil
	}
	user.IsAdmin = true
	if err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("service/auth: promoting user %s: %w", user.ID, err)
	}
	s.logger.Info("user promoted to admin", slog.String("userID", user.ID))
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", apperror.ValidationFailed("email", "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperror.ValidationFailed("email", "email is not a valid address")
	}
	return email, nil
}

func validateUserName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperror.ValidationFailed("name", "name is required")
	}
	if len(name) > MaxUserNameLength {
		return "", apperror.ValidationFailed("name", fmt.Sprintf("name must be at most %d characters", MaxUserNameLength))
	}
	return name, nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return apperror.ValidationFailed("password", fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > MaxPasswordLength {
		return apperror.ValidationFailed("password", fmt.Sprintf("password must be at most %d bytes", MaxPasswordLength))
	}
	return nil
}
