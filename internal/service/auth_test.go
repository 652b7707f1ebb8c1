package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sakif/matchday/internal/apperror"
	"github.com/sakif/matchday/internal/auth"
)

// newTestAuthService returns an AuthService over an in-memory store.
// admin@example.com is on the admin list.
func newTestAuthService(t *testing.T) (*AuthService, *memStore) {
	t.Helper()

	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	// Cost 4 is the bcrypt minimum.
	ps := auth.NewPasswordServiceForTest(4)

	store := newMemStore(true)
	return NewAuthService(store.Repos().Users, ts, ps, []string{" Admin@Example.com "}, discardLogger()), store
}

// =========================================================================
// Register TESTS
// =========================================================================

func TestRegister(t *testing.T) {
	svc, _ := newTestAuthService(t)

	result, err := svc.Register(context.Background(), RegisterInput{
		Name:     "Alice",
		Email:    "  Alice@Example.COM ",
		Password: "secret1",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if result.User.Email != "alice@example.com" {
		t.Errorf("Email = %q, want lower-cased", result.User.Email)
	}
	if result.User.PasswordHash == "" || result.User.PasswordHash == "secret1" {
		t.Error("password should be stored hashed")
	}
	if result.User.IsAdmin {
		t.Error("regular email should not be admin")
	}

	id, err := svc.ValidateToken(result.Token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if id.UserID != result.User.ID || id.IsAdmin {
		t.Errorf("token identity = %+v, want %s non-admin", id, result.User.ID)
	}
}

func TestRegister_AdminEmail(t *testing.T) {
	svc, _ := newTestAuthService(t)

	result, err := svc.Register(context.Background(), RegisterInput{Name: "Root", Email: "admin@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if !result.User.IsAdmin {
		t.Error("admin email should be granted admin")
	}
	id, _ := svc.ValidateToken(result.Token)
	if !id.IsAdmin {
		t.Error("admin token should carry the admin claim")
	}
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name  string
		in    RegisterInput
		field string
	}{
		{"no name", RegisterInput{Email: "a@example.com", Password: "secret1"}, "name"},
		{"bad email", RegisterInput{Name: "A", Email: "not-an-email", Password: "secret1"}, "email"},
		{"display-name email", RegisterInput{Name: "A", Email: "Alice <a@example.com>", Password: "secret1"}, "email"},
		{"short password", RegisterInput{Name: "A", Email: "a@example.com", Password: "12345"}, "password"},
		{"long password", RegisterInput{Name: "A", Email: "a@example.com", Password: strings.Repeat("x", 73)}, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestAuthService(t)
			_, err := svc.Register(context.Background(), tt.in)
			var appErr *apperror.AppError
			if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("Register() error = %v, want validation error", err)
			}
			if appErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", appErr.Field, tt.field)
			}
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, _ := newTestAuthService(t)
	in := RegisterInput{Name: "Alice", Email: "alice@example.com", Password: "secret1"}

	if _, err := svc.Register(context.Background(), in); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	in.Email = "ALICE@example.com"
	_, err := svc.Register(context.Background(), in)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("second Register() error = %v, want ErrConflict", err)
	}
}

// =========================================================================
// Login TESTS
// =========================================================================

func TestLogin(t *testing.T) {
	svc, _ := newTestAuthService(t)
	reg, err := svc.Register(context.Background(), RegisterInput{Name: "Alice", Email: "alice@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"correct", "Alice@example.com", "secret1", nil},
		{"wrong password", "alice@example.com", "secret2", apperror.ErrUnauthorized},
		{"unknown email", "bob@example.com", "secret1", apperror.ErrUnauthorized},
		{"missing password", "alice@example.com", "", apperror.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := svc.Login(context.Background(), tt.email, tt.password)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Login() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Login() error = %v", err)
			}
			if result.User.ID != reg.User.ID {
				t.Errorf("Login() user = %s, want %s", result.User.ID, reg.User.ID)
			}
		})
	}
}

func TestLogin_GitHubOnlyAccountHasNoPassword(t *testing.T) {
	svc, _ := newTestAuthService(t)
	if _, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 7, Login: "octo", Email: "octo@example.com"}); err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}

	_, err := svc.Login(context.Background(), "octo@example.com", "anything")
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("Login() error = %v, want ErrUnauthorized", err)
	}
}

// =========================================================================
// LoginOrRegisterGitHub TESTS
// =========================================================================

func TestLoginOrRegisterGitHub_NewUser(t *testing.T) {
	svc, _ := newTestAuthService(t)

	result, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{
		ID:    42,
		Login: "octocat",
		Name:  "The Octocat",
		Email: "OctoCat@GitHub.com",
	})
	if err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}
	if result.Token == "" {
		t.Fatal("LoginOrRegisterGitHub() returned empty Token")
	}
	if result.User.Name != "The Octocat" {
		t.Errorf("Name = %q, want %q", result.User.Name, "The Octocat")
	}
	if result.User.Email != "octocat@github.com" {
		t.Errorf("Email = %q, want lower-cased", result.User.Email)
	}
	if result.User.GitHubID == nil || *result.User.GitHubID != 42 {
		t.Errorf("GitHubID = %v, want 42", result.User.GitHubID)
	}
}

func TestLoginOrRegisterGitHub_ReturningUser(t *testing.T) {
	svc, _ := newTestAuthService(t)
	gh := &auth.GitHubUser{ID: 99, Login: "octo"}

	first, err := svc.LoginOrRegisterGitHub(context.Background(), gh)
	if err != nil {
		t.Fatalf("first login error: %v", err)
	}
	if !strings.HasSuffix(first.User.Email, "@users.noreply.github.com") {
		t.Errorf("hidden email fallback = %q", first.User.Email)
	}

	second, err := svc.LoginOrRegisterGitHub(context.Background(), gh)
	if err != nil {
		t.Fatalf("second login error: %v", err)
	}
	if second.User.ID != first.User.ID {
		t.Errorf("second login created a new user: %s != %s", second.User.ID, first.User.ID)
	}
}

func TestLoginOrRegisterGitHub_LinksExistingEmail(t *testing.T) {
	svc, store := newTestAuthService(t)
	reg, err := svc.Register(context.Background(), RegisterInput{Name: "Alice", Email: "alice@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	result, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 5, Login: "alice", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}
	if result.User.ID != reg.User.ID {
		t.Errorf("GitHub login did not link the existing account")
	}

	linked, err := store.Repos().Users.GetByGitHubID(context.Background(), 5)
	if err != nil || linked.ID != reg.User.ID {
		t.Errorf("GetByGitHubID() = %v, %v; want the registered user", linked, err)
	}
	if linked.PasswordHash == "" {
		t.Error("linking should keep the password")
	}
}

func TestLoginOrRegisterGitHub_Empty(t *testing.T) {
	svc, _ := newTestAuthService(t)

	for _, gh := range []*auth.GitHubUser{nil, {Login: "no-id"}} {
		if _, err := svc.LoginOrRegisterGitHub(context.Background(), gh); err == nil {
			t.Errorf("LoginOrRegisterGitHub(%+v) should fail", gh)
		}
	}
}

func TestLoginOrRegisterGitHub_RepositoryError(t *testing.T) {
	svc, store := newTestAuthService(t)
	store.failAt("Users.Create", 0, errors.New("database is on fire"))

	_, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 1, Login: "user"})
	if err == nil {
		t.Fatal("LoginOrRegisterGitHub() should propagate repository errors")
	}
}

// =========================================================================
// PROFILE TESTS
// =========================================================================

func TestUpdateProfile(t *testing.T) {
	svc, _ := newTestAuthService(t)
	reg, _ := svc.Register(context.Background(), RegisterInput{Name: "Alice", Email: "alice@example.com", Password: "secret1"})
	_, _ = svc.Register(context.Background(), RegisterInput{Name: "Bob", Email: "bob@example.com", Password: "secret1"})

	name := "Alice B."
	password := "new-secret"
	user, err := svc.UpdateProfile(context.Background(), reg.User.ID, ProfileUpdate{Name: &name, Password: &password})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if user.Name != name {
		t.Errorf("Name = %q, want %q", user.Name, name)
	}
	if _, err := svc.Login(context.Background(), "alice@example.com", "new-secret"); err != nil {
		t.Errorf("Login() with new password error = %v", err)
	}
	if _, err := svc.Login(context.Background(), "alice@example.com", "secret1"); err == nil {
		t.Error("old password should no longer work")
	}

	taken := "Bob@example.com"
	_, err = svc.UpdateProfile(context.Background(), reg.User.ID, ProfileUpdate{Email: &taken})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("UpdateProfile(taken email) error = %v, want ErrConflict", err)
	}

	short := "123"
	_, err = svc.UpdateProfile(context.Background(), reg.User.ID, ProfileUpdate{Password: &short})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("UpdateProfile(short password) error = %v, want ErrValidation", err)
	}
}

// =========================================================================
// GetUserByID / ValidateToken TESTS
// =========================================================================

func TestGetUserByID(t *testing.T) {
	svc, _ := newTestAuthService(t)
	reg, _ := svc.Register(context.Background(), RegisterInput{Name: "Alice", Email: "alice@example.com", Password: "secret1"})

	user, err := svc.GetUserByID(context.Background(), reg.User.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if user.Name != "Alice" {
		t.Errorf("Name = %q, want Alice", user.Name)
	}

	if _, err := svc.GetUserByID(context.Background(), ""); !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("GetUserByID(\"\") error = %v, want ErrUnauthorized", err)
	}
	if _, err := svc.GetUserByID(context.Background(), "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID(missing) error = %v, want ErrNotFound", err)
	}
}

func TestValidateToken_InvalidToken(t *testing.T) {
	svc, _ := newTestAuthService(t)

	if _, err := svc.ValidateToken("this.is.garbage"); err == nil {
		t.Fatal("ValidateToken() should return error for garbage token")
	}
}
