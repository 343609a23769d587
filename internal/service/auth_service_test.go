package service

import (
	"errors"
	"testing"

	"github.com/scalpel-app/scalpel/internal/config"
	"github.com/scalpel-app/scalpel/internal/models"
	"github.com/scalpel-app/scalpel/internal/repository"
	"github.com/scalpel-app/scalpel/pkg/testutil"
)

func authTestConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:   "test-secret-test-secret-test-secret",
			SessionDays: 7,
		},
		Plans: config.PlanConfig{
			DefaultFreeLimit: 50,
		},
	}
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	db, cleanup := testutil.SetupTest(t)
	defer cleanup()

	svc := NewAuthService(repository.NewUserRepository(db), authTestConfig())

	user, token, err := svc.Register("New.User@Example.com", "correct-horse")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "new.user@example.com" {
		t.Fatalf("expected canonicalized email, got %s", user.Email)
	}
	if user.Plan != models.PlanFree || user.FileLimit != 50 {
		t.Fatalf("expected free defaults, got plan=%s limit=%d", user.Plan, user.FileLimit)
	}
	if token == "" {
		t.Fatal("expected a session token")
	}

	loggedIn, _, err := svc.Login("NEW.USER@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if loggedIn.ID != user.ID {
		t.Fatalf("expected same account, got %s vs %s", loggedIn.ID, user.ID)
	}
}

func TestAuthService_RegisterRejectsDuplicateEmail(t *testing.T) {
	db, cleanup := testutil.SetupTest(t)
	defer cleanup()

	svc := NewAuthService(repository.NewUserRepository(db), authTestConfig())

	if _, _, err := svc.Register("dup@example.com", "password-one"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, _, err := svc.Register("DUP@example.com", "password-two")
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestAuthService_RegisterRejectsWeakInput(t *testing.T) {
	db, cleanup := testutil.SetupTest(t)
	defer cleanup()

	svc := NewAuthService(repository.NewUserRepository(db), authTestConfig())

	if _, _, err := svc.Register("not-an-email", "long-enough-pass"); err == nil {
		t.Fatal("expected invalid email to be rejected")
	}
	if _, _, err := svc.Register("ok@example.com", "short"); err == nil {
		t.Fatal("expected short password to be rejected")
	}
}

func TestAuthService_LoginFailuresAreIndistinguishable(t *testing.T) {
	db, cleanup := testutil.SetupTest(t)
	defer cleanup()

	svc := NewAuthService(repository.NewUserRepository(db), authTestConfig())

	if _, _, err := svc.Register("known@example.com", "right-password"); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, _, wrongPass := svc.Login("known@example.com", "wrong-password")
	_, _, unknownUser := svc.Login("unknown@example.com", "whatever-pass")

	if !errors.Is(wrongPass, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", wrongPass)
	}
	if !errors.Is(unknownUser, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", unknownUser)
	}
	if wrongPass.Error() != unknownUser.Error() {
		t.Fatal("login failures must not reveal which part was wrong")
	}
}

func TestAuthService_TokenRoundTrip(t *testing.T) {
	db, cleanup := testutil.SetupTest(t)
	defer cleanup()

	svc := NewAuthService(repository.NewUserRepository(db), authTestConfig())

	user, token, err := svc.Register("claims@example.com", "long-password")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.UserID != user.ID || claims.Email != user.Email || claims.Role != "user" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := svc.ValidateToken(token + "tampered"); err == nil {
		t.Fatal("expected tampered token to be rejected")
	}

	other := NewAuthService(repository.NewUserRepository(db), &config.Config{
		Auth: config.AuthConfig{JWTSecret: "a-completely-different-secret-value", SessionDays: 7},
	})
	if _, err := other.ValidateToken(token); err == nil {
		t.Fatal("expected token signed with another secret to be rejected")
	}
}
