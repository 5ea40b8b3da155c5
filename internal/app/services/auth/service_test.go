package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"

	domainauth "plateful/internal/domain/auth"
	domainuser "plateful/internal/domain/user"
	"plateful/internal/infra/storage/memory"
)

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "hash:" + password, nil }

func (plainHasher) Compare(hash, password string) error {
	if hash != "hash:"+password {
		return errors.New("mismatch")
	}
	return nil
}

type sequenceTokens struct{ n int }

func (g *sequenceTokens) NewToken() (string, error) {
	g.n++
	return fmt.Sprintf("token-%d", g.n), nil
}

func newService() *Service {
	return &Service{
		Users:     memory.NewUserRepository(),
		Sessions:  memory.NewSessionStore(),
		Passwords: plainHasher{},
		Tokens:    &sequenceTokens{},
	}
}

func register(t *testing.T, s *Service, email string) *AuthResult {
	t.Helper()
	result, err := s.Register(context.Background(), RegisterParams{
		Email:    email,
		Name:     "Sam",
		Password: "long-enough",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return result
}

func TestRegisterIssuesSession(t *testing.T) {
	s := newService()
	result := register(t, s, "sam@example.com")
	if result.Token == "" {
		t.Fatal("register must issue a token")
	}
	resolved, err := s.ResolveToken(context.Background(), result.Token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.User.ID != result.User.ID {
		t.Fatal("resolved wrong user")
	}
}

func TestRegisterNormalizesEmail(t *testing.T) {
	s := newService()
	result := register(t, s, "  Sam@Example.COM ")
	if result.User.Email != "sam@example.com" {
		t.Fatalf("email not normalized: %q", result.User.Email)
	}
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	s := newService()
	_, err := s.Register(context.Background(), RegisterParams{
		Email:    "sam@example.com",
		Name:     "Sam",
		Password: "short",
	})
	if !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("want ErrPasswordTooShort, got %v", err)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	s := newService()
	register(t, s, "sam@example.com")
	_, err := s.Register(context.Background(), RegisterParams{
		Email:    "sam@example.com",
		Name:     "Other Sam",
		Password: "long-enough",
	})
	if !errors.Is(err, domainuser.ErrEmailAlreadyUsed) {
		t.Fatalf("want ErrEmailAlreadyUsed, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	s := newService()
	register(t, s, "sam@example.com")

	result, err := s.Login(context.Background(), LoginParams{
		Email:    "sam@example.com",
		Password: "long-enough",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.Token == "" {
		t.Fatal("login must issue a token")
	}

	if _, err := s.Login(context.Background(), LoginParams{
		Email:    "sam@example.com",
		Password: "wrong-password",
	}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("want ErrInvalidCredentials, got %v", err)
	}
	if _, err := s.Login(context.Background(), LoginParams{
		Email:    "nobody@example.com",
		Password: "long-enough",
	}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email must read as invalid credentials, got %v", err)
	}
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	s := newService()
	first := register(t, s, "sam@example.com")
	second, err := s.Login(context.Background(), LoginParams{
		Email:    "sam@example.com",
		Password: "long-enough",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := s.LogoutAll(context.Background(), first.User.ID); err != nil {
		t.Fatalf("logout all: %v", err)
	}
	for _, token := range []string{first.Token, second.Token} {
		if _, err := s.ResolveToken(context.Background(), token); !errors.Is(err, domainauth.ErrSessionNotFound) {
			t.Fatalf("token %q still resolves after logout all: %v", token, err)
		}
	}
}

func TestLogoutInvalidatesToken(t *testing.T) {
	s := newService()
	result := register(t, s, "sam@example.com")

	if err := s.Logout(context.Background(), result.Token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := s.ResolveToken(context.Background(), result.Token); !errors.Is(err, domainauth.ErrSessionNotFound) {
		t.Fatalf("want ErrSessionNotFound after logout, got %v", err)
	}
}
