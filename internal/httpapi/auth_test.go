package httpapi

import (
	"context"
	"errors"
	"testing"
	"time"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/store/memory"
)

func newTestAuth(t *testing.T) *AuthManager {
	t.Helper()
	auth := NewAuthManager(testSecret, time.Hour, memory.New())
	if _, err := auth.CreateUser(context.Background(), domain.UserCreateRequest{
		Username: "carla",
		Password: "carla-secret",
		Role:     domain.RoleCashier,
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return auth
}

func TestLoginAndParseTokenRoundTrip(t *testing.T) {
	auth := newTestAuth(t)

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Username: "carla", Password: "carla-secret"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "carla" || actor.Role != domain.RoleCashier {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestParseTokenRejectsForeignSignature(t *testing.T) {
	auth := newTestAuth(t)
	other := NewAuthManager("another-secret-0123456789-0123456789", time.Hour, memory.New())

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Username: "carla", Password: "carla-secret"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected foreign token to be rejected")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	auth := newTestAuth(t)
	token, err := auth.sign("carla", domain.RoleCashier, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestCreateUserValidation(t *testing.T) {
	auth := newTestAuth(t)
	ctx := context.Background()

	if _, err := auth.CreateUser(ctx, domain.UserCreateRequest{Username: "ab", Password: "long-enough"}); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for short username, got %v", err)
	}
	if _, err := auth.CreateUser(ctx, domain.UserCreateRequest{Username: "valid-name", Password: "short"}); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for short password, got %v", err)
	}
	if _, err := auth.CreateUser(ctx, domain.UserCreateRequest{Username: "valid-name", Password: "long-enough", Role: "owner"}); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for unknown role, got %v", err)
	}
	if _, err := auth.CreateUser(ctx, domain.UserCreateRequest{Username: "carla", Password: "long-enough"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate username, got %v", err)
	}
}
