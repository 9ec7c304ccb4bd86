package auth

import (
	"errors"
	"testing"
	"time"

	"billed/internal/core"
)

func TestGenerateAndParse_Success(t *testing.T) {
	t.Parallel()

	secret := []byte("super-secret")
	want := core.Session{Role: core.RoleAdmin, Email: "admin@test.tld"}

	tok, err := GenerateToken(want, secret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	got, err := SessionFromToken(tok, secret)
	if err != nil {
		t.Fatalf("SessionFromToken error: %v", err)
	}
	if got != want {
		t.Fatalf("session mismatch: got %+v want %+v", got, want)
	}
}

func TestSessionFromToken_Expired(t *testing.T) {
	t.Parallel()

	secret := []byte("secret")
	tok, err := GenerateToken(core.Session{Role: core.RoleEmployee, Email: "a@a"}, secret, -1*time.Second)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	_, err = SessionFromToken(tok, secret)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestSessionFromToken_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken(core.Session{Role: core.RoleEmployee, Email: "a@a"}, []byte("right-secret"), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	_, err = SessionFromToken(tok, []byte("wrong-secret"))
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestSessionFromToken_Malformed(t *testing.T) {
	t.Parallel()

	if _, err := SessionFromToken("not.a.jwt", []byte("k")); err == nil {
		t.Fatalf("expected error for malformed token, got nil")
	}
}

func TestGenerateToken_RejectsInvalidSession(t *testing.T) {
	t.Parallel()

	if _, err := GenerateToken(core.Session{}, []byte("k"), time.Hour); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTabToken_RoundTrip(t *testing.T) {
	t.Parallel()

	secret := []byte("tab-secret")
	tok, err := GenerateTabToken("tab-1", secret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateTabToken error: %v", err)
	}
	id, err := TabIDFromToken(tok, secret)
	if err != nil {
		t.Fatalf("TabIDFromToken error: %v", err)
	}
	if id != "tab-1" {
		t.Fatalf("tab id mismatch: got %q", id)
	}

	if _, err := TabIDFromToken(tok, []byte("other")); err == nil {
		t.Fatalf("expected error for foreign secret")
	}
}
