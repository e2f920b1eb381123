package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func setSecret(t *testing.T, value string) {
	t.Helper()
	t.Setenv(secretEnvVariable, value)
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
}

func TestTokenRoundTrip(t *testing.T) {
	setSecret(t, "test-secret")

	token, err := GenerateToken(Identity{UserID: "u1"}, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	ident, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if ident.UserID != "u1" || ident.Root {
		t.Fatalf("unexpected identity: %+v", ident)
	}
}

func TestTokenCarriesRootFlag(t *testing.T) {
	setSecret(t, "test-secret")

	token, err := GenerateToken(Identity{UserID: "u1", Root: true}, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	ident, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if !ident.Root {
		t.Fatal("expected root flag to survive the round trip")
	}
}

func TestTokenLegacyRootSubject(t *testing.T) {
	setSecret(t, "test-secret")

	token, err := GenerateToken(Identity{UserID: legacyRootSubject}, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	ident, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if !ident.Root {
		t.Fatal("expected legacy sentinel subject to resolve to root")
	}
	if ident.UserID != "" {
		t.Fatalf("expected empty user id for legacy root, got %q", ident.UserID)
	}
}

func TestTokenTamperedRejected(t *testing.T) {
	setSecret(t, "test-secret")

	token, err := GenerateToken(Identity{UserID: "u1"}, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	tampered := token[:len(token)-2] + "xx"
	if _, err := ParseAndValidate(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenEmptyRejected(t *testing.T) {
	setSecret(t, "test-secret")

	if _, err := ParseAndValidate("  "); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenMissingSecret(t *testing.T) {
	setSecret(t, "")

	_, err := GenerateToken(Identity{UserID: "u1"}, time.Minute)
	if err == nil || !strings.Contains(err.Error(), "secret") {
		t.Fatalf("expected missing-secret error, got %v", err)
	}
}

func TestTokenAnonymousRejected(t *testing.T) {
	setSecret(t, "test-secret")

	if _, err := GenerateToken(Identity{}, time.Minute); err == nil {
		t.Fatal("expected error for anonymous identity")
	}
}
