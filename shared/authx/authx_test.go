package authx

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestParseRoles(t *testing.T) {
	claims := map[string]any{
		"roles": []any{"admin", "worker"},
		"scp":   "read write",
	}
	roles := parseRoles(claims)
	if len(roles) < 3 {
		t.Fatalf("expected roles to include entries, got %v", roles)
	}
}

func TestNewJWTVerifierValidation(t *testing.T) {
	if _, err := NewJWTVerifier("", "aud", "", 60, 0); err == nil {
		t.Fatalf("expected error for missing issuer")
	}
}

func TestHS256VerifierRoundTrip(t *testing.T) {
	secret := "local-dev-secret"
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "user-123",
		"role": "citizen",
		"name": "Test Citizen",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	raw, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	v, err := NewHS256Verifier(secret, 60)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	auth, err := v.Verify(context.Background(), raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if auth.Subject != "user-123" {
		t.Fatalf("unexpected subject: %q", auth.Subject)
	}
	if len(auth.Roles) != 1 || auth.Roles[0] != "citizen" {
		t.Fatalf("unexpected roles: %v", auth.Roles)
	}
}

func TestHS256VerifierRejectsExpired(t *testing.T) {
	secret := "local-dev-secret"
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-123",
		"exp": time.Now().Add(-10 * time.Minute).Unix(),
	})
	raw, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	v, err := NewHS256Verifier(secret, 0)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	if _, err := v.Verify(context.Background(), raw); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestHS256VerifierRejectsWrongSecret(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-123",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	raw, err := token.SignedString([]byte("secret-a"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	v, err := NewHS256Verifier("secret-b", 0)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	if _, err := v.Verify(context.Background(), raw); err == nil {
		t.Fatalf("expected token signed with a different secret to be rejected")
	}
}
