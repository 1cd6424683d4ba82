package auth

import (
	"testing"
	"time"

	"patient-followup/internal/config"
)

func TestIssueAndVerifyAccessToken(t *testing.T) {
	m, err := NewManager(config.AuthConfig{
		JWTSecret:       "secret",
		JWTIssuer:       "issuer",
		JWTAudience:     "aud",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	now := time.Unix(1700000000, 0).UTC()
	pair, err := m.IssuePair(now, "nurse-desk", "operator")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected token strings")
	}
	if pair.ExpiresIn != 900 {
		t.Fatalf("expected 900s expiry, got %d", pair.ExpiresIn)
	}

	claims, err := m.Verify(pair.AccessToken, TokenTypeAccess, now.Add(1*time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.OperatorID != "nurse-desk" || claims.Role != "operator" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	now := time.Unix(1700000000, 0).UTC()
	p, err := m.IssuePair(now, "op", "viewer")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(p.AccessToken, TokenTypeAccess, now.Add(10*time.Minute)); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestVerifyRejectsWrongTokenType(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	p, err := m.IssuePair(time.Now(), "op", "admin")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(p.RefreshToken, TokenTypeAccess, time.Now()); err == nil {
		t.Fatalf("expected token_type mismatch")
	}
	if _, err := m.Verify(p.RefreshToken, TokenTypeRefresh, time.Now()); err != nil {
		t.Fatalf("expected refresh token to verify: %v", err)
	}
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	a, _ := NewManager(config.AuthConfig{JWTSecret: "a", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	b, _ := NewManager(config.AuthConfig{JWTSecret: "b", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	p, _ := a.IssuePair(time.Now(), "op", "admin")
	if _, err := b.Verify(p.AccessToken, TokenTypeAccess, time.Now()); err == nil {
		t.Fatalf("expected signature failure")
	}
}

func TestKeyRing_Authenticate(t *testing.T) {
	kr := NewKeyRing(map[string]string{"admin": "adm-key", "viewer": "view-key", "operator": ""})
	if kr.Len() != 2 {
		t.Fatalf("expected empty keys skipped, got %d entries", kr.Len())
	}
	if role, err := kr.Authenticate("view-key"); err != nil || role != "viewer" {
		t.Fatalf("expected viewer, got %q (%v)", role, err)
	}
	if _, err := kr.Authenticate(""); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials for empty key")
	}
	if _, err := kr.Authenticate("nope"); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials")
	}
	if kr.Enabled("operator") || !kr.Enabled("admin") {
		t.Fatalf("unexpected enabled roles")
	}
}
