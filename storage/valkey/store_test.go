package valkey

import (
	"testing"
	"time"

	"github.com/soundbridge/oauth/storage"
)

func TestCalculateTTL(t *testing.T) {
	if ttl := calculateTTL(time.Now().Add(10 * time.Minute)); ttl <= 9*time.Minute {
		t.Errorf("ttl = %v, want roughly 10m", ttl)
	}
	if ttl := calculateTTL(time.Now().Add(-time.Second)); ttl != 0 {
		t.Errorf("expired record should yield zero TTL, got %v", ttl)
	}
	if ttl := calculateTTL(time.Now()); ttl != 0 {
		t.Errorf("record expiring now should yield zero TTL, got %v", ttl)
	}
}

func TestSafeTruncate(t *testing.T) {
	if got := safeTruncate("abcdefghij", 8); got != "abcdefgh" {
		t.Errorf("safeTruncate = %q", got)
	}
	if got := safeTruncate("abc", 8); got != "abc" {
		t.Errorf("short input should pass through, got %q", got)
	}
	if got := safeTruncate("", 8); got != "" {
		t.Errorf("empty input should pass through, got %q", got)
	}
}

func TestKeyNamespacing(t *testing.T) {
	s := &Store{prefix: "oauth:"}

	tests := []struct {
		got  string
		want string
	}{
		{s.grantKey("g1"), "oauth:grant:g1"},
		{s.codeKey("c1"), "oauth:code:c1"},
		{s.tokenKey("user-1"), "oauth:token:user:user-1"},
		{s.accessIndexKey("at"), "oauth:token:access:at"},
		{s.refreshIndexKey("rt"), "oauth:token:refresh:rt"},
		{s.clientKey("web"), "oauth:client:web"},
		{s.clientSetKey(), "oauth:clients"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("key = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestPendingGrantCodecRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	grant := &storage.PendingGrant{
		TempCode:            "temp-code-1",
		ClientID:            "amazon-alexa",
		RedirectURI:         "https://pitangui.amazon.com/auth/o2/callback",
		State:               "st",
		Scope:               "profile",
		CodeChallenge:       "challenge",
		CodeChallengeMethod: "S256",
		CreatedAt:           now,
		ExpiresAt:           now.Add(10 * time.Minute),
	}

	back := fromPendingGrantJSON(toPendingGrantJSON(grant))

	if back.TempCode != grant.TempCode || back.ClientID != grant.ClientID ||
		back.RedirectURI != grant.RedirectURI || back.State != grant.State ||
		back.Scope != grant.Scope || back.CodeChallenge != grant.CodeChallenge ||
		back.CodeChallengeMethod != grant.CodeChallengeMethod {
		t.Errorf("round trip lost fields: %+v", back)
	}
	// Unix-second precision is the contract, sub-second is dropped
	if !back.ExpiresAt.Equal(grant.ExpiresAt) {
		t.Errorf("expires_at = %v, want %v", back.ExpiresAt, grant.ExpiresAt)
	}
}

func TestAuthorizationCodeCodecKeepsUserBinding(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	code := &storage.AuthorizationCode{
		Code:                "auth-code-1",
		ClientID:            "amazon-alexa",
		RedirectURI:         "https://layla.amazon.com/api/skill/link/MKXZK47785HJ2",
		Scope:               "profile",
		CodeChallenge:       "challenge",
		CodeChallengeMethod: "S256",
		UserID:              "user-42",
		CreatedAt:           now,
		ExpiresAt:           now.Add(time.Minute),
	}

	back := fromAuthorizationCodeJSON(toAuthorizationCodeJSON(code))
	if back.UserID != "user-42" {
		t.Errorf("user binding lost, got %q", back.UserID)
	}
	if back.ClientID != code.ClientID || back.RedirectURI != code.RedirectURI {
		t.Errorf("client binding lost: %+v", back)
	}
}
