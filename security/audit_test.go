package security

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestAuditorHashesUserID(t *testing.T) {
	var buf bytes.Buffer
	aud := NewAuditor(slog.New(slog.NewJSONHandler(&buf, nil)), true)

	aud.LogGrantApproved("alice@example.com", "client-1", "203.0.113.5")

	out := buf.String()
	if strings.Contains(out, "alice@example.com") {
		t.Error("raw user ID must not appear in audit output")
	}
	if !strings.Contains(out, EventGrantApproved) {
		t.Errorf("expected event type %q in output: %s", EventGrantApproved, out)
	}
	if !strings.Contains(out, "client-1") {
		t.Error("client ID should appear in audit output")
	}
}

func TestAuditorDisabled(t *testing.T) {
	var buf bytes.Buffer
	aud := NewAuditor(slog.New(slog.NewJSONHandler(&buf, nil)), false)

	aud.LogTokenIssued("user", "client", "ip", "scope")
	aud.LogAuthFailure("client", "ip", "reason")

	if buf.Len() != 0 {
		t.Errorf("disabled auditor must not log, got: %s", buf.String())
	}
}

func TestHashForLogging(t *testing.T) {
	a := hashForLogging("sensitive")
	b := hashForLogging("sensitive")
	if a != b {
		t.Error("hash should be deterministic")
	}
	if a == "sensitive" {
		t.Error("hash must differ from input")
	}
	if len(a) != 16 {
		t.Errorf("hash prefix length = %d, want 16", len(a))
	}
	if hashForLogging("") != "<empty>" {
		t.Error("empty input should map to <empty>")
	}
}
