package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Port != 5001 {
		t.Errorf("port = %d, want 5001", cfg.Port)
	}
	if cfg.Host != "0.0.0.0" {
		t.Errorf("host = %q, want 0.0.0.0", cfg.Host)
	}
	if cfg.ServiceName != "oauth-server" {
		t.Errorf("service name = %q", cfg.ServiceName)
	}
	if len(cfg.Clients) != 1 || cfg.Clients[0].ClientID != "amazon-alexa" {
		t.Fatalf("expected built-in amazon-alexa client, got %+v", cfg.Clients)
	}
	if len(cfg.Clients[0].RedirectURIs) != 3 {
		t.Errorf("built-in client should register 3 redirect URIs, got %d", len(cfg.Clients[0].RedirectURIs))
	}
	if cfg.ListenAddr() != "0.0.0.0:5001" {
		t.Errorf("listen addr = %q", cfg.ListenAddr())
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
host: 127.0.0.1
port: 8080
issuer: https://auth.example.com
trust_proxy: true
tokens:
  access_token_ttl: 30m
  refresh_token_ttl: 720h
  require_pkce: true
rate_limit:
  enabled: true
  requests_per_second: 5
  burst: 10
valkey:
  address: localhost:6379
clients:
  - client_id: web-app
    client_type: confidential
    client_secret: hunter2
    name: Web App
    redirect_uris:
      - https://app.example.com/callback
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Host != "127.0.0.1" || cfg.Port != 8080 {
		t.Errorf("addr = %s", cfg.ListenAddr())
	}
	if cfg.Issuer != "https://auth.example.com" {
		t.Errorf("issuer = %q", cfg.Issuer)
	}
	if !cfg.TrustProxy {
		t.Error("trust_proxy should be set")
	}
	if cfg.Tokens.AccessTokenTTL != 30*time.Minute {
		t.Errorf("access ttl = %v", cfg.Tokens.AccessTokenTTL)
	}
	if cfg.Tokens.RefreshTokenTTL != 720*time.Hour {
		t.Errorf("refresh ttl = %v", cfg.Tokens.RefreshTokenTTL)
	}
	if !cfg.Tokens.RequirePKCE {
		t.Error("require_pkce should be set")
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.RequestsPerSecond != 5 {
		t.Errorf("rate limit = %+v", cfg.RateLimit)
	}
	if cfg.Valkey.Address != "localhost:6379" {
		t.Errorf("valkey address = %q", cfg.Valkey.Address)
	}
	if len(cfg.Clients) != 1 || cfg.Clients[0].ClientID != "web-app" {
		t.Fatalf("clients = %+v", cfg.Clients)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, "port: 8080\n")

	t.Setenv("OAUTH_PORT", "9090")
	t.Setenv("OAUTH_VALKEY__ADDRESS", "valkey.internal:6379")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 9090 {
		t.Errorf("env override should win, port = %d", cfg.Port)
	}
	if cfg.Valkey.Address != "valkey.internal:6379" {
		t.Errorf("nested env override failed, address = %q", cfg.Valkey.Address)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 5001 {
		t.Errorf("port = %d, want default", cfg.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "duplicate client id",
			yaml: `
clients:
  - client_id: dup
    redirect_uris: ["https://a.example.com/cb"]
  - client_id: dup
    redirect_uris: ["https://b.example.com/cb"]
`,
		},
		{
			name: "client without redirect uris",
			yaml: `
clients:
  - client_id: lonely
`,
		},
		{
			name: "confidential client without secret",
			yaml: `
clients:
  - client_id: conf
    client_type: confidential
    redirect_uris: ["https://a.example.com/cb"]
`,
		},
		{
			name: "port out of range",
			yaml: "port: 70000\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.yaml)
			if _, err := Load(path); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
