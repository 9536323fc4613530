// Package config loads server configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment variable overrides.
// OAUTH_RATE_LIMIT__REQUESTS_PER_SECOND maps to rate_limit.requests_per_second.
const EnvPrefix = "OAUTH_"

// Config is the full server configuration
type Config struct {
	Host        string `koanf:"host"`
	Port        int    `koanf:"port"`
	Issuer      string `koanf:"issuer"`
	ServiceName string `koanf:"service_name"`

	TrustProxy        bool `koanf:"trust_proxy"`
	TrustedProxyCount int  `koanf:"trusted_proxy_count"`

	Tokens    TokenConfig     `koanf:"tokens"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Audit     AuditConfig     `koanf:"audit"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Valkey    ValkeyConfig    `koanf:"valkey"`

	Clients []ClientConfig `koanf:"clients"`
}

// TokenConfig controls credential lifetimes and PKCE policy
type TokenConfig struct {
	PendingGrantTTL      time.Duration `koanf:"pending_grant_ttl"`
	AuthorizationCodeTTL time.Duration `koanf:"authorization_code_ttl"`
	AccessTokenTTL       time.Duration `koanf:"access_token_ttl"`
	RefreshTokenTTL      time.Duration `koanf:"refresh_token_ttl"`
	RotateRefreshTokens  bool          `koanf:"rotate_refresh_tokens"`
	RequirePKCE          bool          `koanf:"require_pkce"`
}

// RateLimitConfig controls the per-IP request rate limiter
type RateLimitConfig struct {
	Enabled           bool `koanf:"enabled"`
	RequestsPerSecond int  `koanf:"requests_per_second"`
	Burst             int  `koanf:"burst"`
}

// AuditConfig controls security audit logging
type AuditConfig struct {
	Enabled bool `koanf:"enabled"`
}

// MetricsConfig controls OpenTelemetry instrumentation
type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
}

// ValkeyConfig selects the Valkey storage backend when Address is set;
// otherwise storage is in-memory.
type ValkeyConfig struct {
	Address   string `koanf:"address"`
	Password  string `koanf:"password"`
	DB        int    `koanf:"db"`
	KeyPrefix string `koanf:"key_prefix"`
	TLS       bool   `koanf:"tls"`
}

// ClientConfig is a registered OAuth client in the config file
type ClientConfig struct {
	ClientID     string   `koanf:"client_id"`
	ClientType   string   `koanf:"client_type"`
	ClientSecret string   `koanf:"client_secret"`
	Name         string   `koanf:"name"`
	RedirectURIs []string `koanf:"redirect_uris"`
}

// Load reads configuration from the given YAML file (optional; empty path or
// a missing file is not an error) and applies OAUTH_ environment overrides
// on top.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file %s: %w", path, err)
		}
	}

	// OAUTH_VALKEY__ADDRESS -> valkey.address
	if err := k.Load(env.Provider(EnvPrefix, "__", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 5001
	}
	if c.ServiceName == "" {
		c.ServiceName = "oauth-server"
	}
	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = 10
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 20
	}
	if len(c.Clients) == 0 {
		c.Clients = BuiltinClients()
	}
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	seen := make(map[string]bool, len(c.Clients))
	for _, client := range c.Clients {
		if client.ClientID == "" {
			return fmt.Errorf("client entry with empty client_id")
		}
		if seen[client.ClientID] {
			return fmt.Errorf("duplicate client_id %q", client.ClientID)
		}
		seen[client.ClientID] = true
		if len(client.RedirectURIs) == 0 {
			return fmt.Errorf("client %q has no redirect_uris", client.ClientID)
		}
		if client.ClientType == "confidential" && client.ClientSecret == "" {
			return fmt.Errorf("confidential client %q has no client_secret", client.ClientID)
		}
	}
	return nil
}

// ListenAddr returns the host:port the server should bind
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// BuiltinClients returns the default client registry used when the config
// file registers none. The Alexa account-linking endpoints cover the three
// regional Amazon frontends.
func BuiltinClients() []ClientConfig {
	return []ClientConfig{
		{
			ClientID:   "amazon-alexa",
			ClientType: "public",
			Name:       "Amazon Alexa",
			RedirectURIs: []string{
				"https://pitangui.amazon.com/auth/o2/callback",
				"https://layla.amazon.com/api/skill/link/MKXZK47785HJ2",
				"https://alexa.amazon.co.jp/api/skill/link/MKXZK47785HJ2",
			},
		},
	}
}
