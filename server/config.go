package server

import (
	"log/slog"
	"time"
)

// Default lifetimes
const (
	// DefaultPendingGrantTTL is how long a pending grant awaits consent
	DefaultPendingGrantTTL = 5 * time.Minute

	// DefaultAuthorizationCodeTTL is how long an issued code stays redeemable
	DefaultAuthorizationCodeTTL = 5 * time.Minute

	// DefaultAccessTokenTTL is the access token lifetime
	DefaultAccessTokenTTL = time.Hour

	// DefaultRefreshTokenTTL is the refresh token lifetime
	DefaultRefreshTokenTTL = 90 * 24 * time.Hour
)

// Config holds OAuth server configuration
type Config struct {
	// Issuer is the server's issuer identifier (base URL). Used for
	// security headers; HTTPS issuers additionally get HSTS.
	Issuer string

	// PendingGrantTTL is how long a pending grant awaits consent.
	// Default: 5 minutes
	PendingGrantTTL time.Duration

	// AuthorizationCodeTTL is how long authorization codes are valid.
	// Default: 5 minutes
	AuthorizationCodeTTL time.Duration

	// AccessTokenTTL is how long access tokens are valid.
	// Default: 1 hour
	AccessTokenTTL time.Duration

	// RefreshTokenTTL is how long refresh tokens are valid. Zero falls back
	// to the 90 day default; negative disables refresh expiry entirely.
	RefreshTokenTTL time.Duration

	// RotateRefreshTokens issues a new refresh token on every refresh.
	// Default: false. Linked device integrations (the primary consumers of
	// this server) store the refresh token once at link time and never
	// update it, so rotation would break them.
	RotateRefreshTokens bool

	// RequirePKCE makes code_challenge mandatory at the authorization
	// endpoint. Default: false; PKCE is enforced at redemption whenever a
	// challenge was supplied at authorization time.
	RequirePKCE bool

	// ClockSkewGracePeriod is the grace period for access token expiry
	// checks at verification time. Grant and code expiry is always strict.
	// Default: 5 seconds
	ClockSkewGracePeriod time.Duration

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers.
	// Only enable behind a trusted reverse proxy.
	// Default: false
	TrustProxy bool

	// TrustedProxyCount is the number of trusted proxies in front of this
	// server, counted from the right of X-Forwarded-For.
	// Default: 1
	TrustedProxyCount int
}

// applySecureDefaults fills in zero-value fields with secure defaults
func applySecureDefaults(config *Config, logger *slog.Logger) *Config {
	cfg := *config

	if cfg.PendingGrantTTL <= 0 {
		cfg.PendingGrantTTL = DefaultPendingGrantTTL
	}
	if cfg.AuthorizationCodeTTL <= 0 {
		cfg.AuthorizationCodeTTL = DefaultAuthorizationCodeTTL
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if cfg.RefreshTokenTTL == 0 {
		cfg.RefreshTokenTTL = DefaultRefreshTokenTTL
	} else if cfg.RefreshTokenTTL < 0 {
		cfg.RefreshTokenTTL = 0
		logger.Warn("Refresh token expiry disabled; stolen refresh tokens stay valid until overwritten")
	}
	if cfg.ClockSkewGracePeriod <= 0 {
		cfg.ClockSkewGracePeriod = 5 * time.Second
	}
	if cfg.TrustedProxyCount <= 0 {
		cfg.TrustedProxyCount = 1
	}

	return &cfg
}
