package server

import (
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/soundbridge/oauth/instrumentation"
	"github.com/soundbridge/oauth/security"
	"github.com/soundbridge/oauth/storage"
)

// safeTruncate safely truncates a string to maxLen characters without
// panicking, for logging secret prefixes.
func safeTruncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// tokenLogLength is the number of characters of a secret included in logs
const tokenLogLength = 8

// Server implements the OAuth 2.0 authorization server logic.
// It coordinates the three flow stages over injected storage backends.
type Server struct {
	grantStore  storage.GrantStore
	tokenStore  storage.TokenStore
	clientStore storage.ClientStore

	Auditor     *security.Auditor
	RateLimiter *security.RateLimiter // IP-based rate limiter
	Logger      *slog.Logger
	Config      *Config

	inst *instrumentation.Instrumentation
}

// New creates a new OAuth server
func New(
	grantStore storage.GrantStore,
	tokenStore storage.TokenStore,
	clientStore storage.ClientStore,
	config *Config,
	logger *slog.Logger,
) (*Server, error) {
	if grantStore == nil {
		return nil, fmt.Errorf("grant store is required")
	}
	if tokenStore == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if clientStore == nil {
		return nil, fmt.Errorf("client store is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applySecureDefaults(config, logger)

	// Disabled instrumentation keeps metric call sites unconditional
	inst, err := instrumentation.New(instrumentation.Config{Enabled: false})
	if err != nil {
		return nil, fmt.Errorf("failed to create noop instrumentation: %w", err)
	}

	return &Server{
		grantStore:  grantStore,
		tokenStore:  tokenStore,
		clientStore: clientStore,
		Config:      config,
		Logger:      logger,
		inst:        inst,
	}, nil
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetRateLimiter sets the IP-based rate limiter
func (s *Server) SetRateLimiter(rl *security.RateLimiter) {
	s.RateLimiter = rl
}

// SetInstrumentation wires OpenTelemetry instrumentation into the server
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	if inst != nil {
		s.inst = inst
	}
}

// Instrumentation returns the active instrumentation (never nil)
func (s *Server) Instrumentation() *instrumentation.Instrumentation {
	return s.inst
}

// metrics returns the metric instruments (never nil)
func (s *Server) metrics() *instrumentation.Metrics {
	return s.inst.Metrics()
}

// generateRandomToken generates an opaque secret token with 32 bytes of
// entropy in URL-safe encoding. Used for temp codes, authorization codes,
// and access/refresh tokens alike.
func generateRandomToken() string {
	return oauth2.GenerateVerifier()
}
