package oauth

import "log/slog"

// Config configures the HTTP handler layer
type Config struct {
	// ServiceName identifies the server in health responses.
	// Default: "oauth-server"
	ServiceName string

	// PathPrefix is prepended to every endpoint path (e.g. "/oauth").
	// Default: "" (endpoints mounted at the root)
	PathPrefix string

	// Identity resolves the resource owner's identity on consent approval.
	// Default: StaticIdentity(DefaultUserID)
	Identity IdentityResolver

	// Logger for handler-level logging. Default: slog.Default()
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if c.Identity == nil {
		c.Identity = StaticIdentity(DefaultUserID)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
