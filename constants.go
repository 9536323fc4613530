package oauth

// Grant types supported by the token endpoint
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
)

// Endpoint paths registered by the handler
const (
	PathAuthorize = "/authorize"
	PathApprove   = "/approve"
	PathToken     = "/token"
	PathHealth    = "/health"
)

// TokenTypeBearer is the token_type value in token responses
const TokenTypeBearer = "Bearer"

// DefaultServiceName identifies this server in health responses and logs
const DefaultServiceName = "oauth-server"
