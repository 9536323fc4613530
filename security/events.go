package security

// Event type constants for security audit logging. Using constants keeps
// event names consistent across the codebase and queryable downstream.
const (
	// Authorization flow events

	// EventAuthorizationStarted is logged when an authorization request
	// passes validation and a pending grant is stored
	EventAuthorizationStarted = "authorization_started"

	// EventGrantApproved is logged when consent is approved and an
	// authorization code is issued
	EventGrantApproved = "grant_approved"

	// EventCsrfMismatch is logged when the approval state does not match
	// the pending grant's recorded state
	EventCsrfMismatch = "csrf_mismatch"

	// EventGrantExpired is logged when an expired pending grant is submitted
	EventGrantExpired = "grant_expired"

	// Token lifecycle events

	// EventCodeRedeemed is logged when an authorization code is exchanged
	// for tokens
	EventCodeRedeemed = "code_redeemed"

	// EventTokenIssued is logged when a new access/refresh token pair is issued
	EventTokenIssued = "token_issued"

	// EventTokenRefreshed is logged when an access token is refreshed
	EventTokenRefreshed = "token_refreshed"

	// Security violation events

	// EventAuthFailure is logged when client authentication fails
	EventAuthFailure = "auth_failure"

	// EventPKCEValidationFailed is logged when code_verifier validation fails
	EventPKCEValidationFailed = "pkce_validation_failed"

	// EventRateLimitExceeded is logged when a rate limit is exceeded
	EventRateLimitExceeded = "rate_limit_exceeded"

	// EventInvalidRedirect is logged when an unregistered redirect URI is presented
	EventInvalidRedirect = "invalid_redirect"
)
