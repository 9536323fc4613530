package server

import (
	"fmt"
	"net/http"
)

// OAuth error codes as constants
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeInvalidGrant            = "invalid_grant"
	ErrorCodeInvalidClient           = "invalid_client"
	ErrorCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrorCodeUnsupportedResponseType = "unsupported_response_type"
	ErrorCodeServerError             = "server_error"
	ErrorCodeRateLimitExceeded       = "rate_limit_exceeded"
)

// OAuthError represents an OAuth 2.0 error response for the machine-facing
// endpoints. It carries the RFC 6749 error code and the HTTP status the
// handler should answer with.
type OAuthError struct {
	Code        string // OAuth error code (e.g., "invalid_request", "invalid_grant")
	Description string // Human-readable error description
	Status      int    // HTTP status code
}

// Error implements the error interface
func (e *OAuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewOAuthError creates a new OAuth error
func NewOAuthError(code, description string, status int) *OAuthError {
	return &OAuthError{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// Common OAuth errors as reusable constructors
var (
	// ErrInvalidRequest indicates the request is malformed or missing required parameters
	ErrInvalidRequest = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeInvalidRequest, desc, http.StatusBadRequest)
	}

	// ErrInvalidGrant indicates the authorization code or refresh token is invalid or expired
	ErrInvalidGrant = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeInvalidGrant, desc, http.StatusBadRequest)
	}

	// ErrInvalidClient indicates client authentication failed
	ErrInvalidClient = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeInvalidClient, desc, http.StatusUnauthorized)
	}

	// ErrClientBindingMismatch indicates the presented client does not match
	// the one the grant was issued to. Unlike an authentication failure this
	// answers 400, matching the binding-mismatch semantics of RFC 6749
	// section 4.1.3.
	ErrClientBindingMismatch = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeInvalidClient, desc, http.StatusBadRequest)
	}

	// ErrUnsupportedGrantType indicates the grant type is not supported
	ErrUnsupportedGrantType = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeUnsupportedGrantType, desc, http.StatusBadRequest)
	}

	// ErrUnsupportedResponseType indicates the response type is not supported
	ErrUnsupportedResponseType = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeUnsupportedResponseType, desc, http.StatusBadRequest)
	}

	// ErrServerError indicates an internal server error occurred
	ErrServerError = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeServerError, desc, http.StatusInternalServerError)
	}

	// ErrRateLimitExceeded indicates the caller exceeded the request rate limit
	ErrRateLimitExceeded = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeRateLimitExceeded, desc, http.StatusTooManyRequests)
	}
)

// Consent error reasons. The consent endpoints face a human browser session,
// so these surface as rendered HTML pages rather than JSON error bodies.
const (
	ReasonMissingParams           = "missing_params"
	ReasonUnsupportedResponseType = "unsupported_response_type"
	ReasonUnsupportedPkceMethod   = "unsupported_pkce_method"
	ReasonUnknownClient           = "unknown_client"
	ReasonInvalidRedirect         = "invalid_redirect"
	ReasonMissingFormFields       = "missing_form_fields"
	ReasonGrantNotFound           = "grant_not_found"
	ReasonCsrfMismatch            = "csrf_mismatch"
	ReasonGrantExpired            = "grant_expired"
	ReasonServerError             = "internal_error"
)

// ConsentError represents a failure on the human-facing consent path.
type ConsentError struct {
	Reason  string // stable machine identifier, one of the Reason* constants
	Title   string // short page heading
	Message string // human-readable description shown on the error page
}

// Error implements the error interface
func (e *ConsentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// NewConsentError creates a new consent-stage error
func NewConsentError(reason, title, message string) *ConsentError {
	return &ConsentError{
		Reason:  reason,
		Title:   title,
		Message: message,
	}
}
