package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"github.com/soundbridge/oauth/storage"
)

// PKCE validation constants (RFC 7636)
const (
	MinCodeVerifierLength = 43
	MaxCodeVerifierLength = 128
	PKCEMethodS256        = "S256"
)

// ResponseTypeCode is the only supported response type
const ResponseTypeCode = "code"

// validateRedirectURI checks that the presented redirect URI is a member of
// the client's registered set. Matching is byte-exact; no prefix or
// wildcard logic, which would reopen the open-redirect hole the allowlist
// exists to close.
func validateRedirectURI(client *storage.Client, redirectURI string) error {
	for _, registered := range client.RedirectURIs {
		if subtle.ConstantTimeCompare([]byte(registered), []byte(redirectURI)) == 1 {
			return nil
		}
	}
	return fmt.Errorf("redirect_uri is not registered for client %s", client.ClientID)
}

// validatePKCE validates the PKCE code verifier against the challenge per
// RFC 7636. Only the S256 method is supported; 'plain' defeats the purpose
// of PKCE and is rejected at the authorization endpoint already.
func (s *Server) validatePKCE(challenge, verifier string) error {
	if challenge == "" {
		// No PKCE recorded for this grant
		return nil
	}

	if verifier == "" {
		return fmt.Errorf("code_verifier is required when code_challenge is present")
	}

	// RFC 7636: code_verifier must be 43-128 characters
	if len(verifier) < MinCodeVerifierLength {
		return fmt.Errorf("code_verifier must be at least %d characters (RFC 7636)", MinCodeVerifierLength)
	}
	if len(verifier) > MaxCodeVerifierLength {
		return fmt.Errorf("code_verifier must be at most %d characters (RFC 7636)", MaxCodeVerifierLength)
	}

	// RFC 7636: code_verifier can only contain [A-Z] / [a-z] / [0-9] / "-" / "." / "_" / "~"
	for _, ch := range verifier {
		isValid := (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') ||
			ch == '-' || ch == '.' || ch == '_' || ch == '~'
		if !isValid {
			return fmt.Errorf("code_verifier contains invalid characters (must be [A-Za-z0-9-._~])")
		}
	}

	hash := sha256.Sum256([]byte(verifier))
	computed := base64.RawURLEncoding.EncodeToString(hash[:])

	// Constant-time comparison to prevent timing attacks
	if subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) != 1 {
		return fmt.Errorf("code_verifier does not match code_challenge")
	}

	return nil
}

// ComputeCodeChallenge derives the S256 challenge for a verifier. Exposed
// for clients of the library and for tests.
func ComputeCodeChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}
