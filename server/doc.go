// Package server implements the core OAuth 2.0 authorization server logic.
//
// This package provides the authorization code flow with PKCE (RFC 6749 +
// RFC 7636) as three cooperating stages: authorization initiation (pending
// grant + consent), consent approval (grant promotion into a redeemable
// code), and token issuance (code exchange and refresh). It coordinates
// storage backends and security features while staying free of HTTP
// concerns; the root package adapts it to HTTP.
//
// Key properties:
//   - Single-use pending grants and authorization codes via atomic storage takes
//   - CSRF state binding checked in constant time
//   - PKCE S256 verification, enforced when a challenge was recorded
//   - Public and confidential client authentication (bcrypt secret hashes)
//   - Security auditing, rate limiting, and OpenTelemetry instrumentation
//
// Example usage:
//
//	store := memory.New()
//	defer store.Stop()
//
//	srv, err := server.New(store, store, store, &server.Config{
//	    Issuer: "https://auth.example.com",
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
package server
