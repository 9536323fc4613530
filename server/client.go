package server

import (
	"context"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/soundbridge/oauth/storage"
)

// HashClientSecret hashes a confidential client secret for storage at rest.
// Registries that persist clients outside process memory must store the
// hash, never the plaintext.
func HashClientSecret(secret string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash client secret: %w", err)
	}
	return hash, nil
}

// GetClient retrieves a client by ID (for use by the handler)
func (s *Server) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	return s.clientStore.GetClient(ctx, clientID)
}

// AuthenticateClient validates the presented client credentials and returns
// the registered client. A public client authenticates by registry
// membership alone; a confidential client must present its exact secret.
func (s *Server) AuthenticateClient(ctx context.Context, clientID, clientSecret, clientIP string) (*storage.Client, *OAuthError) {
	client, err := s.clientStore.GetClient(ctx, clientID)
	if err != nil {
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure(clientID, clientIP, "unknown client")
		}
		s.Logger.Warn("Client authentication failed: unknown client", "client_id", clientID)
		return nil, ErrInvalidClient("client authentication failed")
	}

	if client.IsPublic() {
		// Public clients carry no secret; a presented one is ignored
		return client, nil
	}

	if clientSecret == "" {
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure(clientID, clientIP, "missing client secret")
		}
		return nil, ErrInvalidClient("client authentication failed: client_secret is required")
	}

	if !s.secretMatches(client, clientSecret) {
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure(clientID, clientIP, "invalid client secret")
		}
		s.Logger.Warn("Client authentication failed: secret mismatch", "client_id", clientID)
		return nil, ErrInvalidClient("client authentication failed")
	}

	return client, nil
}

// secretMatches compares the presented secret against the registration.
// Hashed registrations use bcrypt; plaintext registrations (from the config
// file) are compared in constant time.
func (s *Server) secretMatches(client *storage.Client, presented string) bool {
	if len(client.ClientSecretHash) > 0 {
		return bcrypt.CompareHashAndPassword(client.ClientSecretHash, []byte(presented)) == nil
	}
	if client.ClientSecret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(client.ClientSecret), []byte(presented)) == 1
}
