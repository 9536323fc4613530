package valkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/soundbridge/oauth/storage"
)

// ============================================================
// ClientStore Implementation
// ============================================================

// clientJSON is the JSON representation of a registered client.
// The plaintext secret is never persisted; registries that configure
// plaintext secrets keep them in process memory only, so the valkey
// backend stores the bcrypt hash.
type clientJSON struct {
	ClientID         string   `json:"client_id"`
	ClientType       string   `json:"client_type"`
	ClientSecretHash []byte   `json:"client_secret_hash,omitempty"`
	RedirectURIs     []string `json:"redirect_uris"`
	Name             string   `json:"name,omitempty"`
	CreatedAt        int64    `json:"created_at"`
}

// RegisterClient adds a client to the registry set.
func (s *Store) RegisterClient(ctx context.Context, client *storage.Client) error {
	if client == nil || client.ClientID == "" {
		return fmt.Errorf("invalid client")
	}
	if client.ClientSecret != "" && len(client.ClientSecretHash) == 0 {
		return fmt.Errorf("plaintext client secrets cannot be persisted; hash the secret first")
	}

	key := s.clientKey(client.ClientID)

	// NX prevents silently overwriting an existing registration
	exists, err := s.client.Do(ctx, s.client.B().Exists().Key(key).Build()).AsInt64()
	if err != nil {
		return fmt.Errorf("failed to check client existence: %w", err)
	}
	if exists > 0 {
		return storage.ErrClientExists
	}

	createdAt := client.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	data, err := json.Marshal(&clientJSON{
		ClientID:         client.ClientID,
		ClientType:       client.ClientType,
		ClientSecretHash: client.ClientSecretHash,
		RedirectURIs:     client.RedirectURIs,
		Name:             client.Name,
		CreatedAt:        createdAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal client: %w", err)
	}

	if err := s.client.Do(ctx, s.client.B().Set().Key(key).Value(string(data)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}
	if err := s.client.Do(ctx, s.client.B().Sadd().Key(s.clientSetKey()).Member(client.ClientID).Build()).Error(); err != nil {
		return fmt.Errorf("failed to index client: %w", err)
	}

	s.logger.Info("Registered client",
		"client_id", client.ClientID,
		"client_type", client.ClientType)
	return nil
}

// GetClient retrieves a client by ID.
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(s.clientKey(clientID)).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	var j clientJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal client: %w", err)
	}

	return &storage.Client{
		ClientID:         j.ClientID,
		ClientType:       j.ClientType,
		ClientSecretHash: j.ClientSecretHash,
		RedirectURIs:     j.RedirectURIs,
		Name:             j.Name,
		CreatedAt:        time.Unix(j.CreatedAt, 0),
	}, nil
}

// ListClients returns all registered clients.
func (s *Store) ListClients(ctx context.Context) ([]*storage.Client, error) {
	ids, err := s.client.Do(ctx, s.client.B().Smembers().Key(s.clientSetKey()).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}

	clients := make([]*storage.Client, 0, len(ids))
	for _, id := range ids {
		client, err := s.GetClient(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrClientNotFound) {
				continue
			}
			return nil, err
		}
		clients = append(clients, client)
	}
	return clients, nil
}
