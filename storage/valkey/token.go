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
// TokenStore Implementation
// ============================================================

// tokenRecordJSON is the JSON representation of a token record.
type tokenRecordJSON struct {
	UserID           string `json:"user_id"`
	ClientID         string `json:"client_id"`
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	Scope            string `json:"scope,omitempty"`
	ExpiresAt        int64  `json:"expires_at"`
	RefreshExpiresAt int64  `json:"refresh_expires_at,omitempty"`
	CreatedAt        int64  `json:"created_at"`
}

func toTokenRecordJSON(r *storage.TokenRecord) *tokenRecordJSON {
	j := &tokenRecordJSON{
		UserID:       r.UserID,
		ClientID:     r.ClientID,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		Scope:        r.Scope,
		ExpiresAt:    r.ExpiresAt.Unix(),
		CreatedAt:    r.CreatedAt.Unix(),
	}
	if !r.RefreshExpiresAt.IsZero() {
		j.RefreshExpiresAt = r.RefreshExpiresAt.Unix()
	}
	return j
}

func fromTokenRecordJSON(j *tokenRecordJSON) *storage.TokenRecord {
	r := &storage.TokenRecord{
		UserID:       j.UserID,
		ClientID:     j.ClientID,
		AccessToken:  j.AccessToken,
		RefreshToken: j.RefreshToken,
		Scope:        j.Scope,
		ExpiresAt:    time.Unix(j.ExpiresAt, 0),
		CreatedAt:    time.Unix(j.CreatedAt, 0),
	}
	if j.RefreshExpiresAt > 0 {
		r.RefreshExpiresAt = time.Unix(j.RefreshExpiresAt, 0)
	}
	return r
}

// recordTTL derives the key TTL for a token record. The record must outlive
// the access token so it stays refreshable; it is bounded by the refresh
// token lifetime when one is set.
func recordTTL(r *storage.TokenRecord) time.Duration {
	if r.RefreshExpiresAt.IsZero() {
		return 0 // no expiry, refresh token lives forever
	}
	return calculateTTL(r.RefreshExpiresAt)
}

// SaveTokenRecord stores the record keyed by user ID, overwriting any prior
// record for the same user. Reverse-lookup keys are maintained for the
// access and refresh token values; stale indexes from the overwritten
// record are removed first.
func (s *Store) SaveTokenRecord(ctx context.Context, record *storage.TokenRecord) error {
	if record == nil || record.UserID == "" {
		return fmt.Errorf("invalid token record")
	}

	// Drop reverse indexes of the record being overwritten
	if old, err := s.GetTokenRecord(ctx, record.UserID); err == nil {
		if old.AccessToken != record.AccessToken {
			if err := s.client.Do(ctx, s.client.B().Del().Key(s.accessIndexKey(old.AccessToken)).Build()).Error(); err != nil {
				s.logger.Warn("Failed to delete stale access token index", "error", err)
			}
		}
		if old.RefreshToken != record.RefreshToken {
			if err := s.client.Do(ctx, s.client.B().Del().Key(s.refreshIndexKey(old.RefreshToken)).Build()).Error(); err != nil {
				s.logger.Warn("Failed to delete stale refresh token index", "error", err)
			}
		}
	}

	data, err := json.Marshal(toTokenRecordJSON(record))
	if err != nil {
		return fmt.Errorf("failed to marshal token record: %w", err)
	}

	ttl := recordTTL(record)
	key := s.tokenKey(record.UserID)

	if ttl > 0 {
		err = s.client.Do(ctx, s.client.B().Set().Key(key).Value(string(data)).Ex(ttl).Build()).Error()
	} else {
		err = s.client.Do(ctx, s.client.B().Set().Key(key).Value(string(data)).Build()).Error()
	}
	if err != nil {
		return fmt.Errorf("failed to save token record: %w", err)
	}

	// Reverse indexes share the record's lifetime
	for _, idx := range []struct{ key, val string }{
		{s.accessIndexKey(record.AccessToken), record.UserID},
		{s.refreshIndexKey(record.RefreshToken), record.UserID},
	} {
		if ttl > 0 {
			err = s.client.Do(ctx, s.client.B().Set().Key(idx.key).Value(idx.val).Ex(ttl).Build()).Error()
		} else {
			err = s.client.Do(ctx, s.client.B().Set().Key(idx.key).Value(idx.val).Build()).Error()
		}
		if err != nil {
			return fmt.Errorf("failed to save token index: %w", err)
		}
	}

	s.logger.Debug("Saved token record",
		"user_id", record.UserID,
		"client_id", record.ClientID)
	return nil
}

// GetTokenRecord retrieves the record for userID.
func (s *Store) GetTokenRecord(ctx context.Context, userID string) (*storage.TokenRecord, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(s.tokenKey(userID)).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token record: %w", err)
	}

	var j tokenRecordJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token record: %w", err)
	}
	return fromTokenRecordJSON(&j), nil
}

// GetByAccessToken resolves the access token through its reverse index.
func (s *Store) GetByAccessToken(ctx context.Context, accessToken string) (*storage.TokenRecord, error) {
	userID, err := s.client.Do(ctx, s.client.B().Get().Key(s.accessIndexKey(accessToken)).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get access token index: %w", err)
	}

	record, err := s.GetTokenRecord(ctx, userID)
	if err != nil {
		return nil, err
	}
	// Index may lag a rotation; the record is authoritative
	if record.AccessToken != accessToken {
		return nil, storage.ErrTokenNotFound
	}
	return record, nil
}

// GetByRefreshToken resolves the refresh token through its reverse index and
// verifies the client binding.
func (s *Store) GetByRefreshToken(ctx context.Context, refreshToken, clientID string) (*storage.TokenRecord, error) {
	userID, err := s.client.Do(ctx, s.client.B().Get().Key(s.refreshIndexKey(refreshToken)).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token index: %w", err)
	}

	record, err := s.GetTokenRecord(ctx, userID)
	if err != nil {
		return nil, err
	}
	if record.RefreshToken != refreshToken || record.ClientID != clientID {
		return nil, storage.ErrTokenNotFound
	}
	return record, nil
}

// DeleteTokenRecord removes the record and its reverse indexes.
func (s *Store) DeleteTokenRecord(ctx context.Context, userID string) error {
	record, err := s.GetTokenRecord(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return nil
		}
		return err
	}

	keys := []string{
		s.tokenKey(userID),
		s.accessIndexKey(record.AccessToken),
		s.refreshIndexKey(record.RefreshToken),
	}
	for _, key := range keys {
		if err := s.client.Do(ctx, s.client.B().Del().Key(key).Build()).Error(); err != nil {
			return fmt.Errorf("failed to delete token record: %w", err)
		}
	}

	s.logger.Debug("Deleted token record", "user_id", userID)
	return nil
}
