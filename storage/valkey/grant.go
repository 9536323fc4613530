package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/soundbridge/oauth/storage"
)

// ============================================================
// GrantStore Implementation
// ============================================================

// pendingGrantJSON is the JSON representation of a pending grant.
// Times are unix seconds so the atomic take script can compare them.
type pendingGrantJSON struct {
	TempCode            string `json:"temp_code"`
	ClientID            string `json:"client_id"`
	RedirectURI         string `json:"redirect_uri"`
	State               string `json:"state"`
	Scope               string `json:"scope,omitempty"`
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
	CreatedAt           int64  `json:"created_at"`
	ExpiresAt           int64  `json:"expires_at"`
}

func toPendingGrantJSON(g *storage.PendingGrant) *pendingGrantJSON {
	return &pendingGrantJSON{
		TempCode:            g.TempCode,
		ClientID:            g.ClientID,
		RedirectURI:         g.RedirectURI,
		State:               g.State,
		Scope:               g.Scope,
		CodeChallenge:       g.CodeChallenge,
		CodeChallengeMethod: g.CodeChallengeMethod,
		CreatedAt:           g.CreatedAt.Unix(),
		ExpiresAt:           g.ExpiresAt.Unix(),
	}
}

func fromPendingGrantJSON(j *pendingGrantJSON) *storage.PendingGrant {
	return &storage.PendingGrant{
		TempCode:            j.TempCode,
		ClientID:            j.ClientID,
		RedirectURI:         j.RedirectURI,
		State:               j.State,
		Scope:               j.Scope,
		CodeChallenge:       j.CodeChallenge,
		CodeChallengeMethod: j.CodeChallengeMethod,
		CreatedAt:           time.Unix(j.CreatedAt, 0),
		ExpiresAt:           time.Unix(j.ExpiresAt, 0),
	}
}

// SavePendingGrant stores a pending grant with a TTL matching its expiry.
func (s *Store) SavePendingGrant(ctx context.Context, grant *storage.PendingGrant) error {
	if grant == nil || grant.TempCode == "" {
		return fmt.Errorf("invalid pending grant")
	}

	data, err := json.Marshal(toPendingGrantJSON(grant))
	if err != nil {
		return fmt.Errorf("failed to marshal pending grant: %w", err)
	}

	ttl := calculateTTL(grant.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("pending grant already expired")
	}

	key := s.grantKey(grant.TempCode)
	if err := s.client.Do(ctx,
		s.client.B().Set().Key(key).Value(string(data)).Ex(ttl).Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to save pending grant: %w", err)
	}

	s.logger.Debug("Saved pending grant",
		"client_id", grant.ClientID,
		"temp_code_prefix", safeTruncate(grant.TempCode, tokenIDLogLength))
	return nil
}

// GetPendingGrant retrieves a pending grant without consuming it. Expiry is
// not enforced here: the native key TTL removes most expired grants, and the
// take script settles any straggler against the embedded expiry.
func (s *Store) GetPendingGrant(ctx context.Context, tempCode string) (*storage.PendingGrant, error) {
	key := s.grantKey(tempCode)

	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrGrantNotFound
		}
		return nil, fmt.Errorf("failed to get pending grant: %w", err)
	}

	var j pendingGrantJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending grant: %w", err)
	}

	return fromPendingGrantJSON(&j), nil
}

// TakePendingGrant atomically retrieves and deletes a pending grant.
// The Lua script guarantees at most one success across all server instances.
func (s *Store) TakePendingGrant(ctx context.Context, tempCode string) (*storage.PendingGrant, error) {
	data, err := s.atomicTake(ctx, s.grantKey(tempCode), storage.ErrGrantNotFound, storage.ErrGrantExpired)
	if err != nil {
		return nil, err
	}

	var j pendingGrantJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending grant: %w", err)
	}

	s.logger.Debug("Consumed pending grant",
		"client_id", j.ClientID,
		"temp_code_prefix", safeTruncate(tempCode, tokenIDLogLength))
	return fromPendingGrantJSON(&j), nil
}

// authorizationCodeJSON is the JSON representation of an authorization code.
type authorizationCodeJSON struct {
	Code                string `json:"code"`
	ClientID            string `json:"client_id"`
	RedirectURI         string `json:"redirect_uri"`
	Scope               string `json:"scope,omitempty"`
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
	UserID              string `json:"user_id"`
	CreatedAt           int64  `json:"created_at"`
	ExpiresAt           int64  `json:"expires_at"`
}

func toAuthorizationCodeJSON(c *storage.AuthorizationCode) *authorizationCodeJSON {
	return &authorizationCodeJSON{
		Code:                c.Code,
		ClientID:            c.ClientID,
		RedirectURI:         c.RedirectURI,
		Scope:               c.Scope,
		CodeChallenge:       c.CodeChallenge,
		CodeChallengeMethod: c.CodeChallengeMethod,
		UserID:              c.UserID,
		CreatedAt:           c.CreatedAt.Unix(),
		ExpiresAt:           c.ExpiresAt.Unix(),
	}
}

func fromAuthorizationCodeJSON(j *authorizationCodeJSON) *storage.AuthorizationCode {
	return &storage.AuthorizationCode{
		Code:                j.Code,
		ClientID:            j.ClientID,
		RedirectURI:         j.RedirectURI,
		Scope:               j.Scope,
		CodeChallenge:       j.CodeChallenge,
		CodeChallengeMethod: j.CodeChallengeMethod,
		UserID:              j.UserID,
		CreatedAt:           time.Unix(j.CreatedAt, 0),
		ExpiresAt:           time.Unix(j.ExpiresAt, 0),
	}
}

// SaveAuthorizationCode stores an authorization code with a TTL matching its expiry.
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	if code == nil || code.Code == "" {
		return fmt.Errorf("invalid authorization code")
	}

	data, err := json.Marshal(toAuthorizationCodeJSON(code))
	if err != nil {
		return fmt.Errorf("failed to marshal authorization code: %w", err)
	}

	ttl := calculateTTL(code.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("authorization code already expired")
	}

	key := s.codeKey(code.Code)
	if err := s.client.Do(ctx,
		s.client.B().Set().Key(key).Value(string(data)).Ex(ttl).Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to save authorization code: %w", err)
	}

	s.logger.Debug("Saved authorization code",
		"client_id", code.ClientID,
		"code_prefix", safeTruncate(code.Code, tokenIDLogLength))
	return nil
}

// TakeAuthorizationCode atomically retrieves and deletes an authorization
// code. Only ONE concurrent redemption can succeed; all others observe
// ErrCodeNotFound.
func (s *Store) TakeAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	data, err := s.atomicTake(ctx, s.codeKey(code), storage.ErrCodeNotFound, storage.ErrCodeExpired)
	if err != nil {
		return nil, err
	}

	var j authorizationCodeJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorization code: %w", err)
	}

	s.logger.Debug("Redeemed authorization code",
		"client_id", j.ClientID,
		"code_prefix", safeTruncate(code, tokenIDLogLength))
	return fromAuthorizationCodeJSON(&j), nil
}
