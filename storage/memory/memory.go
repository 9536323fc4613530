package memory

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soundbridge/oauth/storage"
)

// Compile-time interface checks
var (
	_ storage.GrantStore  = (*Store)(nil)
	_ storage.TokenStore  = (*Store)(nil)
	_ storage.ClientStore = (*Store)(nil)
	_ storage.Store       = (*Store)(nil)
)

// DefaultCleanupInterval is how often the background sweep runs.
const DefaultCleanupInterval = time.Minute

// Store is an in-memory implementation of all storage interfaces.
type Store struct {
	mu      sync.RWMutex
	grants  map[string]*storage.PendingGrant      // keyed by temp code
	codes   map[string]*storage.AuthorizationCode // keyed by code
	tokens  map[string]*storage.TokenRecord       // keyed by user ID
	clients map[string]*storage.Client            // keyed by client ID

	// Gauges for instrumentation
	grantCount atomic.Int64
	codeCount  atomic.Int64
	tokenCount atomic.Int64

	logger *slog.Logger

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// New creates a store with the default cleanup interval.
func New() *Store {
	return NewWithInterval(DefaultCleanupInterval)
}

// NewWithInterval creates a store whose background sweep runs every
// interval. A non-positive interval disables the sweep; expiry is then
// enforced only lazily at lookup.
func NewWithInterval(interval time.Duration) *Store {
	s := &Store{
		grants:          make(map[string]*storage.PendingGrant),
		codes:           make(map[string]*storage.AuthorizationCode),
		tokens:          make(map[string]*storage.TokenRecord),
		clients:         make(map[string]*storage.Client),
		logger:          slog.Default(),
		cleanupInterval: interval,
		stopCleanup:     make(chan struct{}),
	}
	if interval > 0 {
		go s.cleanupLoop()
	}
	return s
}

// SetLogger replaces the store's logger.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Stop terminates the background cleanup goroutine. Safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// Counts returns the current number of pending grants, authorization codes,
// and token records. Used for storage size gauges.
func (s *Store) Counts() (grants, codes, tokens int64) {
	return s.grantCount.Load(), s.codeCount.Load(), s.tokenCount.Load()
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cleanupExpired()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanupExpired sweeps expired grants, codes, and token records whose
// refresh lifetime has also elapsed. Records with a live refresh token stay:
// an expired access token is still refreshable.
func (s *Store) cleanupExpired() {
	now := time.Now()
	var grants, codes, tokens int

	s.mu.Lock()
	for key, grant := range s.grants {
		if now.After(grant.ExpiresAt) {
			delete(s.grants, key)
			grants++
		}
	}
	for key, code := range s.codes {
		if now.After(code.ExpiresAt) {
			delete(s.codes, key)
			codes++
		}
	}
	for key, record := range s.tokens {
		if !record.RefreshExpiresAt.IsZero() && now.After(record.RefreshExpiresAt) {
			delete(s.tokens, key)
			tokens++
		}
	}
	s.mu.Unlock()

	s.grantCount.Add(int64(-grants))
	s.codeCount.Add(int64(-codes))
	s.tokenCount.Add(int64(-tokens))

	if grants > 0 || codes > 0 || tokens > 0 {
		s.logger.Debug("Cleaned up expired records",
			"pending_grants", grants,
			"authorization_codes", codes,
			"token_records", tokens)
	}
}

// ==================== GrantStore ====================

// SavePendingGrant stores a pending grant keyed by its temp code.
func (s *Store) SavePendingGrant(ctx context.Context, grant *storage.PendingGrant) error {
	g := *grant
	s.mu.Lock()
	_, existed := s.grants[g.TempCode]
	s.grants[g.TempCode] = &g
	s.mu.Unlock()
	if !existed {
		s.grantCount.Add(1)
	}
	return nil
}

// GetPendingGrant returns the grant without consuming it. Expiry is not
// enforced here; TakePendingGrant and the background sweep handle it.
func (s *Store) GetPendingGrant(ctx context.Context, tempCode string) (*storage.PendingGrant, error) {
	s.mu.RLock()
	grant, ok := s.grants[tempCode]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrGrantNotFound
	}
	g := *grant
	return &g, nil
}

// TakePendingGrant atomically retrieves and deletes the grant. The lookup
// and delete happen under one write lock so concurrent approvals of the same
// temp code observe exactly one success.
func (s *Store) TakePendingGrant(ctx context.Context, tempCode string) (*storage.PendingGrant, error) {
	s.mu.Lock()
	grant, ok := s.grants[tempCode]
	if ok {
		delete(s.grants, tempCode)
	}
	s.mu.Unlock()
	if !ok {
		return nil, storage.ErrGrantNotFound
	}
	s.grantCount.Add(-1)
	if grant.IsExpired() {
		return nil, storage.ErrGrantExpired
	}
	g := *grant
	return &g, nil
}

// SaveAuthorizationCode stores an authorization code keyed by its code value.
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	c := *code
	s.mu.Lock()
	_, existed := s.codes[c.Code]
	s.codes[c.Code] = &c
	s.mu.Unlock()
	if !existed {
		s.codeCount.Add(1)
	}
	return nil
}

// TakeAuthorizationCode atomically retrieves and deletes the code, enforcing
// single-use redemption.
func (s *Store) TakeAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	s.mu.Lock()
	record, ok := s.codes[code]
	if ok {
		delete(s.codes, code)
	}
	s.mu.Unlock()
	if !ok {
		return nil, storage.ErrCodeNotFound
	}
	s.codeCount.Add(-1)
	if record.IsExpired() {
		return nil, storage.ErrCodeExpired
	}
	c := *record
	return &c, nil
}

// ==================== TokenStore ====================

// SaveTokenRecord stores the record, overwriting any prior record for the
// same user.
func (s *Store) SaveTokenRecord(ctx context.Context, record *storage.TokenRecord) error {
	r := *record
	s.mu.Lock()
	_, existed := s.tokens[r.UserID]
	s.tokens[r.UserID] = &r
	s.mu.Unlock()
	if !existed {
		s.tokenCount.Add(1)
	}
	return nil
}

// GetTokenRecord returns the record for userID.
func (s *Store) GetTokenRecord(ctx context.Context, userID string) (*storage.TokenRecord, error) {
	s.mu.RLock()
	record, ok := s.tokens[userID]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrTokenNotFound
	}
	r := *record
	return &r, nil
}

// GetByAccessToken scans for the record carrying accessToken. Linear scan is
// acceptable at this store's cardinality (one record per linked user).
func (s *Store) GetByAccessToken(ctx context.Context, accessToken string) (*storage.TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, record := range s.tokens {
		if record.AccessToken == accessToken {
			r := *record
			return &r, nil
		}
	}
	return nil, storage.ErrTokenNotFound
}

// GetByRefreshToken scans for the record matching both refreshToken and
// clientID.
func (s *Store) GetByRefreshToken(ctx context.Context, refreshToken, clientID string) (*storage.TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, record := range s.tokens {
		if record.RefreshToken == refreshToken && record.ClientID == clientID {
			r := *record
			return &r, nil
		}
	}
	return nil, storage.ErrTokenNotFound
}

// DeleteTokenRecord removes the record for userID.
func (s *Store) DeleteTokenRecord(ctx context.Context, userID string) error {
	s.mu.Lock()
	_, ok := s.tokens[userID]
	if ok {
		delete(s.tokens, userID)
	}
	s.mu.Unlock()
	if ok {
		s.tokenCount.Add(-1)
	}
	return nil
}

// ==================== ClientStore ====================

// RegisterClient adds a client to the registry.
func (s *Store) RegisterClient(ctx context.Context, client *storage.Client) error {
	c := *client
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.clients[c.ClientID]; exists {
		return storage.ErrClientExists
	}
	s.clients[c.ClientID] = &c
	return nil
}

// GetClient returns the client for clientID.
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	s.mu.RLock()
	client, ok := s.clients[clientID]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrClientNotFound
	}
	c := *client
	return &c, nil
}

// ListClients returns all registered clients.
func (s *Store) ListClients(ctx context.Context) ([]*storage.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clients := make([]*storage.Client, 0, len(s.clients))
	for _, client := range s.clients {
		c := *client
		clients = append(clients, &c)
	}
	return clients, nil
}
