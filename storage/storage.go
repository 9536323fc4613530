package storage

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by storage implementations.
var (
	// ErrGrantNotFound indicates the temp code does not key a pending grant
	// (never issued, already consumed, or purged).
	ErrGrantNotFound = errors.New("pending grant not found")

	// ErrGrantExpired indicates the pending grant's lifetime elapsed.
	// Returned by TakePendingGrant, which deletes the grant as a side effect.
	ErrGrantExpired = errors.New("pending grant expired")

	// ErrCodeNotFound indicates the authorization code does not exist or was
	// already redeemed.
	ErrCodeNotFound = errors.New("authorization code not found")

	// ErrCodeExpired indicates the authorization code's lifetime elapsed.
	// The code is deleted as a side effect of the lookup that detected it.
	ErrCodeExpired = errors.New("authorization code expired")

	// ErrTokenNotFound indicates no token record matched the lookup.
	ErrTokenNotFound = errors.New("token record not found")

	// ErrClientNotFound indicates the client ID is not registered.
	ErrClientNotFound = errors.New("client not found")

	// ErrClientExists indicates a duplicate client registration.
	ErrClientExists = errors.New("client already registered")
)

// Client types per RFC 6749 section 2.1.
const (
	ClientTypePublic       = "public"
	ClientTypeConfidential = "confidential"
)

// Client represents a registered relying party. The registry is loaded once
// at startup and is immutable for the process lifetime.
type Client struct {
	// ClientID is the unique client identifier
	ClientID string

	// ClientType is "public" or "confidential"
	ClientType string

	// ClientSecret is the shared secret for confidential clients configured
	// in plaintext. Empty when ClientSecretHash is set or the client is public.
	ClientSecret string

	// ClientSecretHash is the bcrypt hash of the client secret. Preferred
	// over ClientSecret for registries that hash secrets at rest.
	ClientSecretHash []byte

	// RedirectURIs is the set of allowed callback URLs
	RedirectURIs []string

	// Name is an optional human-readable client name shown on the consent page
	Name string

	// CreatedAt is when the client was registered
	CreatedAt time.Time
}

// IsPublic reports whether the client authenticates without a secret.
func (c *Client) IsPublic() bool {
	return c.ClientType != ClientTypeConfidential
}

// PendingGrant represents an authorization request awaiting human consent.
// It exists only between initiation and approval or expiry.
type PendingGrant struct {
	// TempCode is the opaque secret token keying this grant
	TempCode string

	// ClientID is the requesting client
	ClientID string

	// RedirectURI is the callback URL supplied at initiation
	RedirectURI string

	// State is the caller-supplied CSRF token, echoed back on approval
	State string

	// Scope is the requested scope string
	Scope string

	// CodeChallenge is the PKCE challenge, empty if the client omitted PKCE
	CodeChallenge string

	// CodeChallengeMethod is the PKCE method ("S256")
	CodeChallengeMethod string

	// CreatedAt is when the grant was created
	CreatedAt time.Time

	// ExpiresAt is creation time plus the pending grant TTL
	ExpiresAt time.Time
}

// IsExpired reports whether the grant's lifetime has elapsed.
func (g *PendingGrant) IsExpired() bool {
	return time.Now().After(g.ExpiresAt)
}

// AuthorizationCode represents an approved, not-yet-redeemed grant.
// Redemption is single-use and must match the recorded client and redirect URI.
type AuthorizationCode struct {
	// Code is the opaque secret token keying this record
	Code string

	// ClientID is the client the code was issued to
	ClientID string

	// RedirectURI is the callback URL recorded at issuance
	RedirectURI string

	// Scope is the granted scope string
	Scope string

	// CodeChallenge is carried over from the pending grant; PKCE is enforced
	// at redemption only when non-empty
	CodeChallenge string

	// CodeChallengeMethod is the PKCE method ("S256")
	CodeChallengeMethod string

	// UserID is the identity bound by the consent step
	UserID string

	// CreatedAt is when the code was issued
	CreatedAt time.Time

	// ExpiresAt is issuance time plus the authorization code TTL
	ExpiresAt time.Time
}

// IsExpired reports whether the code's lifetime has elapsed.
func (c *AuthorizationCode) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

// TokenRecord is the delegated-access credential set for one user/client
// pairing. At most one record exists per user: a later issuance for the same
// user overwrites the prior record.
type TokenRecord struct {
	// UserID keys the record
	UserID string

	// ClientID is the client the tokens were issued to
	ClientID string

	// AccessToken is the opaque bearer credential; replaced on every refresh
	AccessToken string

	// RefreshToken is the opaque refresh credential; stable for the record's
	// lifetime
	RefreshToken string

	// Scope is the granted scope string
	Scope string

	// ExpiresAt is the access token expiry (issue/refresh time plus TTL)
	ExpiresAt time.Time

	// RefreshExpiresAt bounds the refresh token's lifetime. Zero means the
	// refresh token never expires.
	RefreshExpiresAt time.Time

	// CreatedAt is when the record was first issued
	CreatedAt time.Time
}

// GrantStore manages pending grants and authorization codes.
type GrantStore interface {
	// SavePendingGrant stores a pending grant keyed by its temp code.
	SavePendingGrant(ctx context.Context, grant *PendingGrant) error

	// GetPendingGrant returns the pending grant for tempCode without
	// consuming it. Returns ErrGrantNotFound if absent. Expiry is not
	// enforced here: an expired grant is returned as-is so callers can
	// validate the request against it before deciding its fate.
	GetPendingGrant(ctx context.Context, tempCode string) (*PendingGrant, error)

	// TakePendingGrant atomically retrieves and deletes the pending grant.
	// Concurrent callers observe at most one success; losers get
	// ErrGrantNotFound. Expired grants are deleted and reported as
	// ErrGrantExpired.
	TakePendingGrant(ctx context.Context, tempCode string) (*PendingGrant, error)

	// SaveAuthorizationCode stores an authorization code keyed by its code.
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// TakeAuthorizationCode atomically retrieves and deletes the
	// authorization code, enforcing single-use redemption. Concurrent
	// callers observe at most one success; losers get ErrCodeNotFound.
	// Expired codes are deleted and reported as ErrCodeExpired.
	TakeAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)
}

// TokenStore manages issued token records.
type TokenStore interface {
	// SaveTokenRecord stores the record, overwriting any prior record for
	// the same user.
	SaveTokenRecord(ctx context.Context, record *TokenRecord) error

	// GetTokenRecord returns the record for userID, or ErrTokenNotFound.
	GetTokenRecord(ctx context.Context, userID string) (*TokenRecord, error)

	// GetByAccessToken returns the record carrying accessToken, or
	// ErrTokenNotFound. Expiry is not checked here; the verifier applies
	// its own clock-skew policy.
	GetByAccessToken(ctx context.Context, accessToken string) (*TokenRecord, error)

	// GetByRefreshToken returns the record matching both refreshToken and
	// clientID, or ErrTokenNotFound.
	GetByRefreshToken(ctx context.Context, refreshToken, clientID string) (*TokenRecord, error)

	// DeleteTokenRecord removes the record for userID. Deleting a missing
	// record is not an error.
	DeleteTokenRecord(ctx context.Context, userID string) error
}

// ClientStore manages the registered client set.
type ClientStore interface {
	// RegisterClient adds a client. Returns ErrClientExists on duplicate ID.
	RegisterClient(ctx context.Context, client *Client) error

	// GetClient returns the client for clientID, or ErrClientNotFound.
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// ListClients returns all registered clients.
	ListClients(ctx context.Context) ([]*Client, error)
}

// Store combines all three interfaces; both provided backends implement it.
type Store interface {
	GrantStore
	TokenStore
	ClientStore
}
