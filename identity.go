package oauth

import "net/http"

// IdentityResolver establishes the resource owner's identity for a consent
// approval. Implementations typically read a session cookie or an upstream
// auth proxy header; the server itself never runs a login flow.
type IdentityResolver interface {
	// ResolveIdentity returns the user ID for the request, or an error if
	// no identity could be established.
	ResolveIdentity(r *http.Request) (string, error)
}

// StaticIdentity resolves every request to a fixed user ID. It is the
// default resolver for single-user deployments and local development.
type StaticIdentity string

// DefaultUserID is the identity used when no resolver is configured
const DefaultUserID = "test_user"

// ResolveIdentity implements IdentityResolver
func (s StaticIdentity) ResolveIdentity(_ *http.Request) (string, error) {
	return string(s), nil
}

var _ IdentityResolver = StaticIdentity("")
