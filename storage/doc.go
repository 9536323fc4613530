// Package storage defines the persistence interfaces for the authorization
// server's three ephemeral record types:
//   - GrantStore: pending grants awaiting consent and redeemable authorization codes
//   - TokenStore: issued access/refresh token records, keyed by user
//   - ClientStore: registered relying parties
//
// All records are expiring key-value entries keyed by opaque token strings.
// The Take* operations are atomic get-and-delete and carry the single-use
// guarantees for grants and codes; callers must never emulate them with a
// separate Get followed by Delete.
//
// Implementations are provided in subpackages:
//   - storage/memory: mutex-protected maps for tests and single-instance deployments
//   - storage/valkey: Valkey/Redis-compatible distributed storage for production
package storage
