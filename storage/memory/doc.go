// Package memory provides an in-memory implementation of the storage
// interfaces using mutex-protected maps.
//
// It is suitable for tests and single-instance deployments where persistence
// is not required. Expired grants and codes are purged lazily on lookup and
// proactively by a background cleanup goroutine; call Stop when done to
// release it.
//
// The single-use guarantees of TakePendingGrant and TakeAuthorizationCode
// are enforced by performing the lookup and delete under one write lock, so
// concurrent redemptions of the same code observe exactly one success.
//
// For multi-instance deployments use the storage/valkey package instead.
package memory
