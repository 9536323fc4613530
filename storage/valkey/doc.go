// Package valkey provides a Valkey/Redis-compatible implementation of the
// storage interfaces for multi-instance deployments.
//
// Records are stored as JSON values with native TTLs matching their
// expires_at, so expired grants and codes are purged by the server itself
// with no sweep goroutine. The single-use Take* operations run as Lua
// scripts so that concurrent redemptions of the same grant or code observe
// exactly one success across all server instances.
//
// Token records are keyed by user ID with reverse-lookup keys for the access
// and refresh token values, replacing the in-memory backend's linear scans.
package valkey
