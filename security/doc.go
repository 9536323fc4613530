// Package security provides security functionality for the authorization
// server: rate limiting, client IP extraction, audit logging, request ID
// propagation, and secure response headers.
//
// The RateLimiter provides per-identifier token-bucket limiting with LRU
// eviction so tracked identifiers cannot grow without bound under
// distributed abuse. The Auditor logs security-relevant events with
// sensitive identifiers hashed before they reach the log stream.
package security
