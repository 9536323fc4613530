// Package instrumentation provides OpenTelemetry instrumentation for the
// authorization server: counters and histograms for OAuth operations and
// distributed tracing helpers.
//
// When disabled (or not configured at all) the package uses no-op providers,
// so instrumented code paths carry no overhead and need no nil checks.
//
// Available metrics:
//
// HTTP layer:
//   - oauth.http.requests.total{method, endpoint, status}
//   - oauth.http.request.duration{endpoint}
//
// OAuth flows:
//   - oauth.authorization.started{client_id}
//   - oauth.grant.approved{client_id}
//   - oauth.code.exchanged{client_id, pkce}
//   - oauth.token.refreshed{client_id}
//
// Security:
//   - oauth.rate_limit.exceeded{limiter_type}
//   - oauth.pkce.validation_failed
//   - oauth.csrf.mismatch
//   - oauth.code.reuse_detected
//
// Storage:
//   - storage.operation.total{operation, result}
//   - storage.operation.duration{operation}
//   - storage.size{type} via registered size callbacks
//
// Never record credential values (codes, tokens, verifiers, secrets) in
// metric labels or span attributes; only metadata such as client IDs, token
// types, and validation results.
package instrumentation
