// Package testutil provides testing utilities and fixtures for the oauth
// library. It includes helpers for creating test data, assertions, and PKCE
// pairs for exercising the code exchange.
package testutil
