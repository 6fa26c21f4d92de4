// Package common contains shared constants and sentinel errors used across
// invoicekeeper components.
package common

// Outbound HTTP header names.
const (
	AuthorizationHeaderName = "Authorization"
	RequestIDHeaderName     = "X-Request-ID"
	BearerPrefix            = "Bearer "
)

// Metadata keys under which the session token is persisted locally.
const (
	TokenStorageKey       = "auth_token"
	TokenExpiryStorageKey = "auth_token_expires"
)
