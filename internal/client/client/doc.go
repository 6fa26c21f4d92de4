// Package client talks to the remote invoice API.
//
// # Overview
//
// The package provides:
//  1. The Client interface: authentication (Login, Register, Me,
//     ForgotPassword, ResetPassword) and invoice CRUD keyed by invoice number.
//  2. HTTPClient, a JSON-over-HTTP implementation. Every response is the
//     uniform envelope {success, message, data, errors}; a bearer token is
//     taken from a TokenSource and each request carries an X-Request-ID.
//  3. Local persistence bootstrap (InitDatabase, RunMigrations) for the
//     SQLite file that keeps the session token across runs.
//
// # Error Handling
//
// Every failed call returns *Error with a Kind:
//
//	KindNetwork     no response (transport error, timeout, TLS)
//	KindValidation  400/409/422, or success=false with field errors
//	KindAuth        401/403
//	KindNotFound    404
//	KindUnknown     anything else
//
// The sentinels ErrUnavailable, ErrUnauthorized, ErrNotFound and
// ErrValidation match the corresponding kinds through errors.Is.
// Error.Display picks the text a user should see.
//
// HTTPClient is safe for concurrent use. All operations honor ctx.
package client
