// Package models defines the wire and domain types of the invoice client:
// the response envelope, user identity, invoices, and form payloads.
package models
