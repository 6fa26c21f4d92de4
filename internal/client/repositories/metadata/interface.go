// Package metadata is the local key/value store. The session token and its
// expiry live here between runs.
package metadata

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("metadata key not found")

type Repository interface {
	// Get returns ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes the given keys; missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	// List returns all pairs whose key starts with prefix ("" for all).
	List(ctx context.Context, prefix string) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
