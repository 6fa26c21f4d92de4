package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/invoicekeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/invoicekeeper/internal/common"
	"github.com/dmitrijs2005/invoicekeeper/internal/dbx"
)

// TokenStore keeps the session token in the local metadata table and caches
// it in memory. It implements client.TokenSource.
type TokenStore struct {
	db *sql.DB

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{db: db}
}

// Load reads the persisted token and its expiry into the cache. A missing
// token yields "" and a zero time.
func (s *TokenStore) Load(ctx context.Context) (string, time.Time, error) {
	repo := metadata.NewSQLiteRepository(s.db)

	token, err := repo.Get(ctx, common.TokenStorageKey)
	if errors.Is(err, metadata.ErrNotFound) {
		s.set("", time.Time{})
		return "", time.Time{}, nil
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("load token: %w", err)
	}

	var exp time.Time
	raw, err := repo.Get(ctx, common.TokenExpiryStorageKey)
	switch {
	case errors.Is(err, metadata.ErrNotFound):
	case err != nil:
		return "", time.Time{}, fmt.Errorf("load token expiry: %w", err)
	default:
		// An unreadable expiry only means it is unknown.
		exp, _ = time.Parse(time.RFC3339Nano, string(raw))
	}

	s.set(string(token), exp)
	return string(token), exp, nil
}

// Save persists token and expiry atomically. A zero expiry is stored as
// unknown.
func (s *TokenStore) Save(ctx context.Context, token string, expiresAt time.Time) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		if err := repo.Set(ctx, common.TokenStorageKey, []byte(token)); err != nil {
			return err
		}
		if expiresAt.IsZero() {
			return repo.Delete(ctx, common.TokenExpiryStorageKey)
		}
		return repo.Set(ctx, common.TokenExpiryStorageKey, []byte(expiresAt.UTC().Format(time.RFC3339Nano)))
	})
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}

	s.set(token, expiresAt)
	return nil
}

// Clear forgets the token. The cache is emptied even if the delete fails.
func (s *TokenStore) Clear(ctx context.Context) error {
	s.set("", time.Time{})

	repo := metadata.NewSQLiteRepository(s.db)
	if err := repo.Delete(ctx, common.TokenStorageKey, common.TokenExpiryStorageKey); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}

func (s *TokenStore) Token(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

func (s *TokenStore) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

func (s *TokenStore) set(token string, exp time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.expiresAt = exp
}
