package db

import (
	"context"
	"time"
)

type timeoutStore struct {
	Store
	timeout time.Duration
}

// WithTimeout bounds every store operation by d.
func WithTimeout(s Store, d time.Duration) Store {
	return &timeoutStore{Store: s, timeout: d}
}

func (t *timeoutStore) Get(ctx context.Context, path string) (Document, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Store.Get(ctx, path)
}

func (t *timeoutStore) Set(ctx context.Context, path string, data Document, merge bool) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Store.Set(ctx, path, data, merge)
}

func (t *timeoutStore) Commit(ctx context.Context, writes []Write) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Store.Commit(ctx, writes)
}
