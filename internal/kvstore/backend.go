// Package kvstore provides the key-value slots the ledger snapshots live in.
package kvstore

import (
	"context"
	"errors"
)

var (
	ErrKeyNotFound = errors.New("kvstore: key not found")
	ErrClosed      = errors.New("kvstore: backend is closed")
)

// Backend is a flat key-value store. Values are overwritten whole.
type Backend interface {
	// Get returns the stored value, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put overwrites one key.
	Put(ctx context.Context, key string, value []byte) error

	// PutBatch overwrites several keys atomically.
	PutBatch(ctx context.Context, values map[string][]byte) error

	// Close releases the backend.
	Close() error
}
