package kvstore

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var ledgerBucket = []byte("ledger")

// BoltBackend stores slots in one bucket of a bbolt file.
type BoltBackend struct {
	db *bolt.DB
}

// OpenBolt opens or creates the bolt file at path.
func OpenBolt(path string) (*BoltBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "kvstore: create data dir")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "kvstore: open %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(ledgerBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "kvstore: create bucket")
	}
	zap.L().Info("bolt backend opened", zap.String("namespace", "kvstore"), zap.String("path", path))
	return &BoltBackend{db: db}, nil
}

func (b *BoltBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var value []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(ledgerBucket).Get([]byte(key))
		if v == nil {
			return ErrKeyNotFound
		}
		// v is only valid inside the transaction
		value = append([]byte(nil), v...)
		return nil
	})
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return nil, ErrClosed
	}
	return value, err
}

func (b *BoltBackend) Put(ctx context.Context, key string, value []byte) error {
	return b.PutBatch(ctx, map[string][]byte{key: value})
}

func (b *BoltBackend) PutBatch(ctx context.Context, values map[string][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(ledgerBucket)
		for k, v := range values {
			if err := bucket.Put([]byte(k), v); err != nil {
				return errors.Wrapf(err, "put %s", k)
			}
		}
		return nil
	})
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return ErrClosed
	}
	return err
}

// Path returns the bolt file location.
func (b *BoltBackend) Path() string {
	return b.db.Path()
}

func (b *BoltBackend) Close() error {
	return b.db.Close()
}
