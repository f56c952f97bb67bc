// Package store materializes the product and sold-record collections from their
// key-value slots and writes them back as full snapshots.
//
// A Store is not safe for concurrent use; the ledger service serializes access.
package store

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/talkincode/stockledger/internal/domain"
	"github.com/talkincode/stockledger/internal/kvstore"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CorruptStateError reports a slot whose content could not be decoded.
type CorruptStateError struct {
	Key string
	Err error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("store: corrupt state in slot %q: %v", e.Key, e.Err)
}

func (e *CorruptStateError) Unwrap() error {
	return e.Err
}

type Store struct {
	backend kvstore.Backend
	lenient bool

	products []domain.Product
	sold     []domain.SoldRecord
	seq      int64
}

// Option configures a Store.
type Option func(*Store)

// WithLenientLoad makes Load replace an undecodable slot with an empty collection
// instead of failing.
func WithLenientLoad() Option {
	return func(s *Store) {
		s.lenient = true
	}
}

// Open builds a store over the backend and loads the persisted snapshot.
func Open(ctx context.Context, backend kvstore.Backend, opts ...Option) (*Store, error) {
	s := &Store{backend: backend}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Load replaces the in-memory collections with the persisted ones.
// Missing slots yield empty collections.
func (s *Store) Load(ctx context.Context) error {
	products, err := loadSlot[[]domain.Product](ctx, s, domain.SlotProducts)
	if err != nil {
		return err
	}
	sold, err := loadSlot[[]domain.SoldRecord](ctx, s, domain.SlotSoldRecords)
	if err != nil {
		return err
	}
	seq, err := loadSlot[int64](ctx, s, domain.SlotProductSeq)
	if err != nil {
		return err
	}

	if products == nil {
		products = []domain.Product{}
	}
	if sold == nil {
		sold = []domain.SoldRecord{}
	}
	// seed the counter from existing ids so snapshots written without it keep working
	for _, p := range products {
		if p.ID > seq {
			seq = p.ID
		}
	}

	s.products = products
	s.sold = sold
	s.seq = seq

	zap.L().Debug("ledger snapshot loaded",
		zap.String("namespace", "store"),
		zap.Int("products", len(products)),
		zap.Int("sold_records", len(sold)),
		zap.Int64("seq", seq),
	)
	return nil
}

// loadSlot decodes one slot into a fresh value. A lenient store discards a slot
// that fails to decode entirely, never a partial result.
func loadSlot[T any](ctx context.Context, s *Store, key string) (T, error) {
	var zero T
	data, err := s.backend.Get(ctx, key)
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return zero, nil
	}
	if err != nil {
		return zero, errors.Wrapf(err, "store: read %s", key)
	}
	if len(data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		corrupt := &CorruptStateError{Key: key, Err: err}
		if !s.lenient {
			return zero, corrupt
		}
		zap.L().Warn("discarding corrupt ledger slot",
			zap.String("namespace", "store"),
			zap.String("key", key),
			zap.Error(err),
		)
		return zero, nil
	}
	return v, nil
}

// FlushProducts overwrites the product slot and the id sequence.
func (s *Store) FlushProducts(ctx context.Context) error {
	values, err := s.encode(domain.SlotProducts, domain.SlotProductSeq)
	if err != nil {
		return err
	}
	return s.write(ctx, values)
}

// FlushSoldRecords overwrites the sold-record slot.
func (s *Store) FlushSoldRecords(ctx context.Context) error {
	values, err := s.encode(domain.SlotSoldRecords)
	if err != nil {
		return err
	}
	return s.write(ctx, values)
}

// Flush overwrites every slot in one backend batch.
func (s *Store) Flush(ctx context.Context) error {
	values, err := s.encode(domain.Slots...)
	if err != nil {
		return err
	}
	return s.write(ctx, values)
}

func (s *Store) encode(keys ...string) (map[string][]byte, error) {
	values := make(map[string][]byte, len(keys))
	for _, key := range keys {
		var v interface{}
		switch key {
		case domain.SlotProducts:
			v = s.products
		case domain.SlotSoldRecords:
			v = s.sold
		case domain.SlotProductSeq:
			v = s.seq
		default:
			return nil, errors.Errorf("store: unknown slot %s", key)
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrapf(err, "store: encode %s", key)
		}
		values[key] = data
	}
	return values, nil
}

func (s *Store) write(ctx context.Context, values map[string][]byte) error {
	if err := s.backend.PutBatch(ctx, values); err != nil {
		return errors.Wrap(err, "store: write snapshot")
	}
	return nil
}

// Products returns the live product collection.
func (s *Store) Products() []domain.Product {
	return s.products
}

func (s *Store) SetProducts(products []domain.Product) {
	s.products = products
}

// SoldRecords returns the live sold-record collection.
func (s *Store) SoldRecords() []domain.SoldRecord {
	return s.sold
}

func (s *Store) SetSoldRecords(sold []domain.SoldRecord) {
	s.sold = sold
}

// NextID hands out the id for a new product. The monotonic counter never reuses an
// id; legacy numbering is the current count plus one and can collide after deletes.
func (s *Store) NextID(legacy bool) int64 {
	var id int64
	if legacy {
		id = int64(len(s.products)) + 1
	} else {
		id = s.seq + 1
	}
	if id > s.seq {
		s.seq = id
	}
	return id
}

// Seq returns the last id handed out by the counter.
func (s *Store) Seq() int64 {
	return s.seq
}

// Snapshot is a deep copy of the store state.
type Snapshot struct {
	products []domain.Product
	sold     []domain.SoldRecord
	seq      int64
}

func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		products: append([]domain.Product{}, s.products...),
		sold:     append([]domain.SoldRecord{}, s.sold...),
		seq:      s.seq,
	}
}

// Restore puts the state back to a snapshot.
func (s *Store) Restore(snap Snapshot) {
	s.products = snap.products
	s.sold = snap.sold
	s.seq = snap.seq
}
