// Package ledger implements the product ledger operations over a store.
package ledger

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"sync"

	EventBus "github.com/asaskevich/EventBus"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/talkincode/stockledger/internal/domain"
	"github.com/talkincode/stockledger/internal/store"
)

type IDPolicy string

const (
	IDMonotonic IDPolicy = "monotonic"
	IDLegacy    IDPolicy = "legacy"
)

type StockPolicy string

const (
	StockAllow  StockPolicy = "allow"
	StockReject StockPolicy = "reject"
	StockClamp  StockPolicy = "clamp"
)

type AggregatePolicy string

const (
	AggregateSkip AggregatePolicy = "skip"
	AggregateNaN  AggregatePolicy = "nan"
)

// Service runs ledger operations. Each mutation holds the lock for its whole
// read-modify-persist cycle.
type Service struct {
	mu    sync.Mutex
	store *store.Store
	bus   EventBus.Bus

	idPolicy        IDPolicy
	stockPolicy     StockPolicy
	aggregatePolicy AggregatePolicy
}

// Option configures a Service.
type Option func(*Service)

func WithIDPolicy(p IDPolicy) Option {
	return func(s *Service) {
		s.idPolicy = p
	}
}

func WithStockPolicy(p StockPolicy) Option {
	return func(s *Service) {
		s.stockPolicy = p
	}
}

func WithAggregatePolicy(p AggregatePolicy) Option {
	return func(s *Service) {
		s.aggregatePolicy = p
	}
}

// WithEventBus publishes mutation events on bus.
func WithEventBus(bus EventBus.Bus) Option {
	return func(s *Service) {
		s.bus = bus
	}
}

func NewService(st *store.Store, opts ...Option) *Service {
	s := &Service{
		store:           st,
		idPolicy:        IDMonotonic,
		stockPolicy:     StockAllow,
		aggregatePolicy: AggregateSkip,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// mutate runs fn and flush under the lock. On error or panic the store is restored
// to its state before fn ran.
func (s *Service) mutate(ctx context.Context, op string, fn func() error, flush func(context.Context) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.store.Snapshot()
	defer func() {
		if r := recover(); r != nil {
			s.store.Restore(snap)
			zap.S().Errorf("%s panic: %v\n%s", op, r, debug.Stack())
			err = errors.Wrapf(ErrInternal, "%s: %v", op, r)
		}
	}()

	if err := fn(); err != nil {
		s.store.Restore(snap)
		return err
	}
	if err := flush(ctx); err != nil {
		s.store.Restore(snap)
		zap.L().Error("ledger flush failed", zap.String("namespace", "ledger"), zap.String("op", op), zap.Error(err))
		return &PersistenceError{Op: op, Err: err}
	}
	return nil
}

func indexOf(products []domain.Product, id int64) int {
	for i := range products {
		if products[i].ID == id {
			return i
		}
	}
	return -1
}

func soldIndexOf(sold []domain.SoldRecord, id int64) int {
	for i := range sold {
		if sold[i].ID == id {
			return i
		}
	}
	return -1
}

// AddProduct appends a new product with the next id.
func (s *Service) AddProduct(ctx context.Context, in domain.ProductInput) Result {
	if err := ValidateInput(in); err != nil {
		return fail(err, "")
	}

	var added domain.Product
	err := s.mutate(ctx, "add product", func() error {
		id := s.store.NextID(s.idPolicy == IDLegacy)
		added = domain.NewProduct(id, in)
		s.store.SetProducts(append(s.store.Products(), added))
		return nil
	}, s.store.FlushProducts)
	if err != nil {
		return fail(err, "")
	}

	zap.L().Info("product added", zap.String("namespace", "ledger"), zap.Int64("id", added.ID), zap.String("name", added.Name))
	s.publish(TopicProductAdded, ProductEvent{ProductID: added.ID, Product: added})
	return succeed(MsgProductAdded)
}

// UpdateProduct merges patch over the first product with the given id.
// A missing id is reported before any patch field is validated.
func (s *Service) UpdateProduct(ctx context.Context, id int64, patch domain.ProductPatch) Result {
	var updated domain.Product
	err := s.mutate(ctx, "update product", func() error {
		products := s.store.Products()
		idx := indexOf(products, id)
		if idx < 0 {
			return errors.Wrapf(ErrNotFound, "id %d", id)
		}
		if err := ValidatePatch(patch); err != nil {
			return err
		}
		patch.Apply(&products[idx])
		updated = products[idx]
		return nil
	}, s.store.FlushProducts)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return fail(err, MsgProductNotFound)
		}
		return fail(err, "")
	}

	zap.L().Info("product updated", zap.String("namespace", "ledger"), zap.Int64("id", id))
	s.publish(TopicProductUpdated, ProductEvent{ProductID: id, Product: updated})
	return succeed(MsgProductUpdated)
}

// DeleteProduct removes every product with the given id. A missing id is not an
// error. Sold records are kept.
func (s *Service) DeleteProduct(ctx context.Context, id int64) Result {
	var removed int
	err := s.mutate(ctx, "delete product", func() error {
		products := s.store.Products()
		kept := make([]domain.Product, 0, len(products))
		for _, p := range products {
			if p.ID != id {
				kept = append(kept, p)
			}
		}
		removed = len(products) - len(kept)
		s.store.SetProducts(kept)
		return nil
	}, s.store.FlushProducts)
	if err != nil {
		return fail(err, "")
	}

	zap.L().Info("product deleted", zap.String("namespace", "ledger"), zap.Int64("id", id), zap.Int("removed", removed))
	s.publish(TopicProductDeleted, ProductEvent{ProductID: id, Removed: removed})
	return succeed(MsgProductDeleted)
}

// OrderProduct takes quantity out of stock and adds quantity and totalPrice to the
// product's sold record, creating the record on first sale.
func (s *Service) OrderProduct(ctx context.Context, id int64, quantity, totalPrice float64) Result {
	if err := validateOrder(quantity, totalPrice); err != nil {
		return fail(err, "")
	}
	return s.order(ctx, id, quantity, &totalPrice)
}

// OrderProductAtListPrice orders quantity at the product's current unit price.
// The price is read under the same lock as the stock change.
func (s *Service) OrderProductAtListPrice(ctx context.Context, id int64, quantity float64) Result {
	if err := validateOrder(quantity, 0); err != nil {
		return fail(err, "")
	}
	return s.order(ctx, id, quantity, nil)
}

// order applies an order. A nil totalPrice prices it at quantity * unit price.
func (s *Service) order(ctx context.Context, id int64, quantity float64, totalPrice *float64) Result {
	var (
		ordered domain.Product
		record  domain.SoldRecord
		total   float64
	)
	err := s.mutate(ctx, "order product", func() error {
		products := s.store.Products()
		idx := indexOf(products, id)
		if idx < 0 {
			return errors.Wrapf(ErrNotFound, "id %d", id)
		}
		p := &products[idx]

		if totalPrice != nil {
			total = *totalPrice
		} else {
			price, ok := p.Price.Float()
			if !ok {
				return &ValidationError{Field: "price", Message: fmt.Sprintf("price of %q is not a number", p.Name)}
			}
			total = quantity * price
			if err := checkAmount("total_price", total); err != nil {
				return err
			}
		}

		stock, ok := p.Quantity.Float()
		if !ok {
			return &ValidationError{Field: "quantity", Message: fmt.Sprintf("stock of %q is not a number", p.Name)}
		}
		remaining := stock - quantity
		if remaining < 0 {
			switch s.stockPolicy {
			case StockReject:
				return errors.Wrapf(ErrInsufficientStock, "%s has %v in stock, %v ordered", p.Name, stock, quantity)
			case StockClamp:
				remaining = 0
			}
		}
		if math.IsInf(remaining, 0) {
			return &ValidationError{Field: "quantity", Message: "remaining stock is out of range"}
		}
		p.Quantity = domain.Num(remaining)

		sold := s.store.SoldRecords()
		if j := soldIndexOf(sold, id); j >= 0 {
			soldQty, soldTotal := sold[j].Quantity+quantity, sold[j].Price+total
			if math.IsInf(soldQty, 0) || math.IsInf(soldTotal, 0) {
				return &ValidationError{Field: "total_price", Message: "sold totals are out of range"}
			}
			sold[j].Quantity = soldQty
			sold[j].Price = soldTotal
			record = sold[j]
		} else {
			record = domain.SoldRecord{ID: id, Name: p.Name, Quantity: quantity, Price: total}
			s.store.SetSoldRecords(append(sold, record))
		}
		ordered = *p
		return nil
	}, s.store.Flush)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return fail(err, MsgOrderNotFound)
		}
		return fail(err, "")
	}

	zap.L().Info("product ordered",
		zap.String("namespace", "ledger"),
		zap.Int64("id", id),
		zap.Float64("quantity", quantity),
		zap.Float64("total_price", total),
		zap.Float64("remaining", ordered.Quantity.Value()),
	)
	s.publish(TopicProductOrdered, ProductEvent{ProductID: id, Product: ordered, Record: &record, Quantity: quantity})
	return succeed(fmt.Sprintf("%s Ordered Successfully", ordered.Name))
}

// Totals is the inventory aggregate. Skipped lists products left out because their
// quantity or price is not a number.
type Totals struct {
	TotalQuantity float64 `json:"total_quantity"`
	TotalPrice    float64 `json:"total_price"`
	Skipped       []int64 `json:"skipped,omitempty"`
}

// CalculateTotalQuantityAndPrice sums quantity and quantity*price over all products.
func (s *Service) CalculateTotalQuantityAndPrice() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()

	var t Totals
	for _, p := range s.store.Products() {
		qty, qok := p.Quantity.Float()
		price, pok := p.Price.Float()
		if !qok || !pok {
			if s.aggregatePolicy == AggregateNaN {
				t.TotalQuantity += p.Quantity.Value()
				t.TotalPrice += p.Quantity.Value() * p.Price.Value()
				continue
			}
			zap.L().Warn("skipping product with non-numeric fields in totals",
				zap.String("namespace", "ledger"),
				zap.Int64("id", p.ID),
				zap.String("quantity", p.Quantity.String()),
				zap.String("price", p.Price.String()),
			)
			t.Skipped = append(t.Skipped, p.ID)
			continue
		}
		t.TotalQuantity += qty
		t.TotalPrice += qty * price
	}
	return t
}

// IsNaN reports whether the totals were poisoned by non-numeric fields.
func (t Totals) IsNaN() bool {
	return math.IsNaN(t.TotalQuantity) || math.IsNaN(t.TotalPrice)
}

// GetAllProducts returns a copy of the product collection in order.
func (s *Service) GetAllProducts() []domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]domain.Product{}, s.store.Products()...)
}

// GetProduct returns the first product with the given id.
func (s *Service) GetProduct(id int64) (domain.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	products := s.store.Products()
	if idx := indexOf(products, id); idx >= 0 {
		return products[idx], true
	}
	return domain.Product{}, false
}

// GetSoldRecords returns a copy of the sold-record collection in order.
func (s *Service) GetSoldRecords() []domain.SoldRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]domain.SoldRecord{}, s.store.SoldRecords()...)
}
