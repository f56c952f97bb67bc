package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talkincode/stockledger/internal/domain"
	"github.com/talkincode/stockledger/internal/kvstore"
	"github.com/talkincode/stockledger/internal/store"
)

// flakyBackend fails writes while broken is set.
type flakyBackend struct {
	*kvstore.MemoryBackend
	mu     sync.Mutex
	broken bool
}

func (f *flakyBackend) PutBatch(ctx context.Context, values map[string][]byte) error {
	f.mu.Lock()
	broken := f.broken
	f.mu.Unlock()
	if broken {
		return errors.New("quota exceeded")
	}
	return f.MemoryBackend.PutBatch(ctx, values)
}

func (f *flakyBackend) setBroken(v bool) {
	f.mu.Lock()
	f.broken = v
	f.mu.Unlock()
}

func newTestService(t *testing.T, opts ...Option) (*Service, *flakyBackend) {
	t.Helper()
	backend := &flakyBackend{MemoryBackend: kvstore.NewMemoryBackend()}
	st, err := store.Open(context.Background(), backend)
	require.NoError(t, err)
	return NewService(st, opts...), backend
}

func input(name string, qty, price float64) domain.ProductInput {
	return domain.ProductInput{Name: name, Category: "General", Image: "data:image/png;base64,AA==", Quantity: qty, Price: price}
}

func reload(t *testing.T, backend kvstore.Backend) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), backend)
	require.NoError(t, err)
	return st
}

func TestAddProductAssignsIncreasingIDs(t *testing.T) {
	ctx := context.Background()
	svc, backend := newTestService(t)

	for i := 0; i < 5; i++ {
		res := svc.AddProduct(ctx, input(fmt.Sprintf("item-%d", i), 1, 1))
		require.True(t, res.Success, res.Message)
		assert.Equal(t, MsgProductAdded, res.Message)
	}

	products := svc.GetAllProducts()
	require.Len(t, products, 5)
	for i, p := range products {
		assert.Equal(t, int64(i+1), p.ID)
	}
	// persisted immediately
	assert.Len(t, reload(t, backend).Products(), 5)
}

func TestAddProductIDPolicies(t *testing.T) {
	ctx := context.Background()

	t.Run("monotonic never reuses ids", func(t *testing.T) {
		svc, _ := newTestService(t)
		svc.AddProduct(ctx, input("a", 1, 1))
		svc.AddProduct(ctx, input("b", 1, 1))
		svc.AddProduct(ctx, input("c", 1, 1))
		svc.DeleteProduct(ctx, 1)
		svc.AddProduct(ctx, input("d", 1, 1))

		ids := []int64{}
		for _, p := range svc.GetAllProducts() {
			ids = append(ids, p.ID)
		}
		assert.Equal(t, []int64{2, 3, 4}, ids)
	})

	t.Run("legacy numbering is count plus one", func(t *testing.T) {
		svc, _ := newTestService(t, WithIDPolicy(IDLegacy))
		svc.AddProduct(ctx, input("a", 1, 1))
		svc.AddProduct(ctx, input("b", 1, 1))
		svc.AddProduct(ctx, input("c", 1, 1))
		svc.DeleteProduct(ctx, 1)
		svc.AddProduct(ctx, input("d", 1, 1))

		ids := []int64{}
		for _, p := range svc.GetAllProducts() {
			ids = append(ids, p.ID)
		}
		// the collision the browser build had
		assert.Equal(t, []int64{2, 3, 3}, ids)
	})

	t.Run("monotonic counter survives reload", func(t *testing.T) {
		svc, backend := newTestService(t)
		svc.AddProduct(ctx, input("a", 1, 1))
		svc.AddProduct(ctx, input("b", 1, 1))
		svc.DeleteProduct(ctx, 2)

		again := NewService(reload(t, backend))
		again.AddProduct(ctx, input("c", 1, 1))
		products := again.GetAllProducts()
		assert.Equal(t, int64(3), products[len(products)-1].ID)
	})
}

func TestAddProductRejectsInvalidInput(t *testing.T) {
	svc, _ := newTestService(t)
	res := svc.AddProduct(context.Background(), input("  ", 1, 1))
	assert.False(t, res.Success)
	assert.Equal(t, KindValidation, res.Kind)

	res = svc.AddProduct(context.Background(), input("x", math.NaN(), 1))
	assert.False(t, res.Success)
	assert.Equal(t, KindValidation, res.Kind)
	assert.Empty(t, svc.GetAllProducts())
}

func TestUpdateProductMergesPatch(t *testing.T) {
	ctx := context.Background()
	svc, backend := newTestService(t)
	svc.AddProduct(ctx, domain.ProductInput{Name: "Kettle", Category: "Kitchen", Image: "data:a", Quantity: 7, Price: 30})

	price := 50.0
	res := svc.UpdateProduct(ctx, 1, domain.ProductPatch{Price: &price})
	require.True(t, res.Success)
	assert.Equal(t, MsgProductUpdated, res.Message)

	p, ok := svc.GetProduct(1)
	require.True(t, ok)
	assert.Equal(t, "Kettle", p.Name)
	assert.Equal(t, "Kitchen", p.Category)
	assert.Equal(t, "data:a", p.Image)
	assert.Equal(t, 7.0, p.Quantity.Value())
	assert.Equal(t, 50.0, p.Price.Value())

	assert.Equal(t, 50.0, reload(t, backend).Products()[0].Price.Value())
}

func TestUpdateProductNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	name := "Ghost"
	res := svc.UpdateProduct(context.Background(), 42, domain.ProductPatch{Name: &name})
	assert.False(t, res.Success)
	assert.Equal(t, MsgProductNotFound, res.Message)
	assert.Equal(t, KindNotFound, res.Kind)
	assert.ErrorIs(t, res.Err, ErrNotFound)
}

func TestUpdateProductRejectsEmptyName(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	svc.AddProduct(ctx, input("Mat", 1, 1))

	empty := ""
	res := svc.UpdateProduct(ctx, 1, domain.ProductPatch{Name: &empty})
	assert.False(t, res.Success)
	assert.Equal(t, KindValidation, res.Kind)
	p, _ := svc.GetProduct(1)
	assert.Equal(t, "Mat", p.Name)
}

func TestDeleteProduct(t *testing.T) {
	ctx := context.Background()

	t.Run("missing id is a successful no-op", func(t *testing.T) {
		svc, _ := newTestService(t)
		svc.AddProduct(ctx, input("a", 1, 1))
		svc.AddProduct(ctx, input("b", 1, 1))

		res := svc.DeleteProduct(ctx, 99)
		assert.True(t, res.Success)
		assert.Equal(t, MsgProductDeleted, res.Message)
		assert.Len(t, svc.GetAllProducts(), 2)
	})

	t.Run("removes every duplicate and keeps sold records", func(t *testing.T) {
		svc, backend := newTestService(t, WithIDPolicy(IDLegacy))
		svc.AddProduct(ctx, input("a", 5, 1))
		svc.AddProduct(ctx, input("b", 5, 1))
		svc.OrderProduct(ctx, 2, 1, 1)
		svc.DeleteProduct(ctx, 1)
		svc.AddProduct(ctx, input("c", 5, 1)) // collides with b on id 2

		res := svc.DeleteProduct(ctx, 2)
		assert.True(t, res.Success)
		assert.Empty(t, svc.GetAllProducts())
		assert.Len(t, svc.GetSoldRecords(), 1)
		assert.Empty(t, reload(t, backend).Products())
	})
}

func TestOrderProductAccumulates(t *testing.T) {
	ctx := context.Background()
	svc, backend := newTestService(t)
	svc.AddProduct(ctx, input("Pen", 10, 10))

	res := svc.OrderProduct(ctx, 1, 2, 20)
	require.True(t, res.Success, res.Message)
	assert.Contains(t, res.Message, "Pen")
	res = svc.OrderProduct(ctx, 1, 3, 30)
	require.True(t, res.Success, res.Message)

	sold := svc.GetSoldRecords()
	require.Len(t, sold, 1)
	assert.Equal(t, domain.SoldRecord{ID: 1, Name: "Pen", Quantity: 5, Price: 50}, sold[0])

	p, _ := svc.GetProduct(1)
	assert.Equal(t, 5.0, p.Quantity.Value())

	persisted := reload(t, backend)
	assert.Equal(t, 5.0, persisted.Products()[0].Quantity.Value())
	assert.Equal(t, sold, persisted.SoldRecords())
}

func TestOrderProductKeepsFirstSaleName(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	svc.AddProduct(ctx, input("Pen", 10, 1))
	svc.OrderProduct(ctx, 1, 1, 1)

	name := "Fountain Pen"
	svc.UpdateProduct(ctx, 1, domain.ProductPatch{Name: &name})
	res := svc.OrderProduct(ctx, 1, 1, 1)
	assert.Equal(t, "Fountain Pen Ordered Successfully", res.Message)
	assert.Equal(t, "Pen", svc.GetSoldRecords()[0].Name)
}

func TestOrderProductNotFound(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	svc.AddProduct(ctx, input("Pen", 10, 1))
	before := svc.GetAllProducts()

	res := svc.OrderProduct(ctx, 999, 1, 1)
	assert.False(t, res.Success)
	assert.Equal(t, MsgOrderNotFound, res.Message)
	assert.Equal(t, KindNotFound, res.Kind)
	assert.Equal(t, before, svc.GetAllProducts())
	assert.Empty(t, svc.GetSoldRecords())
}

func TestOrderProductStockPolicies(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		policy    StockPolicy
		success   bool
		remaining float64
		soldQty   int
	}{
		{StockAllow, true, -3, 1},
		{StockClamp, true, 0, 1},
		{StockReject, false, 2, 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			svc, _ := newTestService(t, WithStockPolicy(tt.policy))
			svc.AddProduct(ctx, input("Bolt", 2, 1))

			res := svc.OrderProduct(ctx, 1, 5, 5)
			assert.Equal(t, tt.success, res.Success, res.Message)
			if !tt.success {
				assert.Equal(t, KindInsufficientStock, res.Kind)
			}
			p, _ := svc.GetProduct(1)
			assert.Equal(t, tt.remaining, p.Quantity.Value())
			assert.Len(t, svc.GetSoldRecords(), tt.soldQty)
			if tt.soldQty > 0 {
				assert.Equal(t, 5.0, svc.GetSoldRecords()[0].Quantity)
			}
		})
	}
}

func TestOrderProductValidatesAmounts(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	svc.AddProduct(ctx, input("Pen", 10, 1))

	for _, qty := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		res := svc.OrderProduct(ctx, 1, qty, 1)
		assert.False(t, res.Success)
		assert.Equal(t, KindValidation, res.Kind)
	}
	res := svc.OrderProduct(ctx, 1, 1, -5)
	assert.Equal(t, KindValidation, res.Kind)
	assert.Empty(t, svc.GetSoldRecords())
}

func TestFailedFlushRollsBack(t *testing.T) {
	ctx := context.Background()
	svc, backend := newTestService(t)
	svc.AddProduct(ctx, input("Pen", 10, 1))
	backend.setBroken(true)

	res := svc.AddProduct(ctx, input("Ink", 1, 1))
	assert.False(t, res.Success)
	assert.Equal(t, KindPersistence, res.Kind)
	assert.Contains(t, res.Message, "quota exceeded")

	res = svc.OrderProduct(ctx, 1, 4, 4)
	assert.Equal(t, KindPersistence, res.Kind)

	res = svc.DeleteProduct(ctx, 1)
	assert.False(t, res.Success)

	products := svc.GetAllProducts()
	require.Len(t, products, 1)
	assert.Equal(t, 10.0, products[0].Quantity.Value())
	assert.Empty(t, svc.GetSoldRecords())

	// the failed add did not consume an id
	backend.setBroken(false)
	svc.AddProduct(ctx, input("Ink", 1, 1))
	assert.Equal(t, int64(2), svc.GetAllProducts()[1].ID)
}

func TestCalculateTotalQuantityAndPrice(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	svc.AddProduct(ctx, input("a", 2, 10))
	svc.AddProduct(ctx, input("b", 3, 5))

	totals := svc.CalculateTotalQuantityAndPrice()
	assert.Equal(t, 5.0, totals.TotalQuantity)
	assert.Equal(t, 35.0, totals.TotalPrice)
	assert.Empty(t, totals.Skipped)
}

func TestCalculateTotalsWithInvalidFields(t *testing.T) {
	ctx := context.Background()
	backend := kvstore.NewMemoryBackend()
	require.NoError(t, backend.Put(ctx, domain.SlotProducts, []byte(
		`[{"id":1,"name":"a","quantity":"2","price":"10"},{"id":2,"name":"b","quantity":"abc","price":"5"}]`)))

	t.Run("skip", func(t *testing.T) {
		svc := NewService(reload(t, backend))
		totals := svc.CalculateTotalQuantityAndPrice()
		assert.Equal(t, 2.0, totals.TotalQuantity)
		assert.Equal(t, 20.0, totals.TotalPrice)
		assert.Equal(t, []int64{2}, totals.Skipped)
		assert.False(t, totals.IsNaN())
	})

	t.Run("nan", func(t *testing.T) {
		svc := NewService(reload(t, backend), WithAggregatePolicy(AggregateNaN))
		totals := svc.CalculateTotalQuantityAndPrice()
		assert.True(t, math.IsNaN(totals.TotalQuantity))
		assert.True(t, math.IsNaN(totals.TotalPrice))
		assert.True(t, totals.IsNaN())
	})

	t.Run("ordering a non-numeric stock fails", func(t *testing.T) {
		svc := NewService(reload(t, backend))
		res := svc.OrderProduct(ctx, 2, 1, 5)
		assert.Equal(t, KindValidation, res.Kind)
	})
}

func TestGetAllProductsReturnsCopy(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	svc.AddProduct(ctx, input("Pen", 1, 1))

	products := svc.GetAllProducts()
	products[0].Name = "mutated"
	p, _ := svc.GetProduct(1)
	assert.Equal(t, "Pen", p.Name)
}

func TestConcurrentOrdersDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	svc, backend := newTestService(t)
	svc.AddProduct(ctx, input("Widget", 1000, 2))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.OrderProduct(ctx, 1, 2, 4)
		}()
	}
	wg.Wait()

	sold := svc.GetSoldRecords()
	require.Len(t, sold, 1)
	assert.Equal(t, 100.0, sold[0].Quantity)
	assert.Equal(t, 200.0, sold[0].Price)
	p, _ := svc.GetProduct(1)
	assert.Equal(t, 900.0, p.Quantity.Value())
	assert.Equal(t, sold, reload(t, backend).SoldRecords())
}

func TestEventsPublishedAfterPersist(t *testing.T) {
	ctx := context.Background()
	bus := NewEventBus()
	svc, _ := newTestService(t, WithEventBus(bus))

	var got []string
	var ordered ProductEvent
	require.NoError(t, bus.Subscribe(TopicProductAdded, func(evt ProductEvent) { got = append(got, "added") }))
	require.NoError(t, bus.Subscribe(TopicProductOrdered, func(evt ProductEvent) {
		got = append(got, "ordered")
		ordered = evt
		// subscribers may read the ledger
		_, ok := svc.GetProduct(evt.ProductID)
		assert.True(t, ok)
	}))
	require.NoError(t, bus.Subscribe(TopicProductDeleted, func(evt ProductEvent) { got = append(got, "deleted") }))

	svc.AddProduct(ctx, input("Cup", 3, 2))
	svc.OrderProduct(ctx, 1, 1, 2)
	svc.OrderProduct(ctx, 7, 1, 2) // not found, no event
	svc.DeleteProduct(ctx, 1)

	assert.Equal(t, []string{"added", "ordered", "deleted"}, got)
	require.NotNil(t, ordered.Record)
	assert.Equal(t, 1.0, ordered.Record.Quantity)
	assert.Equal(t, 2.0, ordered.Product.Quantity.Value())
}

func TestPanickingSubscriberDoesNotEscape(t *testing.T) {
	bus := NewEventBus()
	svc, _ := newTestService(t, WithEventBus(bus))
	require.NoError(t, bus.Subscribe(TopicProductAdded, func(ProductEvent) { panic("boom") }))

	var res Result
	assert.NotPanics(t, func() { res = svc.AddProduct(context.Background(), input("Cup", 1, 1)) })
	assert.True(t, res.Success)
}

func TestOrderProductRejectsOverflow(t *testing.T) {
	ctx := context.Background()

	t.Run("stock", func(t *testing.T) {
		svc, backend := newTestService(t)
		svc.AddProduct(ctx, input("Sand", 1, 0))

		require.True(t, svc.OrderProduct(ctx, 1, math.MaxFloat64, 0).Success)
		res := svc.OrderProduct(ctx, 1, math.MaxFloat64, 0)
		assert.Equal(t, KindValidation, res.Kind)

		p, _ := svc.GetProduct(1)
		assert.False(t, math.IsInf(p.Quantity.Value(), 0))
		assert.Equal(t, math.MaxFloat64, svc.GetSoldRecords()[0].Quantity)

		// later orders on the same record still persist
		assert.True(t, svc.OrderProduct(ctx, 1, 1, 0).Success)
		assert.Len(t, reload(t, backend).SoldRecords(), 1)
	})

	t.Run("sold total", func(t *testing.T) {
		svc, _ := newTestService(t)
		svc.AddProduct(ctx, input("Gold", 10, 1))

		require.True(t, svc.OrderProduct(ctx, 1, 1, math.MaxFloat64).Success)
		res := svc.OrderProduct(ctx, 1, 1, math.MaxFloat64)
		assert.Equal(t, KindValidation, res.Kind)

		assert.Equal(t, math.MaxFloat64, svc.GetSoldRecords()[0].Price)
		p, _ := svc.GetProduct(1)
		assert.Equal(t, 9.0, p.Quantity.Value())
	})
}

func TestUpdateProductMissingIDWinsOverValidation(t *testing.T) {
	svc, _ := newTestService(t)
	empty := ""
	res := svc.UpdateProduct(context.Background(), 999, domain.ProductPatch{Name: &empty})
	assert.Equal(t, KindNotFound, res.Kind)
	assert.Equal(t, MsgProductNotFound, res.Message)
}

func TestOrderProductAtListPrice(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	svc.AddProduct(ctx, input("Pen", 10, 2))

	res := svc.OrderProductAtListPrice(ctx, 1, 3)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, 6.0, svc.GetSoldRecords()[0].Price)

	price := 5.0
	require.True(t, svc.UpdateProduct(ctx, 1, domain.ProductPatch{Price: &price}).Success)
	require.True(t, svc.OrderProductAtListPrice(ctx, 1, 1).Success)
	assert.Equal(t, 11.0, svc.GetSoldRecords()[0].Price)

	assert.Equal(t, KindValidation, svc.OrderProductAtListPrice(ctx, 1, 0).Kind)
	assert.Equal(t, MsgOrderNotFound, svc.OrderProductAtListPrice(ctx, 7, 1).Message)
}

func TestOrderProductAtListPriceNeedsNumericPrice(t *testing.T) {
	ctx := context.Background()
	backend := kvstore.NewMemoryBackend()
	require.NoError(t, backend.Put(ctx, domain.SlotProducts, []byte(`[{"id":1,"name":"Odd","quantity":5,"price":"n/a"}]`)))
	st, err := store.Open(ctx, backend)
	require.NoError(t, err)
	svc := NewService(st)

	res := svc.OrderProductAtListPrice(ctx, 1, 1)
	assert.Equal(t, KindValidation, res.Kind)
	assert.Empty(t, svc.GetSoldRecords())
	p, _ := svc.GetProduct(1)
	assert.Equal(t, 5.0, p.Quantity.Value())
}
