package tx_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nazeru/shop-orders-go/internal/catalog"
	"github.com/nazeru/shop-orders-go/internal/order/domain"
	ordertx "github.com/nazeru/shop-orders-go/internal/order/tx"
	"github.com/nazeru/shop-orders-go/internal/store/memory"
	"github.com/nazeru/shop-orders-go/pkg/contracts"
	"github.com/nazeru/shop-orders-go/pkg/metrics"
	"github.com/nazeru/shop-orders-go/pkg/tx/retry"
)

type fixture struct {
	store   *memory.Store
	catalog *catalog.Service
	engine  *ordertx.Engine
	metrics *metrics.OrderMetrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	m := metrics.NewOrderMetrics(prometheus.NewRegistry(), "test")
	return &fixture{
		store:   store,
		catalog: catalog.NewService(store),
		engine:  ordertx.NewEngine(store, zap.NewNop(), m),
		metrics: m,
	}
}

func (f *fixture) product(t *testing.T, price string, stock int) domain.Product {
	t.Helper()
	p, err := f.catalog.Create(context.Background(), catalog.NewProduct{
		Name:        "Test Product",
		Description: "Test Description",
		Price:       decimal.RequireFromString(price),
		Stock:       stock,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) stock(t *testing.T, id domain.ProductID) int {
	t.Helper()
	p, err := f.catalog.Get(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func TestCreateOrderSuccess(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "10.00", 10)

	o, err := f.engine.CreateOrder(context.Background(), []ordertx.ItemRequest{{ProductID: p.ID, Quantity: 2}})
	require.NoError(t, err)

	assert.Equal(t, "20.00", o.TotalPrice.StringFixed(2))
	assert.Equal(t, domain.OrderStatusPending, o.Status)
	require.Len(t, o.Items, 1)
	assert.Equal(t, o.ID, o.Items[0].OrderID)
	assert.Equal(t, "10.00", o.Items[0].Price.StringFixed(2))
	assert.Equal(t, 8, f.stock(t, p.ID))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Created))
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "10.00", 10)

	_, err := f.engine.CreateOrder(context.Background(), []ordertx.ItemRequest{{ProductID: p.ID, Quantity: 20}})

	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, p.ID, stockErr.ProductID)
	assert.Equal(t, 10, f.stock(t, p.ID))
	assert.Zero(t, f.store.OrderCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Failures.WithLabelValues("insufficient_stock")))
}

func TestCreateOrderEmpty(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.CreateOrder(context.Background(), nil)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "order must contain at least one item", verr.Message)
	assert.Zero(t, f.store.OrderCount())
}

func TestCreateOrderNonPositiveQuantity(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "10.00", 10)

	_, err := f.engine.CreateOrder(context.Background(), []ordertx.ItemRequest{
		{ProductID: p.ID, Quantity: 1},
		{ProductID: p.ID, Quantity: 0},
	})

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "items[1].quantity", verr.Field)
	assert.Equal(t, 10, f.stock(t, p.ID))
}

func TestCreateOrderUnknownProduct(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "10.00", 10)

	_, err := f.engine.CreateOrder(context.Background(), []ordertx.ItemRequest{
		{ProductID: p.ID, Quantity: 1},
		{ProductID: 999, Quantity: 1},
	})

	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, int64(999), nf.ID)
	assert.Equal(t, 10, f.stock(t, p.ID))
	assert.Zero(t, f.store.OrderCount())
}

func TestUnknownProductReportedBeforeStock(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "10.00", 1)

	_, err := f.engine.CreateOrder(context.Background(), []ordertx.ItemRequest{
		{ProductID: p.ID, Quantity: 5},
		{ProductID: 999, Quantity: 1},
	})

	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, int64(999), nf.ID)
	assert.NotErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 1, f.stock(t, p.ID))
}

func TestOrderTotalAboveColumnRange(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "99999999.99", 2)

	_, err := f.engine.CreateOrder(context.Background(), []ordertx.ItemRequest{{ProductID: p.ID, Quantity: 2}})

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "items", verr.Field)
	assert.Equal(t, 2, f.stock(t, p.ID))
	assert.Zero(t, f.store.OrderCount())
}

func TestPriceSnapshot(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "10.00", 10)

	o, err := f.engine.CreateOrder(context.Background(), []ordertx.ItemRequest{{ProductID: p.ID, Quantity: 2}})
	require.NoError(t, err)

	price := decimal.RequireFromString("50.00")
	_, err = f.catalog.Update(context.Background(), p.ID, catalog.ProductPatch{Price: &price})
	require.NoError(t, err)

	again, err := f.store.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, "20.00", again.TotalPrice.StringFixed(2))
	assert.Equal(t, "10.00", again.Items[0].Price.StringFixed(2))
}

func TestDuplicateProductIsCumulative(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "10.00", 5)

	_, err := f.engine.CreateOrder(context.Background(), []ordertx.ItemRequest{
		{ProductID: p.ID, Quantity: 3},
		{ProductID: p.ID, Quantity: 3},
	})
	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 2, stockErr.Available)
	assert.Equal(t, 5, f.stock(t, p.ID))
	assert.Zero(t, f.store.OrderCount())

	o, err := f.engine.CreateOrder(context.Background(), []ordertx.ItemRequest{
		{ProductID: p.ID, Quantity: 2},
		{ProductID: p.ID, Quantity: 3},
	})
	require.NoError(t, err)
	assert.Len(t, o.Items, 2)
	assert.Equal(t, "50.00", o.TotalPrice.StringFixed(2))
	assert.Zero(t, f.stock(t, p.ID))
}

func TestTotalIsExactSum(t *testing.T) {
	f := newFixture(t)
	a := f.product(t, "0.10", 100)
	b := f.product(t, "0.20", 100)
	c := f.product(t, "19.99", 100)

	o, err := f.engine.CreateOrder(context.Background(), []ordertx.ItemRequest{
		{ProductID: c.ID, Quantity: 3},
		{ProductID: a.ID, Quantity: 7},
		{ProductID: b.ID, Quantity: 11},
	})
	require.NoError(t, err)

	want := decimal.Zero
	for _, it := range o.Items {
		want = want.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	assert.True(t, o.TotalPrice.Equal(want))
	assert.Equal(t, "62.87", o.TotalPrice.StringFixed(2))

	// caller order is preserved
	assert.Equal(t, c.ID, o.Items[0].ProductID)
	assert.Equal(t, a.ID, o.Items[1].ProductID)
	assert.Equal(t, b.ID, o.Items[2].ProductID)
}

func TestCreateOrderAppendsEvent(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "10.00", 10)

	o, err := f.engine.CreateOrder(context.Background(), []ordertx.ItemRequest{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)

	pending, err := f.store.FetchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, contracts.DefaultTopic, pending[0].Topic)

	var evt contracts.Event
	require.NoError(t, json.Unmarshal(pending[0].Payload, &evt))
	assert.Equal(t, contracts.EventOrderCreated, evt.Type)
	assert.Equal(t, pending[0].Key, evt.OrderID)
	assert.Equal(t, "10.00", evt.Payload["total_price"])
	assert.NotEmpty(t, evt.EventID)
	assert.NotZero(t, o.ID)
}

func TestIdempotentReplay(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "10.00", 10)
	items := []ordertx.ItemRequest{{ProductID: p.ID, Quantity: 2}}

	first, replayed, err := f.engine.CreateOrderIdempotent(context.Background(), "key-1", items)
	require.NoError(t, err)
	assert.False(t, replayed)

	second, replayed, err := f.engine.CreateOrderIdempotent(context.Background(), "key-1", items)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 8, f.stock(t, p.ID))
	assert.Equal(t, 1, f.store.OrderCount())

	_, replayed, err = f.engine.CreateOrderIdempotent(context.Background(), "key-2", items)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, 6, f.stock(t, p.ID))
}

func TestFailedOrderDoesNotConsumeKey(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "10.00", 1)

	_, _, err := f.engine.CreateOrderIdempotent(context.Background(), "key-1", []ordertx.ItemRequest{{ProductID: p.ID, Quantity: 2}})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	_, replayed, err := f.engine.CreateOrderIdempotent(context.Background(), "key-1", []ordertx.ItemRequest{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)
	assert.False(t, replayed)
}

func TestConcurrentOrdersNeverOversell(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "10.00", 25)

	var ok, rejected atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.CreateOrder(context.Background(), []ordertx.ItemRequest{{ProductID: p.ID, Quantity: 1}})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(25), ok.Load())
	assert.Equal(t, int32(15), rejected.Load())
	assert.Zero(t, f.stock(t, p.ID))
	assert.Equal(t, 25, f.store.OrderCount())
}

// faultyStore wraps the memory store and fails a chosen step of the unit of
// work, optionally marking the failure as retryable.
type faultyStore struct {
	*memory.Store
	failStep  string
	failTimes int
	retryable bool
	calls     int
}

var errInjected = errors.New("injected fault")

func (s *faultyStore) IsRetryable(err error) bool {
	return s.retryable && errors.Is(err, errInjected)
}

func (s *faultyStore) WithinTx(ctx context.Context, fn func(ctx context.Context, uow ordertx.UnitOfWork) error) error {
	s.calls++
	return s.Store.WithinTx(ctx, func(ctx context.Context, uow ordertx.UnitOfWork) error {
		if s.calls > s.failTimes {
			return fn(ctx, uow)
		}
		return fn(ctx, &faultyUoW{UnitOfWork: uow, failStep: s.failStep})
	})
}

type faultyUoW struct {
	ordertx.UnitOfWork
	failStep string
}

func (u *faultyUoW) DecrementStock(ctx context.Context, id domain.ProductID, qty int) error {
	if u.failStep == "decrement" {
		return errInjected
	}
	return u.UnitOfWork.DecrementStock(ctx, id, qty)
}

func (u *faultyUoW) AppendEvent(ctx context.Context, topic string, evt contracts.Event) error {
	if u.failStep == "event" {
		return errInjected
	}
	return u.UnitOfWork.AppendEvent(ctx, topic, evt)
}

func TestFaultMidCommitRollsBack(t *testing.T) {
	for _, step := range []string{"decrement", "event"} {
		t.Run(step, func(t *testing.T) {
			base := memory.NewStore()
			store := &faultyStore{Store: base, failStep: step, failTimes: 1}
			cat := catalog.NewService(base)
			p, err := cat.Create(context.Background(), catalog.NewProduct{Name: "n", Description: "d", Price: decimal.NewFromInt(10), Stock: 10})
			require.NoError(t, err)

			engine := ordertx.NewEngine(store, zap.NewNop(), nil)
			_, err = engine.CreateOrder(context.Background(), []ordertx.ItemRequest{{ProductID: p.ID, Quantity: 2}})

			require.ErrorIs(t, err, domain.ErrInternal)
			assert.ErrorIs(t, err, errInjected)
			assert.False(t, domain.IsCallerError(err))
			assert.Zero(t, base.OrderCount())
			assert.Zero(t, base.ItemCount())
			got, _ := cat.Get(context.Background(), p.ID)
			assert.Equal(t, 10, got.Stock)
		})
	}
}

func TestRetryableConflictIsRetried(t *testing.T) {
	base := memory.NewStore()
	store := &faultyStore{Store: base, failStep: "decrement", failTimes: 2, retryable: true}
	cat := catalog.NewService(base)
	p, err := cat.Create(context.Background(), catalog.NewProduct{Name: "n", Description: "d", Price: decimal.NewFromInt(10), Stock: 10})
	require.NoError(t, err)

	m := metrics.NewOrderMetrics(prometheus.NewRegistry(), "test")
	engine := ordertx.NewEngine(store, zap.NewNop(), m)
	engine.Retry = retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 1}

	o, err := engine.CreateOrder(context.Background(), []ordertx.ItemRequest{{ProductID: p.ID, Quantity: 2}})
	require.NoError(t, err)
	assert.Equal(t, 3, store.calls)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Retries))
	assert.Equal(t, 1, base.OrderCount())
	assert.Equal(t, domain.OrderID(1), o.ID)
}

func TestRetriesExhaustedIsInternal(t *testing.T) {
	base := memory.NewStore()
	store := &faultyStore{Store: base, failStep: "decrement", failTimes: 10, retryable: true}
	cat := catalog.NewService(base)
	p, err := cat.Create(context.Background(), catalog.NewProduct{Name: "n", Description: "d", Price: decimal.NewFromInt(10), Stock: 10})
	require.NoError(t, err)

	engine := ordertx.NewEngine(store, zap.NewNop(), nil)
	engine.Retry = retry.Policy{MaxAttempts: 2, InitialDelay: time.Millisecond, BackoffFactor: 1}

	_, err = engine.CreateOrder(context.Background(), []ordertx.ItemRequest{{ProductID: p.ID, Quantity: 2}})
	assert.ErrorIs(t, err, domain.ErrInternal)
	assert.ErrorIs(t, err, retry.ErrAttemptsExhausted)
	assert.Equal(t, 2, store.calls)
	assert.Zero(t, base.OrderCount())
}
