package tx

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/nazeru/shop-orders-go/internal/order/domain"
	"github.com/nazeru/shop-orders-go/pkg/contracts"
	"github.com/nazeru/shop-orders-go/pkg/logging"
	"github.com/nazeru/shop-orders-go/pkg/metrics"
	"github.com/nazeru/shop-orders-go/pkg/tx/retry"
)

type ItemRequest struct {
	ProductID domain.ProductID
	Quantity  int
}

type Engine struct {
	Store      Store
	Retry      retry.Policy
	EventTopic string

	Logger  *zap.Logger
	Tracer  trace.Tracer
	Metrics *metrics.OrderMetrics
}

func NewEngine(store Store, logger *zap.Logger, m *metrics.OrderMetrics) *Engine {
	return &Engine{
		Store:      store,
		Retry:      retry.DefaultPolicy(),
		EventTopic: contracts.DefaultTopic,
		Logger:     logger,
		Tracer:     otel.Tracer("github.com/nazeru/shop-orders-go/internal/order/tx"),
		Metrics:    m,
	}
}

// CreateOrder validates items against current stock and commits the order,
// its items and the stock decrements as one unit.
func (e *Engine) CreateOrder(ctx context.Context, items []ItemRequest) (domain.Order, error) {
	o, _, err := e.CreateOrderIdempotent(ctx, "", items)
	return o, err
}

// CreateOrderIdempotent is CreateOrder keyed by a client-supplied key. When the
// key was already used, the order committed under it is returned with
// replayed set and nothing is written.
func (e *Engine) CreateOrderIdempotent(ctx context.Context, key string, items []ItemRequest) (o domain.Order, replayed bool, err error) {
	ctx, span := e.Tracer.Start(ctx, "order.create", trace.WithAttributes(
		attribute.Int("order.item_count", len(items)),
		attribute.Bool("order.idempotent", key != ""),
	))
	start := time.Now()
	defer func() {
		e.finish(span, o, replayed, err, time.Since(start))
		span.End()
	}()

	if err := validateItems(items); err != nil {
		return domain.Order{}, false, err
	}

	err = retry.Do(ctx, e.Retry, e.Store.IsRetryable, e.onRetry, func(ctx context.Context) error {
		o, replayed = domain.Order{}, false
		return e.Store.WithinTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
			if key != "" {
				existing, ok, err := uow.OrderByIdempotencyKey(ctx, key)
				if err != nil {
					return fmt.Errorf("lookup idempotency key: %w", err)
				}
				if ok {
					o, replayed = existing, true
					return nil
				}
			}

			created, err := e.commit(ctx, uow, items)
			if err != nil {
				return err
			}
			if key != "" {
				if err := uow.SaveIdempotencyKey(ctx, key, created.ID); err != nil {
					return fmt.Errorf("save idempotency key: %w", err)
				}
			}
			o = created
			return nil
		})
	})
	if err != nil {
		if domain.IsCallerError(err) {
			return domain.Order{}, false, err
		}
		return domain.Order{}, false, fmt.Errorf("%w: create order: %w", domain.ErrInternal, err)
	}
	return o, replayed, nil
}

func validateItems(items []ItemRequest) error {
	if len(items) == 0 {
		return domain.NewValidationError("items", "order must contain at least one item")
	}
	for i, it := range items {
		if it.Quantity < 1 {
			return domain.NewValidationError(fmt.Sprintf("items[%d].quantity", i), "quantity must be >= 1")
		}
	}
	return nil
}

// commit runs inside the unit of work. Every check happens before the first
// write; a failure after that still aborts the whole unit.
func (e *Engine) commit(ctx context.Context, uow UnitOfWork, items []ItemRequest) (domain.Order, error) {
	ids := distinctSorted(items)
	products, err := uow.LockProducts(ctx, ids)
	if err != nil {
		return domain.Order{}, fmt.Errorf("lock products: %w", err)
	}

	for _, it := range items {
		if _, ok := products[it.ProductID]; !ok {
			return domain.Order{}, domain.ProductNotFound(it.ProductID)
		}
	}

	remaining := make(map[domain.ProductID]int, len(products))
	lines := make([]domain.OrderItem, 0, len(items))
	for _, it := range items {
		p := products[it.ProductID]
		left, seen := remaining[p.ID]
		if !seen {
			left = p.Stock
		}
		if left < it.Quantity {
			return domain.Order{}, &domain.InsufficientStockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Requested:   it.Quantity,
				Available:   left,
			}
		}
		remaining[p.ID] = left - it.Quantity
		lines = append(lines, domain.OrderItem{
			ProductID: p.ID,
			Quantity:  it.Quantity,
			Price:     domain.NormalizePrice(p.Price),
		})
	}

	o := domain.Order{
		Status:     domain.OrderStatusPending,
		TotalPrice: domain.SumItems(lines),
		Items:      lines,
	}
	if err := domain.ValidateTotal(o.TotalPrice); err != nil {
		return domain.Order{}, err
	}
	if err := uow.InsertOrder(ctx, &o); err != nil {
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	for _, it := range items {
		if err := uow.DecrementStock(ctx, it.ProductID, it.Quantity); err != nil {
			return domain.Order{}, fmt.Errorf("decrement stock: %w", err)
		}
	}

	if err := uow.AppendEvent(ctx, e.EventTopic, orderCreatedEvent(o)); err != nil {
		return domain.Order{}, fmt.Errorf("append event: %w", err)
	}
	return o, nil
}

func distinctSorted(items []ItemRequest) []domain.ProductID {
	ids := make([]domain.ProductID, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

func orderCreatedEvent(o domain.Order) contracts.Event {
	lines := make([]map[string]any, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, map[string]any{
			"product_id": int64(it.ProductID),
			"quantity":   it.Quantity,
			"price":      it.Price.StringFixed(domain.PriceScale),
		})
	}
	return contracts.Event{
		EventID:   uuid.NewString(),
		OrderID:   strconv.FormatInt(int64(o.ID), 10),
		CreatedAt: o.CreatedAt.UTC(),
		Type:      contracts.EventOrderCreated,
		Payload: map[string]any{
			"status":      string(o.Status),
			"total_price": o.TotalPrice.StringFixed(domain.PriceScale),
			"items":       lines,
		},
	}
}

func (e *Engine) onRetry(attempt int, err error) {
	if e.Metrics != nil {
		e.Metrics.Retries.Inc()
	}
	e.Logger.Warn("order transaction conflict, retrying", zap.Int("attempt", attempt), zap.Error(err))
}

func (e *Engine) finish(span trace.Span, o domain.Order, replayed bool, err error, took time.Duration) {
	if err != nil {
		reason := failureReason(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		if e.Metrics != nil {
			e.Metrics.Failures.WithLabelValues(reason).Inc()
		}
		if reason == "internal" {
			e.Logger.Error("order creation failed", zap.Error(err), zap.Duration("took", took))
		} else {
			e.Logger.Info("order rejected", zap.String("reason", reason), zap.String("error", err.Error()))
		}
		return
	}

	span.SetAttributes(
		attribute.Int64("order.id", int64(o.ID)),
		attribute.String("order.total_price", o.TotalPrice.StringFixed(domain.PriceScale)),
		attribute.Bool("order.replayed", replayed),
	)
	span.SetStatus(codes.Ok, "")
	status := "committed"
	if replayed {
		status = "replayed"
	} else if e.Metrics != nil {
		e.Metrics.Created.Inc()
	}
	logging.Log(e.Logger, logging.Fields{
		Service:    "order-engine",
		OrderID:    strconv.FormatInt(int64(o.ID), 10),
		Step:       "create_order",
		Status:     status,
		DurationMS: took.Milliseconds(),
		Message:    "order created",
	})
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	}
	return "internal"
}
