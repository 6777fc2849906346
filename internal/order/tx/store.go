package tx

import (
	"context"

	"github.com/nazeru/shop-orders-go/internal/order/domain"
	"github.com/nazeru/shop-orders-go/pkg/contracts"
)

// UnitOfWork is the store as seen from inside one transaction. Nothing done
// through it is visible to other callers until the enclosing WithinTx commits.
type UnitOfWork interface {
	// LockProducts loads the given products and holds them against concurrent
	// stock changes until the unit of work ends. Missing ids are absent from
	// the result.
	LockProducts(ctx context.Context, ids []domain.ProductID) (map[domain.ProductID]domain.Product, error)
	// InsertOrder persists o and its items, filling in ids and timestamps.
	InsertOrder(ctx context.Context, o *domain.Order) error
	DecrementStock(ctx context.Context, id domain.ProductID, qty int) error

	OrderByIdempotencyKey(ctx context.Context, key string) (domain.Order, bool, error)
	SaveIdempotencyKey(ctx context.Context, key string, id domain.OrderID) error

	AppendEvent(ctx context.Context, topic string, evt contracts.Event) error
}

type Store interface {
	// WithinTx runs fn in a transaction. A non-nil error from fn, or a panic,
	// rolls everything back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
	// IsRetryable reports store conflicts after which fn may be run again.
	IsRetryable(err error) bool
}
