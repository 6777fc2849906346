package order

import (
	"context"

	"github.com/nazeru/shop-orders-go/internal/order/domain"
)

// Repository reads and removes committed orders. Orders are only ever created
// by the transaction engine in internal/order/tx.
type Repository interface {
	GetOrder(ctx context.Context, id domain.OrderID) (domain.Order, error)
	// DeleteOrder removes the order together with its items.
	DeleteOrder(ctx context.Context, id domain.OrderID) error
}
