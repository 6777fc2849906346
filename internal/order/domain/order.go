package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderID int64
type OrderItemID int64

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
)

func (s OrderStatus) Valid() bool {
	return s == OrderStatusPending || s == OrderStatusCompleted
}

// OrderItem is a line of an order. Price is the product's unit price at the
// moment the order was placed and never follows later catalog changes.
type OrderItem struct {
	ID        OrderItemID
	OrderID   OrderID
	ProductID ProductID
	Quantity  int
	Price     decimal.Decimal
}

// Subtotal is Price × Quantity, exact.
func (it OrderItem) Subtotal() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

type Order struct {
	ID         OrderID
	Status     OrderStatus
	TotalPrice decimal.Decimal
	Items      []OrderItem

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SumItems returns the 2-digit total of the given lines.
func SumItems(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return NormalizePrice(total)
}

// ValidateTotal rejects totals that do not fit the stored NUMERIC(10,2).
func ValidateTotal(total decimal.Decimal) error {
	if total.GreaterThan(maxPrice) {
		return NewValidationError("items", "order total exceeds 99999999.99")
	}
	return nil
}
