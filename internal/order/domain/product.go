package domain

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type ProductID int64

const (
	PriceScale    = 2
	MaxNameLength = 255
	// MaxStock is the largest value the INTEGER stock column holds.
	MaxStock = math.MaxInt32
)

var (
	minPrice = decimal.New(1, -PriceScale)
	// NUMERIC(10,2)
	maxPrice = decimal.New(1, 8).Sub(minPrice)
)

type Product struct {
	ID          ProductID
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NormalizePrice rounds to two fractional digits, halves away from zero.
// Every path that persists a price goes through here.
func NormalizePrice(p decimal.Decimal) decimal.Decimal {
	return p.Round(PriceScale)
}

// Normalize trims text fields and re-applies the price rounding. Stores call
// it on create and on every update before validating.
func (p *Product) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.Description = strings.TrimSpace(p.Description)
	p.Price = NormalizePrice(p.Price)
}

// Validate checks the product invariants. It expects a normalized product.
func (p Product) Validate() error {
	switch {
	case p.Name == "":
		return NewValidationError("name", "name is required")
	case len(p.Name) > MaxNameLength:
		return NewValidationError("name", "name must be at most 255 characters")
	case p.Description == "":
		return NewValidationError("description", "description is required")
	case p.Price.LessThan(minPrice):
		return NewValidationError("price", "price must be greater than 0.00")
	case p.Price.GreaterThan(maxPrice):
		return NewValidationError("price", "price exceeds 99999999.99")
	case p.Stock < 0:
		return NewValidationError("stock", "stock must be >= 0")
	case p.Stock > MaxStock:
		return NewValidationError("stock", "stock must be <= 2147483647")
	}
	return nil
}
