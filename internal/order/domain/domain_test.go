package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePrice(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10.999", "11.00"},
		{"10.00", "10.00"},
		{"10", "10.00"},
		{"0.005", "0.01"},
		{"0.004", "0.00"},
		{"2.345", "2.35"},
		{"2.355", "2.36"},
		{"19.994999", "19.99"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := NormalizePrice(decimal.RequireFromString(tt.in))
			assert.Equal(t, tt.want, got.StringFixed(2))
		})
	}
}

func TestProductValidate(t *testing.T) {
	valid := func() Product {
		return Product{Name: "Lamp", Description: "Desk lamp", Price: decimal.RequireFromString("10.00"), Stock: 5}
	}

	tests := []struct {
		name   string
		mutate func(p *Product)
		field  string
	}{
		{"valid", func(p *Product) {}, ""},
		{"blank name", func(p *Product) { p.Name = "   " }, "name"},
		{"long name", func(p *Product) { p.Name = strings.Repeat("x", 256) }, "name"},
		{"blank description", func(p *Product) { p.Description = "" }, "description"},
		{"zero price", func(p *Product) { p.Price = decimal.Zero }, "price"},
		{"negative price", func(p *Product) { p.Price = decimal.RequireFromString("-10.00") }, "price"},
		{"rounds to zero", func(p *Product) { p.Price = decimal.RequireFromString("0.004") }, "price"},
		{"too large", func(p *Product) { p.Price = decimal.RequireFromString("100000000") }, "price"},
		{"negative stock", func(p *Product) { p.Stock = -5 }, "stock"},
		{"zero stock", func(p *Product) { p.Stock = 0 }, ""},
		{"max stock", func(p *Product) { p.Stock = MaxStock }, ""},
		{"stock above column range", func(p *Product) { p.Stock = MaxStock + 1 }, "stock"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(&p)
			p.Normalize()
			err := p.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestSumItems(t *testing.T) {
	items := []OrderItem{
		{Quantity: 2, Price: decimal.RequireFromString("10.00")},
		{Quantity: 3, Price: decimal.RequireFromString("0.10")},
		{Quantity: 1, Price: decimal.RequireFromString("19.99")},
	}
	assert.Equal(t, "40.29", SumItems(items).StringFixed(2))
}

func TestErrorClassification(t *testing.T) {
	wrapped := fmt.Errorf("create order: %w", &InsufficientStockError{ProductID: 7, Requested: 3, Available: 1})
	assert.True(t, errors.Is(wrapped, ErrInsufficientStock))
	assert.True(t, IsCallerError(wrapped))
	assert.True(t, IsCallerError(ProductNotFound(3)))
	assert.False(t, IsCallerError(errors.New("connection reset")))
	assert.Equal(t, "order 9 not found", OrderNotFound(9).Error())
}

func TestValidateTotal(t *testing.T) {
	assert.NoError(t, ValidateTotal(decimal.RequireFromString("99999999.99")))

	err := ValidateTotal(decimal.RequireFromString("100000000.00"))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "items", verr.Field)
}

func TestOrderStatusValid(t *testing.T) {
	assert.True(t, OrderStatusPending.Valid())
	assert.True(t, OrderStatusCompleted.Valid())
	assert.False(t, OrderStatus("shipped").Valid())
	assert.False(t, OrderStatus("").Valid())
}
