package catalog_test

import (
	"context"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nazeru/shop-orders-go/internal/catalog"
	"github.com/nazeru/shop-orders-go/internal/order/domain"
	"github.com/nazeru/shop-orders-go/internal/store/memory"
)

func newService() *catalog.Service {
	return catalog.NewService(memory.NewStore())
}

func newProduct(price string, stock int) catalog.NewProduct {
	return catalog.NewProduct{
		Name:        "Test Product",
		Description: "Test Description",
		Price:       decimal.RequireFromString(price),
		Stock:       stock,
	}
}

func TestCreateRoundsPrice(t *testing.T) {
	svc := newService()

	p, err := svc.Create(context.Background(), newProduct("10.999", 5))
	require.NoError(t, err)
	assert.Equal(t, "11.00", p.Price.StringFixed(2))

	stored, err := svc.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, stored.Price.Equal(decimal.RequireFromString("11.00")))
	assert.False(t, stored.CreatedAt.IsZero())
}

func TestCreateRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		in    catalog.NewProduct
		field string
	}{
		{"negative price", newProduct("-10.00", 5), "price"},
		{"negative stock", newProduct("10.00", -5), "stock"},
		{"blank name", catalog.NewProduct{Name: " ", Description: "d", Price: decimal.NewFromInt(1)}, "name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService()
			_, err := svc.Create(context.Background(), tt.in)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)

			page, err := svc.List(context.Background(), catalog.Page{})
			require.NoError(t, err)
			assert.Zero(t, page.Count)
		})
	}
}

func TestUpdateReappliesRounding(t *testing.T) {
	svc := newService()
	p, err := svc.Create(context.Background(), newProduct("10.00", 5))
	require.NoError(t, err)

	price := decimal.RequireFromString("49.995")
	updated, err := svc.Update(context.Background(), p.ID, catalog.ProductPatch{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, "50.00", updated.Price.StringFixed(2))
	assert.Equal(t, p.CreatedAt, updated.CreatedAt)

	stock := -1
	_, err = svc.Update(context.Background(), p.ID, catalog.ProductPatch{Stock: &stock})
	assert.ErrorIs(t, err, domain.ErrValidation)

	stored, _ := svc.Get(context.Background(), p.ID)
	assert.Equal(t, 5, stored.Stock)
	assert.Equal(t, "50.00", stored.Price.StringFixed(2))

	_, err = svc.Update(context.Background(), 404, catalog.ProductPatch{Price: &price})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListPagination(t *testing.T) {
	svc := newService()
	for i := 0; i < 25; i++ {
		_, err := svc.Create(context.Background(), newProduct("1.00", i))
		require.NoError(t, err)
	}

	page, err := svc.List(context.Background(), catalog.Page{})
	require.NoError(t, err)
	assert.Equal(t, 25, page.Count)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, catalog.DefaultPageSize, page.PageSize)
	require.Len(t, page.Results, catalog.DefaultPageSize)
	assert.Equal(t, domain.ProductID(1), page.Results[0].ID)

	page, err = svc.List(context.Background(), catalog.Page{Number: 3, Size: 10})
	require.NoError(t, err)
	require.Len(t, page.Results, 5)
	assert.Equal(t, domain.ProductID(21), page.Results[0].ID)

	page, err = svc.List(context.Background(), catalog.Page{Number: 1, Size: 500})
	require.NoError(t, err)
	assert.Equal(t, catalog.MaxPageSize, page.PageSize)
	assert.Len(t, page.Results, 25)

	page, err = svc.List(context.Background(), catalog.Page{Number: 9})
	require.NoError(t, err)
	assert.Empty(t, page.Results)
	assert.NotNil(t, page.Results)

	page, err = svc.List(context.Background(), catalog.Page{Number: math.MaxInt, Size: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Results)
	assert.Equal(t, 25, page.Count)

	_, err = svc.List(context.Background(), catalog.Page{Number: -1})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.List(context.Background(), catalog.Page{Size: -3})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDecrementStock(t *testing.T) {
	svc := newService()
	p, err := svc.Create(context.Background(), newProduct("10.00", 10))
	require.NoError(t, err)

	_, err = svc.DecrementStock(context.Background(), p.ID, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.DecrementStock(context.Background(), p.ID, 11)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	got, err := svc.DecrementStock(context.Background(), p.ID, 10)
	require.NoError(t, err)
	assert.Zero(t, got.Stock)

	_, err = svc.DecrementStock(context.Background(), 99, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
