package catalog

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/nazeru/shop-orders-go/internal/order/domain"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Repository persists products. Implementations store what they are given;
// normalization and validation happen in Service.
type Repository interface {
	CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error)
	GetProduct(ctx context.Context, id domain.ProductID) (domain.Product, error)
	// ListProducts returns products in id order plus the total count.
	ListProducts(ctx context.Context, offset, limit int) ([]domain.Product, int, error)
	// UpdateProduct loads the product, applies mutate and writes the result
	// atomically. If mutate fails nothing is written.
	UpdateProduct(ctx context.Context, id domain.ProductID, mutate func(p *domain.Product) error) (domain.Product, error)
	// DeleteProduct removes the product and every order item referencing it.
	DeleteProduct(ctx context.Context, id domain.ProductID) error
	// DecrementStock fails with *domain.InsufficientStockError instead of
	// letting stock go negative.
	DecrementStock(ctx context.Context, id domain.ProductID, amount int) (domain.Product, error)
}

type NewProduct struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
}

// ProductPatch carries the fields to change; nil means keep.
type ProductPatch struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Stock       *int
}

type Page struct {
	Number int
	Size   int
}

type ProductPage struct {
	Count    int
	Page     int
	PageSize int
	Results  []domain.Product
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// prepare is the write hook shared by every path that persists a product.
func prepare(p *domain.Product) error {
	p.Normalize()
	return p.Validate()
}

func (s *Service) Create(ctx context.Context, in NewProduct) (domain.Product, error) {
	p := domain.Product{
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
	}
	if err := prepare(&p); err != nil {
		return domain.Product{}, err
	}
	created, err := s.repo.CreateProduct(ctx, p)
	if err != nil {
		return domain.Product{}, fmt.Errorf("create product: %w", err)
	}
	return created, nil
}

func (s *Service) Get(ctx context.Context, id domain.ProductID) (domain.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) List(ctx context.Context, page Page) (ProductPage, error) {
	page, err := normalizePage(page)
	if err != nil {
		return ProductPage{}, err
	}
	items, count, err := s.repo.ListProducts(ctx, page.offset(), page.Size)
	if err != nil {
		return ProductPage{}, fmt.Errorf("list products: %w", err)
	}
	if items == nil {
		items = []domain.Product{}
	}
	return ProductPage{Count: count, Page: page.Number, PageSize: page.Size, Results: items}, nil
}

// offset saturates at math.MaxInt, which every store treats as past the end.
func (p Page) offset() int {
	if p.Number-1 > math.MaxInt/p.Size {
		return math.MaxInt
	}
	return (p.Number - 1) * p.Size
}

func normalizePage(p Page) (Page, error) {
	if p.Number == 0 {
		p.Number = 1
	}
	if p.Number < 1 {
		return Page{}, domain.NewValidationError("page", "page must be >= 1")
	}
	switch {
	case p.Size == 0:
		p.Size = DefaultPageSize
	case p.Size < 0:
		return Page{}, domain.NewValidationError("page_size", "page_size must be >= 1")
	case p.Size > MaxPageSize:
		p.Size = MaxPageSize
	}
	return p, nil
}

func (s *Service) Update(ctx context.Context, id domain.ProductID, patch ProductPatch) (domain.Product, error) {
	return s.repo.UpdateProduct(ctx, id, func(p *domain.Product) error {
		if patch.Name != nil {
			p.Name = *patch.Name
		}
		if patch.Description != nil {
			p.Description = *patch.Description
		}
		if patch.Price != nil {
			p.Price = *patch.Price
		}
		if patch.Stock != nil {
			p.Stock = *patch.Stock
		}
		return prepare(p)
	})
}

func (s *Service) Delete(ctx context.Context, id domain.ProductID) error {
	return s.repo.DeleteProduct(ctx, id)
}

func (s *Service) DecrementStock(ctx context.Context, id domain.ProductID, amount int) (domain.Product, error) {
	if amount < 1 {
		return domain.Product{}, domain.NewValidationError("amount", "amount must be >= 1")
	}
	return s.repo.DecrementStock(ctx, id, amount)
}
