package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/nazeru/shop-orders-go/internal/catalog"
	"github.com/nazeru/shop-orders-go/internal/order/domain"
)

// Prices are rendered as fixed two-digit strings. Requests accept a JSON
// number or string.

type productRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       *int            `json:"stock"`
}

type productPatchRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock"`
}

func (p productPatchRequest) patch() catalog.ProductPatch {
	return catalog.ProductPatch{Name: p.Name, Description: p.Description, Price: p.Price, Stock: p.Stock}
}

type productResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       string    `json:"price"`
	Stock       int       `json:"stock"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toProductResponse(p domain.Product) productResponse {
	return productResponse{
		ID:          int64(p.ID),
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.StringFixed(domain.PriceScale),
		Stock:       p.Stock,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

type productPageResponse struct {
	Count    int               `json:"count"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Results  []productResponse `json:"results"`
}

type orderItemRequest struct {
	ProductID *int64 `json:"product_id"`
	// Product is accepted as an alias of product_id.
	Product  *int64 `json:"product"`
	Quantity int    `json:"quantity"`
}

type orderRequest struct {
	Items []orderItemRequest `json:"items"`
}

type orderItemResponse struct {
	ID       int64  `json:"id"`
	Product  int64  `json:"product"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
}

type orderResponse struct {
	ID         int64               `json:"id"`
	Items      []orderItemResponse `json:"items"`
	TotalPrice string              `json:"total_price"`
	Status     string              `json:"status"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

func toOrderResponse(o domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			ID:       int64(it.ID),
			Product:  int64(it.ProductID),
			Quantity: it.Quantity,
			Price:    it.Price.StringFixed(domain.PriceScale),
		})
	}
	return orderResponse{
		ID:         int64(o.ID),
		Items:      items,
		TotalPrice: o.TotalPrice.StringFixed(domain.PriceScale),
		Status:     string(o.Status),
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}
