// Package client is a small HTTP client for the order service API, used by
// the CLI and the bench runner.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nazeru/shop-orders-go/pkg/idempotency"
)

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// APIError is any non-2xx answer.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Field   string `json:"field"`
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("status %d: %s (%s)", e.Status, e.Message, e.Field)
	}
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

// Product prices are kept as the two-digit strings the API returns.
type Product struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Stock       int    `json:"stock"`
}

type ProductPage struct {
	Count    int       `json:"count"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
	Results  []Product `json:"results"`
}

type OrderItem struct {
	Product  int64  `json:"product"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price,omitempty"`
}

type Order struct {
	ID         int64       `json:"id"`
	Items      []OrderItem `json:"items"`
	TotalPrice string      `json:"total_price"`
	Status     string      `json:"status"`
}

type NewProduct struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Stock       int    `json:"stock"`
}

type OrderLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

func (c *Client) ListProducts(ctx context.Context, page, pageSize int) (ProductPage, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}
	path := "/products"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out ProductPage
	_, err := c.do(ctx, http.MethodGet, path, nil, "", &out)
	return out, err
}

func (c *Client) GetProduct(ctx context.Context, id int64) (Product, error) {
	var out Product
	_, err := c.do(ctx, http.MethodGet, "/products/"+strconv.FormatInt(id, 10), nil, "", &out)
	return out, err
}

func (c *Client) CreateProduct(ctx context.Context, p NewProduct) (Product, error) {
	var out Product
	_, err := c.do(ctx, http.MethodPost, "/products", p, "", &out)
	return out, err
}

// CreateOrder places an order. A non-empty key is sent as Idempotency-Key;
// replayed reports that the server returned an earlier order for it.
func (c *Client) CreateOrder(ctx context.Context, key string, lines []OrderLine) (o Order, replayed bool, err error) {
	status, err := c.do(ctx, http.MethodPost, "/orders", map[string]any{"items": lines}, key, &o)
	return o, status == http.StatusOK, err
}

func (c *Client) GetOrder(ctx context.Context, id int64) (Order, error) {
	var out Order
	_, err := c.do(ctx, http.MethodGet, "/orders/"+strconv.FormatInt(id, 10), nil, "", &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in any, idemKey string, out any) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if idemKey != "" {
		req.Header.Set(idempotency.Header, idemKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return resp.StatusCode, apiErr
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
