// Package httpapi translates HTTP requests into catalog and order calls.
// Handlers decode, delegate and encode; domain rules live below them.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/nazeru/shop-orders-go/internal/catalog"
	"github.com/nazeru/shop-orders-go/internal/order"
	ordertx "github.com/nazeru/shop-orders-go/internal/order/tx"
	"github.com/nazeru/shop-orders-go/pkg/metrics"
)

type Deps struct {
	Catalog *catalog.Service
	Orders  order.Repository
	Engine  *ordertx.Engine
	Auth    Authorizer

	Logger  *zap.Logger
	Metrics *metrics.ServerMetrics
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
	// Ping backs /health; nil means always healthy.
	Ping func(ctx context.Context) error

	RequestTimeout time.Duration
	ServiceName    string
}

type Server struct {
	Deps
}

func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Auth == nil {
		d.Auth = AllowAll{}
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 5 * time.Second
	}
	if d.ServiceName == "" {
		d.ServiceName = "order-service"
	}
	return &Server{Deps: d}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.health)
	if s.MetricsHandler != nil {
		mux.Handle("GET /metrics", s.MetricsHandler)
	}

	s.route(mux, "GET /products", "list_products", s.listProducts)
	s.route(mux, "POST /products", "create_product", s.createProduct)
	s.route(mux, "GET /products/{id}", "get_product", s.getProduct)
	s.route(mux, "PATCH /products/{id}", "update_product", s.updateProduct)
	s.route(mux, "DELETE /products/{id}", "delete_product", s.deleteProduct)
	s.route(mux, "POST /orders", "create_order", s.createOrder)
	s.route(mux, "GET /orders/{id}", "get_order", s.getOrder)
	s.route(mux, "DELETE /orders/{id}", "delete_order", s.deleteOrder)

	return otelhttp.NewHandler(mux, s.ServiceName,
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health" && r.URL.Path != "/metrics"
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// route registers an authenticated, instrumented handler.
func (s *Server) route(mux *http.ServeMux, pattern, name string, h http.HandlerFunc) {
	mux.Handle(pattern, s.instrument(name, RequireAuth(s.Auth, s.withTimeout(h))))
}

func (s *Server) withTimeout(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.RequestTimeout)
		defer cancel()
		next(w, r.WithContext(ctx))
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.Ping(ctx); err != nil {
			s.Logger.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
