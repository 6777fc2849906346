package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/nazeru/shop-orders-go/internal/catalog"
	"github.com/nazeru/shop-orders-go/internal/config"
	"github.com/nazeru/shop-orders-go/internal/httpapi"
	"github.com/nazeru/shop-orders-go/internal/order"
	ordertx "github.com/nazeru/shop-orders-go/internal/order/tx"
	"github.com/nazeru/shop-orders-go/internal/platform/observability"
	"github.com/nazeru/shop-orders-go/internal/store/memory"
	"github.com/nazeru/shop-orders-go/internal/store/postgres"
	"github.com/nazeru/shop-orders-go/pkg/kafka"
	"github.com/nazeru/shop-orders-go/pkg/logging"
	"github.com/nazeru/shop-orders-go/pkg/metrics"
	"github.com/nazeru/shop-orders-go/pkg/outbox"
)

const serviceName = "order-service"

// backend is what the service needs from a store implementation.
type backend interface {
	catalog.Repository
	order.Repository
	ordertx.Store
	outbox.Store
	Ping(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := logging.New(serviceName, cfg.Debug)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		logger.Fatal("tracing setup failed", zap.Error(err))
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store setup failed", zap.Error(err))
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engine := ordertx.NewEngine(store, logger.Named("engine"), metrics.NewOrderMetrics(reg, "order_service"))
	engine.Retry.MaxAttempts = cfg.TxMaxAttempts
	engine.EventTopic = cfg.KafkaTopic

	var auth httpapi.Authorizer = httpapi.NewTokenAuthorizer(cfg.APITokens)
	if len(cfg.APITokens) == 0 {
		logger.Warn("API_TOKENS is empty, API requests are not authenticated")
		auth = httpapi.AllowAll{}
	}

	api := httpapi.New(httpapi.Deps{
		Catalog:        catalog.NewService(store),
		Orders:         store,
		Engine:         engine,
		Auth:           auth,
		Logger:         logger.Named("http"),
		Metrics:        metrics.NewServerMetrics(reg, "order_service"),
		MetricsHandler: metrics.Handler(reg),
		Ping:           store.Ping,
		RequestTimeout: cfg.RequestTimeout,
		ServiceName:    serviceName,
	})

	kc := kafka.NewClient(cfg.KafkaBrokers)
	var publisher *kafka.Publisher
	if kc.Enabled() {
		publisher = &kafka.Publisher{Writer: kc.NewWriter()}
		relay := &outbox.Relay{Store: store, Publisher: publisher, Logger: logger.Named("outbox")}
		go relay.Run(ctx)
	} else {
		logger.Info("KAFKA_BROKERS is empty, outbox events stay in the store")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("listening",
		zap.String("addr", srv.Addr),
		zap.String("store", cfg.Store),
		zap.Bool("kafka", kc.Enabled()),
	)
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shutdown(shutdownCtx, logger, []shutdownStep{
		{"http", srv.Shutdown},
		{"kafka writer", func(context.Context) error { return publisher.Close() }},
		{"tracing", shutdownTracing},
	})
}

type shutdownStep struct {
	name string
	fn   func(ctx context.Context) error
}

// shutdown runs every step in order; a failing step is logged and the rest
// still run.
func shutdown(ctx context.Context, logger *zap.Logger, steps []shutdownStep) {
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			logger.Error("shutdown", zap.String("step", s.name), zap.Error(err))
		}
	}
	logger.Info("stopped")
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (backend, func(), error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory store, data is lost on restart")
		return memory.NewStore(), func() {}, nil
	}

	s, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Migrate {
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, nil, err
		}
		logger.Info("schema migrated")
	}
	return s, s.Close, nil
}
