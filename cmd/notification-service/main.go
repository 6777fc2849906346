package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/nazeru/shop-orders-go/internal/notify"
	"github.com/nazeru/shop-orders-go/pkg/contracts"
	"github.com/nazeru/shop-orders-go/pkg/kafka"
	"github.com/nazeru/shop-orders-go/pkg/logging"
	"github.com/nazeru/shop-orders-go/pkg/metrics"
)

type cfg struct {
	Port         string
	KafkaBrokers string
	Topic        string
	GroupID      string
}

func readCfg() cfg {
	return cfg{
		Port:         getenv("PORT", "8081"),
		KafkaBrokers: getenv("KAFKA_BROKERS", ""),
		Topic:        getenv("KAFKA_TOPIC", contracts.DefaultTopic),
		GroupID:      getenv("KAFKA_GROUP_ID", "notification-service"),
	}
}

func main() {
	cfg := readCfg()
	logger := logging.New("notification-service", os.Getenv("DEBUG") == "true")
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	srvMetrics := metrics.NewServerMetrics(reg, "notification_service")

	client := kafka.NewClient(cfg.KafkaBrokers)
	if client.Enabled() {
		n := notify.New(notify.LogSender{Logger: logger}, 0)
		go consume(ctx, logger, client, cfg, n)
	} else {
		logger.Warn("KAFKA_BROKERS is empty, nothing to consume")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
		srvMetrics.Observe("health", http.StatusOK, start)
	})
	mux.Handle("/metrics", metrics.Handler(reg))

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", zap.String("addr", srv.Addr), zap.String("topic", cfg.Topic))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server error", zap.Error(err))
	}
}

func consume(ctx context.Context, logger *zap.Logger, client *kafka.Client, cfg cfg, n *notify.Notifier) {
	reader := client.NewReader(cfg.Topic, cfg.GroupID)
	defer reader.Close()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("kafka read error", zap.Error(err))
			time.Sleep(2 * time.Second)
			continue
		}
		onRetry := func(attempt int, err error) {
			logger.Warn("send failed, retrying",
				zap.Int64("offset", msg.Offset), zap.Int("attempt", attempt), zap.Error(err))
		}
		if err := n.Deliver(ctx, msg.Value, 500*time.Millisecond, onRetry); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("skipping malformed event", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logger.Warn("kafka commit error", zap.Error(err))
		}
	}
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
