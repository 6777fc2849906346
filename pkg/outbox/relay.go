package outbox

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// Relay moves pending outbox records to the publisher in id order. A record is
// marked sent only after a successful publish, so delivery is at-least-once.
type Relay struct {
	Store     Store
	Publisher Publisher
	Logger    *zap.Logger
	Interval  time.Duration
	BatchSize int
}

func (r *Relay) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			r.Logger.Warn("outbox flush failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Flush publishes one batch and returns how many records were sent. It stops
// at the first publish failure to keep per-key ordering.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	batch := r.BatchSize
	if batch <= 0 {
		batch = 100
	}
	recs, err := r.Store.FetchPending(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("fetch pending: %w", err)
	}

	sent := 0
	for _, rec := range recs {
		if err := r.Publisher.Publish(ctx, rec.Topic, rec.Key, rec.Payload); err != nil {
			return sent, fmt.Errorf("publish %s: %w", rec.EventID, err)
		}
		if err := r.Store.MarkSent(ctx, rec.ID); err != nil {
			return sent, fmt.Errorf("mark sent %d: %w", rec.ID, err)
		}
		sent++
	}
	if sent > 0 {
		r.Logger.Debug("outbox flushed", zap.Int("sent", sent))
	}
	return sent, nil
}
