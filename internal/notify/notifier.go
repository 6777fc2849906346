// Package notify turns order events read from Kafka into customer
// notifications. Delivery is at-least-once, so events are deduplicated by id.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nazeru/shop-orders-go/pkg/contracts"
	"github.com/nazeru/shop-orders-go/pkg/logging"
	"github.com/nazeru/shop-orders-go/pkg/tx/retry"
)

var ErrMalformedEvent = errors.New("malformed event")

// Sender delivers one notification. The default sender only logs.
type Sender interface {
	Send(ctx context.Context, evt contracts.Event) error
}

type LogSender struct {
	Logger *zap.Logger
}

func (s LogSender) Send(_ context.Context, evt contracts.Event) error {
	logging.Log(s.Logger, logging.Fields{
		Service: "notification-service",
		OrderID: evt.OrderID,
		EventID: evt.EventID,
		Step:    evt.Type,
		Status:  "emitted",
		Message: fmt.Sprintf("order %s: %s", evt.OrderID, evt.Type),
	})
	return nil
}

// Notifier remembers the last seenLimit event ids.
type Notifier struct {
	Sender Sender

	mu        sync.Mutex
	seen      map[string]struct{}
	order     []string
	seenLimit int
}

func New(sender Sender, seenLimit int) *Notifier {
	if seenLimit <= 0 {
		seenLimit = 10000
	}
	return &Notifier{Sender: sender, seen: make(map[string]struct{}), seenLimit: seenLimit}
}

// Handle decodes one message and sends it unless it was already handled.
// It reports whether a notification went out.
func (n *Notifier) Handle(ctx context.Context, value []byte) (bool, error) {
	var evt contracts.Event
	if err := json.Unmarshal(value, &evt); err != nil {
		return false, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if evt.EventID == "" {
		return false, fmt.Errorf("%w: missing event_id", ErrMalformedEvent)
	}
	if n.handled(evt.EventID) {
		return false, nil
	}
	if err := n.Sender.Send(ctx, evt); err != nil {
		return false, err
	}
	n.remember(evt.EventID)
	return true, nil
}

// Deliver calls Handle until the notification goes out or ctx is done, so the
// caller can commit the message afterwards. Malformed events are returned at
// once since no retry can fix them.
func (n *Notifier) Deliver(ctx context.Context, value []byte, backoff time.Duration, onRetry func(attempt int, err error)) error {
	p := retry.Policy{
		MaxAttempts:   math.MaxInt,
		InitialDelay:  backoff,
		MaxDelay:      30 * backoff,
		BackoffFactor: 2,
	}
	notMalformed := func(err error) bool { return !errors.Is(err, ErrMalformedEvent) }
	return retry.Do(ctx, p, notMalformed, onRetry, func(ctx context.Context) error {
		_, err := n.Handle(ctx, value)
		return err
	})
}

func (n *Notifier) handled(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.seen[id]
	return ok
}

func (n *Notifier) remember(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.seen[id]; ok {
		return
	}
	n.seen[id] = struct{}{}
	n.order = append(n.order, id)
	if len(n.order) > n.seenLimit {
		delete(n.seen, n.order[0])
		n.order = n.order[1:]
	}
}
