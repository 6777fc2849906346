package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	mu   sync.Mutex
	recs []Record
}

func (s *fakeStore) FetchPending(_ context.Context, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, r := range s.recs {
		if r.SentAt == nil && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkSent(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for i := range s.recs {
		if s.recs[i].ID == id {
			s.recs[i].SentAt = &now
		}
	}
	return nil
}

type fakePublisher struct {
	keys   []string
	failOn string
}

func (p *fakePublisher) Publish(_ context.Context, _, key string, _ []byte) error {
	if key == p.failOn {
		return errors.New("broker unavailable")
	}
	p.keys = append(p.keys, key)
	return nil
}

func TestRelayFlushInOrder(t *testing.T) {
	store := &fakeStore{recs: []Record{
		{ID: 1, EventID: "e1", Topic: "shop.orders", Key: "1"},
		{ID: 2, EventID: "e2", Topic: "shop.orders", Key: "2"},
		{ID: 3, EventID: "e3", Topic: "shop.orders", Key: "3"},
	}}
	pub := &fakePublisher{}
	relay := &Relay{Store: store, Publisher: pub, Logger: zap.NewNop(), BatchSize: 2}

	sent, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	sent, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	assert.Equal(t, []string{"1", "2", "3"}, pub.keys)

	sent, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestRelayStopsAtFailure(t *testing.T) {
	store := &fakeStore{recs: []Record{
		{ID: 1, EventID: "e1", Key: "1"},
		{ID: 2, EventID: "e2", Key: "2"},
		{ID: 3, EventID: "e3", Key: "3"},
	}}
	pub := &fakePublisher{failOn: "2"}
	relay := &Relay{Store: store, Publisher: pub, Logger: zap.NewNop()}

	sent, err := relay.Flush(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, sent)

	pending, _ := store.FetchPending(context.Background(), 10)
	require.Len(t, pending, 2)
	assert.Equal(t, int64(2), pending[0].ID)
}
