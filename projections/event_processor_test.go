package projections

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/hdtickets/services/discovery/domain"
)

type replayStore struct {
	mu        sync.Mutex
	events    []domain.Event
	processed map[string]bool
}

func newReplayStore(events ...domain.Event) *replayStore {
	return &replayStore{events: events, processed: make(map[string]bool)}
}

func (s *replayStore) Store(ctx context.Context, event domain.Event) error { return nil }
func (s *replayStore) StoreMany(ctx context.Context, events []domain.Event, aggregateID string) error {
	return nil
}
func (s *replayStore) Save(ctx context.Context, aggregate domain.Aggregate) error { return nil }
func (s *replayStore) Load(ctx context.Context, aggregate domain.Aggregate) error { return nil }
func (s *replayStore) GetEvents(ctx context.Context, aggregateID string) ([]domain.Event, error) {
	return nil, nil
}

func (s *replayStore) GetUnprocessedEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Event
	for _, e := range s.events {
		if !s.processed[e.ID] {
			out = append(out, e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *replayStore) MarkEventAsProcessed(ctx context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[eventID] = true
	return nil
}

type stubReplayer struct {
	mu     sync.Mutex
	errors map[string]error
	seen   []string
}

func (r *stubReplayer) Replay(ctx context.Context, event domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, event.ID)
	return r.errors[event.ID]
}

func TestProcessBatchMarksSuccessfulReplays(t *testing.T) {
	good, err := domain.NewEvent(domain.AggregateTicket, "t-1", domain.TicketDiscoveredEvent{TicketID: "t-1"})
	require.NoError(t, err)
	bad, err := domain.NewEvent(domain.AggregateTicket, "t-2", domain.TicketDiscoveredEvent{TicketID: "t-2"})
	require.NoError(t, err)

	store := newReplayStore(good, bad)
	replayer := &stubReplayer{errors: map[string]error{bad.ID: errors.New("handler failed")}}
	processor := NewEventProcessor(store, replayer)

	processor.processBatch(context.Background())

	assert.True(t, store.processed[good.ID])
	assert.False(t, store.processed[bad.ID], "failed replay stays unprocessed")

	// The failed event is retried on the next poll
	processor.processBatch(context.Background())
	assert.Equal(t, []string{good.ID, bad.ID, bad.ID}, replayer.seen)
}
