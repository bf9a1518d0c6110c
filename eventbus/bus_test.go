package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/hdtickets/services/discovery/domain"
)

// memoryStore is an in-memory event store for bus tests.
type memoryStore struct {
	mu        sync.Mutex
	events    []domain.Event
	processed map[string]bool
	failNext  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{processed: make(map[string]bool)}
}

func (s *memoryStore) Store(ctx context.Context, event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext > 0 {
		s.failNext--
		return errors.New("store unavailable")
	}
	s.events = append(s.events, event)
	return nil
}

func (s *memoryStore) StoreMany(ctx context.Context, events []domain.Event, aggregateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext > 0 {
		s.failNext--
		return errors.New("store unavailable")
	}
	s.events = append(s.events, events...)
	return nil
}

func (s *memoryStore) Save(ctx context.Context, aggregate domain.Aggregate) error { return nil }
func (s *memoryStore) Load(ctx context.Context, aggregate domain.Aggregate) error { return nil }

func (s *memoryStore) GetEvents(ctx context.Context, aggregateID string) ([]domain.Event, error) {
	return nil, nil
}

func (s *memoryStore) GetUnprocessedEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Event
	for _, e := range s.events {
		if !s.processed[e.ID] {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memoryStore) MarkEventAsProcessed(ctx context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[eventID] = true
	return nil
}

func (s *memoryStore) stored() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *memoryStore) isProcessed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed[id]
}

func discoveredEvent(t *testing.T, ticketID string) domain.Event {
	t.Helper()
	event, err := domain.NewEvent(domain.AggregateTicket, ticketID, domain.TicketDiscoveredEvent{TicketID: ticketID})
	require.NoError(t, err)
	return event
}

// recordingHandler counts deliveries, optionally failing or panicking.
type recordingHandler struct {
	name string
	mu   sync.Mutex
	seen []domain.Event
	fail bool
	boom bool
}

func (h *recordingHandler) Name() string { return h.name }

func (h *recordingHandler) Handle(ctx context.Context, event domain.Event) error {
	h.mu.Lock()
	h.seen = append(h.seen, event)
	h.mu.Unlock()
	if h.boom {
		panic("handler exploded")
	}
	if h.fail {
		return errors.New("handler failed")
	}
	return nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

func TestDispatchStoresBeforeDelivering(t *testing.T) {
	store := newMemoryStore()
	bus := NewBus(store, 1, 8)
	defer bus.Close()

	handler := &recordingHandler{name: "h1"}
	bus.Subscribe(domain.TicketDiscovered, handler)

	event := discoveredEvent(t, "ticket-1")
	require.NoError(t, bus.Dispatch(context.Background(), event))

	assert.Equal(t, 1, store.stored())
	assert.Equal(t, 1, handler.count())
	assert.True(t, store.isProcessed(event.ID))
}

func TestDispatchStoreFailurePreventsDelivery(t *testing.T) {
	store := newMemoryStore()
	store.failNext = 1
	bus := NewBus(store, 1, 8)
	defer bus.Close()

	handler := &recordingHandler{name: "h1"}
	bus.Subscribe(domain.TicketDiscovered, handler)

	err := bus.Dispatch(context.Background(), discoveredEvent(t, "ticket-1"))
	require.Error(t, err)
	assert.Equal(t, 0, handler.count())
}

func TestHandlerFailuresAreIsolated(t *testing.T) {
	store := newMemoryStore()
	bus := NewBus(store, 1, 8)
	defer bus.Close()

	failing := &recordingHandler{name: "failing", fail: true}
	panicking := &recordingHandler{name: "panicking", boom: true}
	healthy := &recordingHandler{name: "healthy"}

	bus.Subscribe(domain.TicketDiscovered, failing)
	bus.Subscribe(domain.TicketDiscovered, panicking)
	bus.Subscribe(domain.TicketDiscovered, healthy)

	event := discoveredEvent(t, "ticket-1")
	require.NoError(t, bus.Dispatch(context.Background(), event))

	assert.Equal(t, 1, failing.count())
	assert.Equal(t, 1, panicking.count())
	assert.Equal(t, 1, healthy.count())

	// A failed delivery stays unprocessed for the replay worker
	assert.False(t, store.isProcessed(event.ID))
}

func TestWildcardReceivesEverything(t *testing.T) {
	store := newMemoryStore()
	bus := NewBus(store, 1, 8)
	defer bus.Close()

	all := &recordingHandler{name: "audit"}
	bus.Subscribe(Wildcard, all)

	require.NoError(t, bus.Dispatch(context.Background(), discoveredEvent(t, "ticket-1")))

	soldOut, err := domain.NewEvent(domain.AggregateTicket, "ticket-1", domain.TicketSoldOutEvent{TicketID: "ticket-1"})
	require.NoError(t, err)
	require.NoError(t, bus.Dispatch(context.Background(), soldOut))

	assert.Equal(t, 2, all.count())
}

func TestUnsubscribeByName(t *testing.T) {
	store := newMemoryStore()
	bus := NewBus(store, 1, 8)
	defer bus.Close()

	handler := &recordingHandler{name: "h1"}
	bus.Subscribe(domain.TicketDiscovered, handler)
	bus.Unsubscribe(domain.TicketDiscovered, handler)

	require.NoError(t, bus.Dispatch(context.Background(), discoveredEvent(t, "ticket-1")))
	assert.Equal(t, 0, handler.count())
}

func TestDispatchManyDeliversInOrder(t *testing.T) {
	store := newMemoryStore()
	bus := NewBus(store, 1, 8)
	defer bus.Close()

	handler := &recordingHandler{name: "h1"}
	bus.Subscribe(domain.TicketDiscovered, handler)
	bus.Subscribe(domain.TicketSoldOut, handler)

	first := discoveredEvent(t, "ticket-1")
	second, err := domain.NewEvent(domain.AggregateTicket, "ticket-1", domain.TicketSoldOutEvent{TicketID: "ticket-1"})
	require.NoError(t, err)

	require.NoError(t, bus.DispatchMany(context.Background(), []domain.Event{first, second}))

	require.Equal(t, 2, handler.count())
	assert.Equal(t, first.ID, handler.seen[0].ID)
	assert.Equal(t, second.ID, handler.seen[1].ID)
	assert.Equal(t, 2, store.stored())
}

func TestDispatchAsyncDeliversThroughWorkers(t *testing.T) {
	store := newMemoryStore()
	bus := NewBus(store, 2, 8)

	handler := &recordingHandler{name: "h1"}
	bus.Subscribe(domain.TicketDiscovered, handler)

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.DispatchAsync(context.Background(), discoveredEvent(t, "ticket-1")))
	}

	// Close drains the queue before returning
	bus.Close()

	assert.Equal(t, 5, handler.count())
	assert.Equal(t, 5, store.stored())
}

func TestDispatchWithRetryRecoversFromTransientStoreFailure(t *testing.T) {
	store := newMemoryStore()
	store.failNext = 2
	bus := NewBus(store, 1, 8)
	defer bus.Close()

	handler := &recordingHandler{name: "h1"}
	bus.Subscribe(domain.TicketDiscovered, handler)

	start := time.Now()
	err := bus.DispatchWithRetry(context.Background(), discoveredEvent(t, "ticket-1"), 3)
	require.NoError(t, err)

	// Two backoffs: 100ms + 200ms
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
	assert.Equal(t, 1, handler.count())
}

func TestDispatchWithRetryGivesUp(t *testing.T) {
	store := newMemoryStore()
	store.failNext = 10
	bus := NewBus(store, 1, 8)
	defer bus.Close()

	err := bus.DispatchWithRetry(context.Background(), discoveredEvent(t, "ticket-1"), 2)
	assert.Error(t, err)
}

func TestReplayReportsHandlerFailures(t *testing.T) {
	store := newMemoryStore()
	bus := NewBus(store, 1, 8)
	defer bus.Close()

	failing := &recordingHandler{name: "failing", fail: true}
	bus.Subscribe(domain.TicketDiscovered, failing)

	err := bus.Replay(context.Background(), discoveredEvent(t, "ticket-1"))
	assert.Error(t, err)

	failing.fail = false
	assert.NoError(t, bus.Replay(context.Background(), discoveredEvent(t, "ticket-1")))
}
