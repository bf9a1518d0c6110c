package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"example.com/hdtickets/services/discovery/domain"
	"example.com/hdtickets/services/discovery/eventstore"
	"example.com/hdtickets/services/discovery/metrics"
)

// Wildcard subscribes a handler to every event type.
const Wildcard = "*"

const retryBaseDelay = 100 * time.Millisecond

// Handler reacts to a dispatched domain event. Handlers must be idempotent:
// delivery is at-least-once and the replay worker may run them again.
type Handler interface {
	Name() string
	Handle(ctx context.Context, event domain.Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc struct {
	name string
	fn   func(ctx context.Context, event domain.Event) error
}

// NewHandlerFunc wraps fn as a named handler.
func NewHandlerFunc(name string, fn func(ctx context.Context, event domain.Event) error) HandlerFunc {
	return HandlerFunc{name: name, fn: fn}
}

// Name returns the handler name used for registration and logging.
func (h HandlerFunc) Name() string { return h.name }

// Handle invokes the wrapped function.
func (h HandlerFunc) Handle(ctx context.Context, event domain.Event) error {
	return h.fn(ctx, event)
}

// Bus is the in-process publish/subscribe router. Every dispatch stores the
// event before any delivery, so durability always precedes handler execution.
type Bus struct {
	store eventstore.EventStore

	mu       sync.RWMutex
	handlers map[string][]Handler

	queue chan domain.Event
	wg    sync.WaitGroup
}

// NewBus creates a bus with the given number of async delivery workers and
// queue capacity.
func NewBus(store eventstore.EventStore, workers, queueSize int) *Bus {
	if workers <= 0 {
		workers = 1
	}

	b := &Bus{
		store:    store,
		handlers: make(map[string][]Handler),
		queue:    make(chan domain.Event, queueSize),
	}

	for i := 0; i < workers; i++ {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			for event := range b.queue {
				b.finalize(context.Background(), event, b.deliver(context.Background(), event))
			}
		}()
	}

	return b
}

// Subscribe registers a handler for an event type. Use Wildcard to receive
// every event.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Unsubscribe removes a handler, matched by name, from an event type.
func (b *Bus) Unsubscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	registered := b.handlers[eventType]
	kept := registered[:0]
	for _, h := range registered {
		if h.Name() != handler.Name() {
			kept = append(kept, h)
		}
	}
	b.handlers[eventType] = kept
}

// Dispatch stores the event, then delivers it synchronously to every handler
// registered for its type. Handler failures are isolated and never fail the
// dispatch; a store failure propagates and nothing is delivered.
func (b *Bus) Dispatch(ctx context.Context, event domain.Event) error {
	if err := b.store.Store(ctx, event); err != nil {
		return fmt.Errorf("failed to store event %s: %w", event.Type, err)
	}

	b.finalize(ctx, event, b.deliver(ctx, event))
	return nil
}

// DispatchMany stores the full batch against the first event's aggregate,
// then dispatches each event in order. A store failure anywhere prevents any
// delivery for the batch.
func (b *Bus) DispatchMany(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	if err := b.store.StoreMany(ctx, events, events[0].AggregateID); err != nil {
		return fmt.Errorf("failed to store event batch: %w", err)
	}

	for _, event := range events {
		b.finalize(ctx, event, b.deliver(ctx, event))
	}
	return nil
}

// DispatchAsync stores the event synchronously, then hands delivery to the
// worker pool. The caller never blocks on handler execution.
func (b *Bus) DispatchAsync(ctx context.Context, event domain.Event) error {
	if err := b.store.Store(ctx, event); err != nil {
		return fmt.Errorf("failed to store event %s: %w", event.Type, err)
	}

	select {
	case b.queue <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DispatchWithRetry retries the whole Dispatch call with exponential backoff
// on store/dispatch failure. Handler failures are already isolated inside
// Dispatch and are never retried here.
func (b *Bus) DispatchWithRetry(ctx context.Context, event domain.Event, maxRetries int) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := retryBaseDelay * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if lastErr = b.Dispatch(ctx, event); lastErr == nil {
			return nil
		}

		log.Warn().
			Err(lastErr).
			Str("eventType", event.Type).
			Int("attempt", attempt+1).
			Msg("Dispatch failed, retrying")
	}

	return fmt.Errorf("dispatch failed after %d retries: %w", maxRetries, lastErr)
}

// finalize marks the event processed when every handler succeeded. A failed
// delivery leaves the event unprocessed for the replay worker.
func (b *Bus) finalize(ctx context.Context, event domain.Event, failed int) {
	if failed > 0 {
		return
	}
	if err := b.store.MarkEventAsProcessed(ctx, event.ID); err != nil {
		log.Warn().Err(err).Str("eventID", event.ID).Msg("Failed to mark event as processed")
	}
}

// Replay re-delivers an already stored event to its handlers without storing
// it again. Unlike Dispatch it reports handler failures, so the replay worker
// can leave the event unprocessed and try again later.
func (b *Bus) Replay(ctx context.Context, event domain.Event) error {
	if failed := b.deliver(ctx, event); failed > 0 {
		return fmt.Errorf("%d handler(s) failed for event %s", failed, event.ID)
	}
	return nil
}

// Close drains the async queue and stops the workers.
func (b *Bus) Close() {
	close(b.queue)
	b.wg.Wait()
}

// deliver runs every registered handler for the event, each individually
// isolated. One handler failing or panicking never prevents the others.
// Returns the number of handlers that failed.
func (b *Bus) deliver(ctx context.Context, event domain.Event) int {
	metrics.EventsDispatched.WithLabelValues(event.Type).Inc()

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[event.Type])+len(b.handlers[Wildcard]))
	handlers = append(handlers, b.handlers[event.Type]...)
	handlers = append(handlers, b.handlers[Wildcard]...)
	b.mu.RUnlock()

	failed := 0
	for _, handler := range handlers {
		if err := b.runHandler(ctx, handler, event); err != nil {
			failed++
		}
	}
	return failed
}

// runHandler invokes a single handler, converting panics into recorded
// failures. Failed deliveries stay unprocessed in the store for the replay
// worker to pick up.
func (b *Bus) runHandler(ctx context.Context, handler Handler, event domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %s panicked: %v", handler.Name(), r)
			metrics.HandlerFailures.WithLabelValues(handler.Name(), event.Type).Inc()
			log.Error().
				Interface("panic", r).
				Str("handler", handler.Name()).
				Str("eventID", event.ID).
				Str("eventType", event.Type).
				Msg("Handler panicked")
		}
	}()

	if err = handler.Handle(ctx, event); err != nil {
		metrics.HandlerFailures.WithLabelValues(handler.Name(), event.Type).Inc()
		log.Error().
			Err(err).
			Str("handler", handler.Name()).
			Str("eventID", event.ID).
			Str("eventType", event.Type).
			Msg("Handler failed")
	}
	return err
}
