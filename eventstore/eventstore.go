package eventstore

import (
	"context"

	"example.com/hdtickets/services/discovery/domain"
)

// EventStore is the append-only source of truth for domain events. Stored
// events are never updated or deleted; the Processed flag is the only
// mutable column and exists for the replay worker.
type EventStore interface {
	// Store appends a single event.
	Store(ctx context.Context, event domain.Event) error

	// StoreMany appends a batch of events as one logical append belonging to
	// a single aggregate. A failure anywhere leaves nothing of the batch
	// durable.
	StoreMany(ctx context.Context, events []domain.Event, aggregateID string) error

	// Save appends an aggregate's uncommitted events and clears them.
	Save(ctx context.Context, aggregate domain.Aggregate) error

	// Load replays an aggregate's events onto it.
	Load(ctx context.Context, aggregate domain.Aggregate) error

	// GetEvents gets all events for an aggregate in version order.
	GetEvents(ctx context.Context, aggregateID string) ([]domain.Event, error)

	// GetUnprocessedEvents gets events not yet delivered to the projectors.
	GetUnprocessedEvents(ctx context.Context, limit int) ([]domain.Event, error)

	// MarkEventAsProcessed marks an event as delivered.
	MarkEventAsProcessed(ctx context.Context, eventID string) error
}
