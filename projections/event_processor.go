package projections

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"example.com/hdtickets/services/discovery/domain"
	"example.com/hdtickets/services/discovery/eventstore"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultBatchSize    = 50
)

// Replayer re-delivers an already stored event to its handlers.
type Replayer interface {
	Replay(ctx context.Context, event domain.Event) error
}

// EventProcessor is the replay worker. It polls the store for events whose
// delivery never completed and runs them through the handlers again. Combined
// with idempotent handlers this gives at-least-once processing.
type EventProcessor struct {
	store    eventstore.EventStore
	replayer Replayer

	pollInterval time.Duration
	batchSize    int

	stopChan chan struct{}
	doneChan chan struct{}
}

// NewEventProcessor creates a replay worker with default polling settings.
func NewEventProcessor(store eventstore.EventStore, replayer Replayer) *EventProcessor {
	return &EventProcessor{
		store:        store,
		replayer:     replayer,
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Start begins polling in a background goroutine.
func (p *EventProcessor) Start() {
	log.Info().
		Dur("interval", p.pollInterval).
		Int("batchSize", p.batchSize).
		Msg("Starting event replay worker")

	go p.run()
}

// Stop halts polling and waits for the current batch to finish.
func (p *EventProcessor) Stop() {
	close(p.stopChan)
	<-p.doneChan
	log.Info().Msg("Event replay worker stopped")
}

func (p *EventProcessor) run() {
	defer close(p.doneChan)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.processBatch(context.Background())
		}
	}
}

// processBatch replays one batch of unprocessed events. An event is marked
// processed only when every handler succeeded; otherwise it stays in the
// store for the next poll.
func (p *EventProcessor) processBatch(ctx context.Context) {
	events, err := p.store.GetUnprocessedEvents(ctx, p.batchSize)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch unprocessed events")
		return
	}

	for _, event := range events {
		if err := p.replayer.Replay(ctx, event); err != nil {
			log.Warn().
				Err(err).
				Str("eventID", event.ID).
				Str("eventType", event.Type).
				Msg("Replay incomplete, will retry")
			continue
		}

		if err := p.store.MarkEventAsProcessed(ctx, event.ID); err != nil {
			log.Error().
				Err(err).
				Str("eventID", event.ID).
				Msg("Failed to mark event as processed")
		}
	}
}
