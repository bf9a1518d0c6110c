package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/rs/zerolog/log"

	"example.com/hdtickets/services/discovery/domain"
	"example.com/hdtickets/services/discovery/platforms"
)

// Message type tags used by the scraping fleet
const (
	ScrapedEvents = "ScrapedEvents"
	ScrapedTicket = "ScrapedTicket"
)

// ScrapedMessage is the common message structure
type ScrapedMessage struct {
	EventType string          `json:"eventType"`
	Platform  string          `json:"platform"`
	Data      json.RawMessage `json:"data"`
}

type MessageProcessor interface {
	ProcessMessage(ctx context.Context, message *azservicebus.ReceivedMessage) error
}

// Dispatcher publishes discovery events onto the bus.
type Dispatcher interface {
	DispatchWithRetry(ctx context.Context, event domain.Event, maxRetries int) error
}

// Processor turns raw scraped payloads into TicketDiscovered events. Each
// payload runs through the platform's adapter first, so only normalized
// data ever reaches the bus.
type Processor struct {
	adapters   map[string]platforms.Adapter
	bus        Dispatcher
	maxRetries int
}

// NewProcessor creates a message processor for the given platform adapters.
func NewProcessor(bus Dispatcher, maxRetries int, adapters ...platforms.Adapter) *Processor {
	byPlatform := make(map[string]platforms.Adapter, len(adapters))
	for _, adapter := range adapters {
		byPlatform[adapter.Platform()] = adapter
	}

	return &Processor{
		adapters:   byPlatform,
		bus:        bus,
		maxRetries: maxRetries,
	}
}

func (p *Processor) ProcessMessage(ctx context.Context, message *azservicebus.ReceivedMessage) error {
	var msg ScrapedMessage
	if err := json.Unmarshal(message.Body, &msg); err != nil {
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	if msg.EventType == "" {
		// Older scrapers send the payload bare with a platform field
		return p.handleBarePayload(ctx, message)
	}

	adapter, ok := p.adapters[msg.Platform]
	if !ok {
		return fmt.Errorf("no adapter for platform: %s", msg.Platform)
	}

	log.Info().
		Str("eventType", msg.EventType).
		Str("platform", msg.Platform).
		Msg("Processing message")

	switch msg.EventType {
	case ScrapedEvents:
		var raw map[string]interface{}
		if err := json.Unmarshal(msg.Data, &raw); err != nil {
			return err
		}
		return p.dispatchEvents(ctx, adapter, raw)

	case ScrapedTicket:
		var raw map[string]interface{}
		if err := json.Unmarshal(msg.Data, &raw); err != nil {
			return err
		}
		return p.dispatchTicket(ctx, adapter, adapter.AdaptTicketData(raw))

	default:
		return fmt.Errorf("unsupported event type: %s", msg.EventType)
	}
}

// handleBarePayload processes payloads without an envelope, routed by their
// top-level platform field.
func (p *Processor) handleBarePayload(ctx context.Context, message *azservicebus.ReceivedMessage) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(message.Body, &raw); err != nil {
		return fmt.Errorf("failed to parse message: %w", err)
	}

	platform, ok := raw["platform"].(string)
	if !ok {
		return fmt.Errorf("platform field not found or not a string")
	}

	adapter, found := p.adapters[platform]
	if !found {
		return fmt.Errorf("no adapter for platform: %s", platform)
	}

	return p.dispatchEvents(ctx, adapter, raw)
}

// dispatchEvents normalizes a full scraped payload and publishes one
// TicketDiscovered event per ticket listing found.
func (p *Processor) dispatchEvents(ctx context.Context, adapter platforms.Adapter, raw map[string]interface{}) error {
	normalized := adapter.AdaptEventData(raw)

	dispatched := 0
	for _, event := range normalized {
		for _, ticket := range event.Tickets {
			if err := p.dispatchTicket(ctx, adapter, ticket); err != nil {
				return err
			}
			dispatched++
		}
	}

	log.Info().
		Str("platform", adapter.Platform()).
		Int("events", len(normalized)).
		Int("tickets", dispatched).
		Msg("Scraped payload dispatched")
	return nil
}

func (p *Processor) dispatchTicket(ctx context.Context, adapter platforms.Adapter, ticket platforms.NormalizedTicket) error {
	event, err := platforms.DiscoveredEvent(adapter.Platform(), ticket)
	if err != nil {
		return err
	}

	return p.bus.DispatchWithRetry(ctx, event, p.maxRetries)
}
