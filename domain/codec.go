package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// payloadEnvelope is the persisted wire shape of an event. It is what the
// event store writes and what replay reads back.
type payloadEnvelope struct {
	ID            string            `json:"id"`
	AggregateID   string            `json:"aggregate_id"`
	AggregateType string            `json:"aggregate_type"`
	Type          string            `json:"type"`
	Version       int               `json:"version"`
	Timestamp     time.Time         `json:"timestamp"`
	Data          json.RawMessage   `json:"data"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// eventTypeOf resolves the event type tag from the payload struct.
func eventTypeOf(data interface{}) (string, error) {
	switch data.(type) {
	case TicketDiscoveredEvent:
		return TicketDiscovered, nil
	case TicketPriceChangedEvent:
		return TicketPriceChanged, nil
	case TicketAvailabilityChangedEvent:
		return TicketAvailabilityChanged, nil
	case TicketSoldOutEvent:
		return TicketSoldOut, nil
	case AlertTriggeredEvent:
		return AlertTriggered, nil
	case MonitoringStartedEvent:
		return MonitoringStarted, nil
	case MonitoringStoppedEvent:
		return MonitoringStopped, nil
	case PurchaseInitiatedEvent:
		return PurchaseInitiated, nil
	case PaymentProcessedEvent:
		return PaymentProcessed, nil
	case PurchaseCompletedEvent:
		return PurchaseCompleted, nil
	case PurchaseFailedEvent:
		return PurchaseFailed, nil
	default:
		return "", fmt.Errorf("unknown event type: %T", data)
	}
}

// DecodeEventData unmarshals a raw payload into the typed struct for the
// given event type tag.
func DecodeEventData(eventType string, data []byte) (interface{}, error) {
	switch eventType {
	case TicketDiscovered:
		var d TicketDiscoveredEvent
		return d, json.Unmarshal(data, &d)
	case TicketPriceChanged:
		var d TicketPriceChangedEvent
		return d, json.Unmarshal(data, &d)
	case TicketAvailabilityChanged:
		var d TicketAvailabilityChangedEvent
		return d, json.Unmarshal(data, &d)
	case TicketSoldOut:
		var d TicketSoldOutEvent
		return d, json.Unmarshal(data, &d)
	case AlertTriggered:
		var d AlertTriggeredEvent
		return d, json.Unmarshal(data, &d)
	case MonitoringStarted:
		var d MonitoringStartedEvent
		return d, json.Unmarshal(data, &d)
	case MonitoringStopped:
		var d MonitoringStoppedEvent
		return d, json.Unmarshal(data, &d)
	case PurchaseInitiated:
		var d PurchaseInitiatedEvent
		return d, json.Unmarshal(data, &d)
	case PaymentProcessed:
		var d PaymentProcessedEvent
		return d, json.Unmarshal(data, &d)
	case PurchaseCompleted:
		var d PurchaseCompletedEvent
		return d, json.Unmarshal(data, &d)
	case PurchaseFailed:
		var d PurchaseFailedEvent
		return d, json.Unmarshal(data, &d)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// ToPayload serializes the event into its persisted wire format.
func (e Event) ToPayload() ([]byte, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}

	return json.Marshal(payloadEnvelope{
		ID:            e.ID,
		AggregateID:   e.AggregateID,
		AggregateType: e.AggregateType,
		Type:          e.Type,
		Version:       e.Version,
		Timestamp:     e.Timestamp,
		Data:          data,
		Metadata:      e.Metadata,
	})
}

// FromPayload reconstructs an event from its persisted wire format. The
// decoded Data field carries the typed payload struct for the event type.
func FromPayload(payload []byte) (Event, error) {
	var env payloadEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event envelope: %w", err)
	}

	data, err := DecodeEventData(env.Type, env.Data)
	if err != nil {
		return Event{}, fmt.Errorf("failed to decode event data: %w", err)
	}

	return Event{
		ID:            env.ID,
		AggregateID:   env.AggregateID,
		AggregateType: env.AggregateType,
		Type:          env.Type,
		Version:       env.Version,
		Timestamp:     env.Timestamp,
		Data:          data,
		Metadata:      env.Metadata,
	}, nil
}
