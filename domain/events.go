package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType constants
const (
	// Ticket events
	TicketDiscovered          = "V1_TICKET_DISCOVERED"
	TicketPriceChanged        = "V1_TICKET_PRICE_CHANGED"
	TicketAvailabilityChanged = "V1_TICKET_AVAILABILITY_CHANGED"
	TicketSoldOut             = "V1_TICKET_SOLD_OUT"

	// Monitoring events
	AlertTriggered    = "V1_ALERT_TRIGGERED"
	MonitoringStarted = "V1_MONITORING_STARTED"
	MonitoringStopped = "V1_MONITORING_STOPPED"

	// Purchase events
	PurchaseInitiated = "V1_PURCHASE_INITIATED"
	PaymentProcessed  = "V1_PAYMENT_PROCESSED"
	PurchaseCompleted = "V1_PURCHASE_COMPLETED"
	PurchaseFailed    = "V1_PURCHASE_FAILED"
)

// Aggregate type tags
const (
	AggregateTicket   = "ticket"
	AggregateMonitor  = "monitor"
	AggregateAlert    = "alert"
	AggregatePurchase = "purchase"
)

// Event represents a domain event. Identity, payload and timestamp are fixed
// at construction; only metadata may be extended, and only via WithMetadata.
type Event struct {
	ID            string            `json:"id"`
	AggregateID   string            `json:"aggregate_id"`
	AggregateType string            `json:"aggregate_type"`
	Type          string            `json:"type"`
	Version       int               `json:"version"`
	Timestamp     time.Time         `json:"timestamp"`
	Data          interface{}       `json:"data"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewEvent creates a new domain event for the given aggregate. The event type
// tag is resolved from the payload struct.
func NewEvent(aggregateType, aggregateID string, data interface{}) (Event, error) {
	eventType, err := eventTypeOf(data)
	if err != nil {
		return Event{}, err
	}

	return Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Type:          eventType,
		Version:       1,
		Timestamp:     time.Now().UTC(),
		Data:          data,
	}, nil
}

// WithMetadata returns a copy of the event with the given metadata merged in.
// The receiver is never mutated.
func (e Event) WithMetadata(metadata map[string]string) Event {
	merged := make(map[string]string, len(e.Metadata)+len(metadata))
	for k, v := range e.Metadata {
		merged[k] = v
	}
	for k, v := range metadata {
		merged[k] = v
	}

	copied := e
	copied.Metadata = merged
	return copied
}

// Ticket events

// TicketDiscoveredEvent is emitted when a scraping run finds a ticket listing
// on an external platform. This is the primary inbound fact of the service.
type TicketDiscoveredEvent struct {
	TicketID          string            `json:"ticket_id"`
	EventName         string            `json:"event_name"`
	EventCategory     string            `json:"event_category"`
	Venue             string            `json:"venue"`
	EventDate         time.Time         `json:"event_date"`
	PriceAmount       float64           `json:"price_amount"`
	Currency          string            `json:"currency"`
	PlatformSource    string            `json:"platform_source"`
	AvailableQuantity int               `json:"available_quantity"`
	Availability      string            `json:"availability"`
	TicketDetails     map[string]string `json:"ticket_details,omitempty"`
}

// TicketPriceChangedEvent is emitted when a known ticket's price moves.
type TicketPriceChangedEvent struct {
	TicketID       string  `json:"ticket_id"`
	OldAmount      float64 `json:"old_amount"`
	NewAmount      float64 `json:"new_amount"`
	Currency       string  `json:"currency"`
	PlatformSource string  `json:"platform_source"`
}

// TicketAvailabilityChangedEvent is emitted when a ticket's availability
// status changes between scraping runs.
type TicketAvailabilityChangedEvent struct {
	TicketID       string `json:"ticket_id"`
	OldStatus      string `json:"old_status"`
	NewStatus      string `json:"new_status"`
	Quantity       int    `json:"quantity"`
	PlatformSource string `json:"platform_source"`
}

// TicketSoldOutEvent is emitted when a ticket transitions to sold out.
type TicketSoldOutEvent struct {
	TicketID       string  `json:"ticket_id"`
	LastAmount     float64 `json:"last_amount"`
	Currency       string  `json:"currency"`
	PlatformSource string  `json:"platform_source"`
}

// Monitoring events

// AlertTriggeredEvent is emitted when a discovered ticket matches an active
// alert rule. It is consumed by the notification delivery collaborator.
type AlertTriggeredEvent struct {
	AlertID     string            `json:"alert_id"`
	MonitorID   string            `json:"monitor_id"`
	UserID      string            `json:"user_id"`
	AlertType   string            `json:"alert_type"`
	Severity    string            `json:"severity"`
	AlertData   map[string]string `json:"alert_data,omitempty"`
	TriggeredAt time.Time         `json:"triggered_at"`
}

// MonitoringStartedEvent records that a user started monitoring a ticket.
type MonitoringStartedEvent struct {
	MonitorID string    `json:"monitor_id"`
	UserID    string    `json:"user_id"`
	TicketID  string    `json:"ticket_id"`
	StartedAt time.Time `json:"started_at"`
}

// MonitoringStoppedEvent records that monitoring for a ticket ended.
type MonitoringStoppedEvent struct {
	MonitorID string    `json:"monitor_id"`
	UserID    string    `json:"user_id"`
	Reason    string    `json:"reason"`
	StoppedAt time.Time `json:"stopped_at"`
}

// Purchase events

// PurchaseInitiatedEvent starts the purchase aggregate lifecycle.
type PurchaseInitiatedEvent struct {
	PurchaseID     string  `json:"purchase_id"`
	UserID         string  `json:"user_id"`
	TicketID       string  `json:"ticket_id"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
	PlatformSource string  `json:"platform_source"`
}

// PaymentProcessedEvent records a successful payment application.
type PaymentProcessedEvent struct {
	PurchaseID    string    `json:"purchase_id"`
	PaymentMethod string    `json:"payment_method"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	ProcessedAt   time.Time `json:"processed_at"`
}

// PurchaseCompletedEvent terminates a purchase successfully.
type PurchaseCompletedEvent struct {
	PurchaseID         string    `json:"purchase_id"`
	ConfirmationNumber string    `json:"confirmation_number"`
	Amount             float64   `json:"amount"`
	Currency           string    `json:"currency"`
	CompletedAt        time.Time `json:"completed_at"`
	DurationMs         int64     `json:"duration_ms"`
}

// PurchaseFailedEvent terminates a purchase with a typed failure. Step names
// the pipeline step that failed; ErrorCode is machine readable.
type PurchaseFailedEvent struct {
	PurchaseID string    `json:"purchase_id"`
	Step       string    `json:"step"`
	Reason     string    `json:"reason"`
	ErrorCode  string    `json:"error_code"`
	FailedAt   time.Time `json:"failed_at"`
	DurationMs int64     `json:"duration_ms"`
}
