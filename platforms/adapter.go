package platforms

import (
	"time"

	"example.com/hdtickets/services/discovery/domain"
)

// NormalizedTicket is a platform-neutral ticket listing produced by an
// adapter. Fields the platform did not provide carry safe defaults.
type NormalizedTicket struct {
	TicketID     string
	EventName    string
	Category     domain.SportCategory
	Venue        string
	EventDate    time.Time
	PriceAmount  float64
	Currency     string
	Availability domain.AvailabilityStatus
	Quantity     int
	Details      map[string]string
}

// NormalizedEvent is a platform-neutral event listing with its tickets.
type NormalizedEvent struct {
	ExternalID string
	Name       string
	Category   domain.SportCategory
	Venue      string
	Date       time.Time
	MinPrice   float64
	MaxPrice   float64
	Currency   string
	Tickets    []NormalizedTicket
}

// Adapter normalizes one external platform's payloads into the internal
// vocabulary. Adapters coerce and default; they never reject a payload
// because one field is malformed.
type Adapter interface {
	Platform() string
	AdaptEventData(raw map[string]interface{}) []NormalizedEvent
	AdaptTicketData(raw map[string]interface{}) NormalizedTicket
}

// DiscoveredEvent builds the TicketDiscovered domain event for a normalized
// ticket from the given platform.
func DiscoveredEvent(platform string, ticket NormalizedTicket) (domain.Event, error) {
	return domain.NewEvent(domain.AggregateTicket, ticket.TicketID, domain.TicketDiscoveredEvent{
		TicketID:          ticket.TicketID,
		EventName:         ticket.EventName,
		EventCategory:     ticket.Category.String(),
		Venue:             ticket.Venue,
		EventDate:         ticket.EventDate,
		PriceAmount:       ticket.PriceAmount,
		Currency:          ticket.Currency,
		PlatformSource:    platform,
		AvailableQuantity: ticket.Quantity,
		Availability:      string(ticket.Availability),
		TicketDetails:     ticket.Details,
	})
}
