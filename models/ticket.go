package models

import (
	"time"

	"gorm.io/gorm"
)

// Ticket is the read-model projection of a monitored ticket. It is rebuilt
// from ticket events and never the source of truth.
type Ticket struct {
	ID                  uint           `gorm:"primaryKey" json:"id"`
	TicketID            string         `gorm:"uniqueIndex" json:"ticket_id"`
	PlatformSource      string         `gorm:"index" json:"platform_source"`
	EventName           string         `json:"event_name"`
	EventCategory       string         `gorm:"index" json:"event_category"`
	Venue               string         `json:"venue"`
	EventDate           time.Time      `json:"event_date"`
	CurrentPrice        float64        `json:"current_price"`
	Currency            string         `json:"currency"`
	PriceHistory        []byte         `json:"price_history"`
	AvailabilityStatus  string         `json:"availability_status"`
	AvailabilityHistory []byte         `json:"availability_history"`
	Quantity            int            `json:"quantity"`
	IsHighDemand        bool           `gorm:"index" json:"is_high_demand"`
	Version             int64          `json:"version"`
	FirstDiscoveredAt   time.Time      `json:"first_discovered_at"`
	LastUpdatedAt       time.Time      `json:"last_updated_at"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

// PricePoint is one entry of a ticket's price history.
type PricePoint struct {
	Amount     float64   `json:"amount"`
	Currency   string    `json:"currency"`
	RecordedAt time.Time `json:"recorded_at"`
}

// AvailabilityPoint is one entry of a ticket's availability history.
type AvailabilityPoint struct {
	Status     string    `json:"status"`
	Quantity   int       `json:"quantity"`
	RecordedAt time.Time `json:"recorded_at"`
}
