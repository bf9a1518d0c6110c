package models

import (
	"time"

	"gorm.io/gorm"
)

// AlertRule is a user-defined matching rule evaluated against every
// discovered ticket. Name, venue and category criteria are OR-combined;
// the price ceiling is AND-combined on top.
type AlertRule struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	RuleID           string         `gorm:"uniqueIndex" json:"rule_id"`
	UserID           string         `gorm:"index" json:"user_id"`
	MonitorID        string         `json:"monitor_id"`
	NameContains     string         `json:"name_contains"`
	VenueContains    string         `json:"venue_contains"`
	CategoryContains string         `json:"category_contains"`
	MaxPrice         float64        `json:"max_price"`
	Currency         string         `json:"currency"`
	Active           bool           `gorm:"index" json:"active"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}
