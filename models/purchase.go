package models

import (
	"time"

	"gorm.io/gorm"
)

// Purchase is the read-model projection of a purchase aggregate.
type Purchase struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	PurchaseID         string         `gorm:"uniqueIndex" json:"purchase_id"`
	UserID             string         `gorm:"index" json:"user_id"`
	TicketID           string         `gorm:"index" json:"ticket_id"`
	PlatformSource     string         `json:"platform_source"`
	Amount             float64        `json:"amount"`
	Currency           string         `json:"currency"`
	Status             string         `gorm:"index" json:"status"`
	ConfirmationNumber string         `json:"confirmation_number"`
	FailureStep        string         `json:"failure_step"`
	FailureReason      string         `json:"failure_reason"`
	ErrorCode          string         `json:"error_code"`
	DurationMs         int64          `json:"duration_ms"`
	InitiatedAt        time.Time      `json:"initiated_at"`
	FinishedAt         *time.Time     `json:"finished_at"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}
