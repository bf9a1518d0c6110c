package domain

import "fmt"

// PurchaseStatus is the purchase aggregate's state machine.
type PurchaseStatus string

const (
	PurchasePending    PurchaseStatus = "PENDING"
	PurchaseQueued     PurchaseStatus = "QUEUED"
	PurchaseProcessing PurchaseStatus = "PROCESSING"
	PurchaseCompletedS PurchaseStatus = "COMPLETED"
	PurchaseFailedS    PurchaseStatus = "FAILED"
	PurchaseCancelled  PurchaseStatus = "CANCELLED"
	PurchaseRefunded   PurchaseStatus = "REFUNDED"
)

// ErrInvalidTransition is returned when a status change is not permitted.
var ErrInvalidTransition = fmt.Errorf("invalid purchase status transition")

// IsActive reports whether the purchase is still in flight.
func (s PurchaseStatus) IsActive() bool {
	return s == PurchasePending || s == PurchaseQueued || s == PurchaseProcessing
}

// IsFinal reports whether the status is terminal. Final states are absorbing:
// no transition may leave them.
func (s PurchaseStatus) IsFinal() bool {
	switch s {
	case PurchaseCompletedS, PurchaseFailedS, PurchaseCancelled, PurchaseRefunded:
		return true
	}
	return false
}

// CanCancel reports whether the purchase may still be cancelled.
func (s PurchaseStatus) CanCancel() bool {
	return s == PurchasePending || s == PurchaseQueued
}

// CanRefund reports whether the purchase may be refunded.
func (s PurchaseStatus) CanRefund() bool {
	return s == PurchaseCompletedS
}

// CanTransitionTo reports whether moving from s to next is a legal step of
// the state machine.
func (s PurchaseStatus) CanTransitionTo(next PurchaseStatus) bool {
	if s.IsFinal() && s != PurchaseCompletedS {
		return false
	}

	switch s {
	case PurchasePending:
		return next == PurchaseQueued || next == PurchaseProcessing || next == PurchaseCancelled
	case PurchaseQueued:
		return next == PurchaseProcessing || next == PurchaseCancelled
	case PurchaseProcessing:
		return next == PurchaseCompletedS || next == PurchaseFailedS
	case PurchaseCompletedS:
		return next == PurchaseRefunded
	default:
		return false
	}
}
