package domain

import (
	"fmt"
	"time"
)

// Purchase is the aggregate driving an automated checkout. Its lifecycle is
// PENDING -> QUEUED -> PROCESSING -> COMPLETED|FAILED, with CANCELLED
// reachable while still cancellable and REFUNDED only after COMPLETED.
type Purchase struct {
	*AggregateBase

	userID         string
	ticketID       string
	amount         float64
	currency       string
	platformSource string

	status             PurchaseStatus
	confirmationNumber string
	failureReason      string
	errorCode          string

	initiatedAt time.Time
	processedAt time.Time
	finishedAt  time.Time
}

// NewPurchase initiates a purchase for a user and ticket. The aggregate is
// created in PENDING with a PurchaseInitiated event recorded.
func NewPurchase(userID, ticketID string, price Price, platformSource string) (*Purchase, error) {
	p := &Purchase{}
	p.AggregateBase = NewAggregateBase(AggregatePurchase, p.applyEvent)

	err := p.Apply(PurchaseInitiatedEvent{
		PurchaseID:     p.GetID(),
		UserID:         userID,
		TicketID:       ticketID,
		Amount:         price.Amount(),
		Currency:       price.Currency(),
		PlatformSource: platformSource,
	})
	if err != nil {
		return nil, err
	}

	return p, nil
}

// NewPurchaseWithID creates an empty purchase shell for loading from the
// event store.
func NewPurchaseWithID(id string) *Purchase {
	p := &Purchase{}
	p.AggregateBase = NewAggregateBase(AggregatePurchase, p.applyEvent)
	p.SetID(id)
	return p
}

// applyEvent updates aggregate state for each purchase event.
func (p *Purchase) applyEvent(event interface{}) error {
	switch e := event.(type) {
	case PurchaseInitiatedEvent:
		p.userID = e.UserID
		p.ticketID = e.TicketID
		p.amount = e.Amount
		p.currency = e.Currency
		p.platformSource = e.PlatformSource
		p.status = PurchasePending
		p.initiatedAt = time.Now().UTC()

	case PaymentProcessedEvent:
		if !p.status.IsActive() {
			return fmt.Errorf("%w: payment in status %s", ErrInvalidTransition, p.status)
		}
		p.status = PurchaseProcessing
		p.processedAt = e.ProcessedAt

	case PurchaseCompletedEvent:
		if !p.status.CanTransitionTo(PurchaseCompletedS) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.status, PurchaseCompletedS)
		}
		p.status = PurchaseCompletedS
		p.confirmationNumber = e.ConfirmationNumber
		p.finishedAt = e.CompletedAt

	case PurchaseFailedEvent:
		if !p.status.CanTransitionTo(PurchaseFailedS) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.status, PurchaseFailedS)
		}
		p.status = PurchaseFailedS
		p.failureReason = e.Reason
		p.errorCode = e.ErrorCode
		p.finishedAt = e.FailedAt

	default:
		return fmt.Errorf("unknown purchase event: %T", event)
	}

	return nil
}

// Queue moves the purchase into the automation queue.
func (p *Purchase) Queue() error {
	return p.transition(PurchaseQueued)
}

// StartProcessing marks the purchaser pipeline as running.
func (p *Purchase) StartProcessing() error {
	return p.transition(PurchaseProcessing)
}

// Cancel aborts a purchase whose pipeline has not started yet.
func (p *Purchase) Cancel() error {
	if !p.status.CanCancel() {
		return fmt.Errorf("%w: cannot cancel in status %s", ErrInvalidTransition, p.status)
	}
	p.status = PurchaseCancelled
	p.finishedAt = time.Now().UTC()
	return nil
}

// Refund marks a completed purchase as refunded.
func (p *Purchase) Refund() error {
	if !p.status.CanRefund() {
		return fmt.Errorf("%w: cannot refund in status %s", ErrInvalidTransition, p.status)
	}
	p.status = PurchaseRefunded
	return nil
}

// RecordPayment records a processed payment while the pipeline runs.
func (p *Purchase) RecordPayment(method string) error {
	return p.Apply(PaymentProcessedEvent{
		PurchaseID:    p.GetID(),
		PaymentMethod: method,
		Amount:        p.amount,
		Currency:      p.currency,
		ProcessedAt:   time.Now().UTC(),
	})
}

// Complete terminates the purchase successfully.
func (p *Purchase) Complete(confirmationNumber string, duration time.Duration) error {
	return p.Apply(PurchaseCompletedEvent{
		PurchaseID:         p.GetID(),
		ConfirmationNumber: confirmationNumber,
		Amount:             p.amount,
		Currency:           p.currency,
		CompletedAt:        time.Now().UTC(),
		DurationMs:         duration.Milliseconds(),
	})
}

// Fail terminates the purchase with a typed failure naming the step.
func (p *Purchase) Fail(step, reason, errorCode string, duration time.Duration) error {
	return p.Apply(PurchaseFailedEvent{
		PurchaseID: p.GetID(),
		Step:       step,
		Reason:     reason,
		ErrorCode:  errorCode,
		FailedAt:   time.Now().UTC(),
		DurationMs: duration.Milliseconds(),
	})
}

func (p *Purchase) transition(next PurchaseStatus) error {
	if !p.status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.status, next)
	}
	p.status = next
	return nil
}

// Status returns the current purchase status.
func (p *Purchase) Status() PurchaseStatus {
	return p.status
}

// UserID returns the purchasing user.
func (p *Purchase) UserID() string {
	return p.userID
}

// TicketID returns the target ticket.
func (p *Purchase) TicketID() string {
	return p.ticketID
}

// Amount returns the purchase amount.
func (p *Purchase) Amount() float64 {
	return p.amount
}

// Currency returns the purchase currency.
func (p *Purchase) Currency() string {
	return p.currency
}

// PlatformSource returns the platform the purchase runs against.
func (p *Purchase) PlatformSource() string {
	return p.platformSource
}

// ConfirmationNumber returns the checkout confirmation, if completed.
func (p *Purchase) ConfirmationNumber() string {
	return p.confirmationNumber
}

// FailureReason returns the human-readable failure reason, if failed.
func (p *Purchase) FailureReason() string {
	return p.failureReason
}

// ErrorCode returns the machine-readable failure code, if failed.
func (p *Purchase) ErrorCode() string {
	return p.errorCode
}
