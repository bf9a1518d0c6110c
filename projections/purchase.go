package projections

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"example.com/hdtickets/services/discovery/domain"
	"example.com/hdtickets/services/discovery/metrics"
	"example.com/hdtickets/services/discovery/models"
	"example.com/hdtickets/services/discovery/repositories"
)

// PurchaseProjector maintains the purchase read model from purchase events.
type PurchaseProjector struct {
	purchases repositories.PurchaseRepository
}

// NewPurchaseProjector creates the purchase read model projector.
func NewPurchaseProjector(purchases repositories.PurchaseRepository) *PurchaseProjector {
	return &PurchaseProjector{purchases: purchases}
}

// Name identifies the handler on the bus.
func (p *PurchaseProjector) Name() string {
	return "purchase-projector"
}

// Handle applies purchase events to their read model rows. Re-delivery is
// safe: every projection writes absolute state, never increments.
func (p *PurchaseProjector) Handle(ctx context.Context, event domain.Event) error {
	switch data := event.Data.(type) {
	case domain.PurchaseInitiatedEvent:
		return p.projectInitiated(ctx, event, data)
	case domain.PaymentProcessedEvent:
		return p.projectPaymentProcessed(ctx, data)
	case domain.PurchaseCompletedEvent:
		return p.projectCompleted(ctx, event, data)
	case domain.PurchaseFailedEvent:
		return p.projectFailed(ctx, event, data)
	default:
		return nil
	}
}

func (p *PurchaseProjector) projectInitiated(ctx context.Context, event domain.Event, data domain.PurchaseInitiatedEvent) error {
	existing, err := p.purchases.FindByPurchaseID(ctx, data.PurchaseID)
	if err != nil {
		return fmt.Errorf("failed to load purchase: %w", err)
	}
	if existing != nil {
		// Replay of an already projected initiation
		return nil
	}

	return p.purchases.Save(ctx, &models.Purchase{
		PurchaseID:     data.PurchaseID,
		UserID:         data.UserID,
		TicketID:       data.TicketID,
		PlatformSource: data.PlatformSource,
		Amount:         data.Amount,
		Currency:       data.Currency,
		Status:         string(domain.PurchasePending),
		InitiatedAt:    event.Timestamp,
	})
}

func (p *PurchaseProjector) projectPaymentProcessed(ctx context.Context, data domain.PaymentProcessedEvent) error {
	purchase, err := p.loadRow(ctx, data.PurchaseID)
	if err != nil || purchase == nil {
		return err
	}

	purchase.Status = string(domain.PurchaseProcessing)
	return p.purchases.Save(ctx, purchase)
}

func (p *PurchaseProjector) projectCompleted(ctx context.Context, event domain.Event, data domain.PurchaseCompletedEvent) error {
	purchase, err := p.loadRow(ctx, data.PurchaseID)
	if err != nil || purchase == nil {
		return err
	}

	finished := event.Timestamp
	purchase.Status = string(domain.PurchaseCompletedS)
	purchase.ConfirmationNumber = data.ConfirmationNumber
	purchase.DurationMs = data.DurationMs
	purchase.FinishedAt = &finished

	metrics.PurchasesFinished.WithLabelValues(purchase.PlatformSource, "completed").Inc()
	return p.purchases.Save(ctx, purchase)
}

func (p *PurchaseProjector) projectFailed(ctx context.Context, event domain.Event, data domain.PurchaseFailedEvent) error {
	purchase, err := p.loadRow(ctx, data.PurchaseID)
	if err != nil || purchase == nil {
		return err
	}

	finished := event.Timestamp
	purchase.Status = string(domain.PurchaseFailedS)
	purchase.FailureStep = data.Step
	purchase.FailureReason = data.Reason
	purchase.ErrorCode = data.ErrorCode
	purchase.DurationMs = data.DurationMs
	purchase.FinishedAt = &finished

	metrics.PurchasesFinished.WithLabelValues(purchase.PlatformSource, "failed").Inc()
	return p.purchases.Save(ctx, purchase)
}

// loadRow fetches the purchase row, logging when the initiation projection
// has not landed yet. The event stays unprocessed for replay in that case.
func (p *PurchaseProjector) loadRow(ctx context.Context, purchaseID string) (*models.Purchase, error) {
	purchase, err := p.purchases.FindByPurchaseID(ctx, purchaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load purchase: %w", err)
	}
	if purchase == nil {
		log.Warn().Str("purchaseID", purchaseID).Msg("Purchase row not found for projection")
		return nil, fmt.Errorf("purchase %s not projected yet", purchaseID)
	}
	return purchase, nil
}
