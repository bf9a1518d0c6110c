package purchase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"example.com/hdtickets/services/discovery/domain"
	"example.com/hdtickets/services/discovery/repositories"
)

var (
	// ErrPurchaseInProgress means the same user already has an unfinished
	// purchase for the same ticket.
	ErrPurchaseInProgress = errors.New("purchase already in progress for this ticket and user")

	// ErrUnknownPlatform means no purchaser is registered for the platform.
	ErrUnknownPlatform = errors.New("no purchaser registered for platform")

	// ErrPurchaseNotFound means the purchase id is unknown to the engine.
	ErrPurchaseNotFound = errors.New("purchase not found")
)

// Dispatcher publishes committed aggregate events.
type Dispatcher interface {
	DispatchMany(ctx context.Context, events []domain.Event) error
}

// Engine runs automated purchases. It enforces at most one in-flight
// purchase per (ticket, user) pair with a TTL-bound Redis lock, drives the
// purchase aggregate through its lifecycle and hands the pipeline to the
// platform's purchaser. Every started purchase ends terminal.
type Engine struct {
	bus       Dispatcher
	purchases repositories.PurchaseRepository
	locks     *redis.Client
	lockTTL   time.Duration

	mu         sync.Mutex
	purchasers map[string]Purchaser
	active     map[string]*activePurchase
}

// activePurchase tracks a purchase between initiation and its terminal
// state. Only purchases in this window can be cancelled. The mutex
// serializes aggregate transitions between the pipeline goroutine and
// Cancel, which arrives from the API.
type activePurchase struct {
	mu        sync.Mutex
	aggregate *domain.Purchase
	request   Request
	lockKey   string
}

// NewEngine creates a purchase engine.
func NewEngine(bus Dispatcher, purchases repositories.PurchaseRepository, locks *redis.Client, lockTTL time.Duration) *Engine {
	return &Engine{
		bus:        bus,
		purchases:  purchases,
		locks:      locks,
		lockTTL:    lockTTL,
		purchasers: make(map[string]Purchaser),
		active:     make(map[string]*activePurchase),
	}
}

// RegisterPurchaser adds a platform purchaser.
func (e *Engine) RegisterPurchaser(p Purchaser) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.purchasers[p.Platform()] = p
}

// Initiate starts a purchase: acquires the per-ticket-per-user lock, creates
// the aggregate, commits the initiation event and queues the purchase. The
// pipeline itself runs in Execute.
func (e *Engine) Initiate(ctx context.Context, userID, ticketID string, price domain.Price, platform, paymentMethod, billingAddress string, quantity int) (string, error) {
	e.mu.Lock()
	_, known := e.purchasers[platform]
	e.mu.Unlock()
	if !known {
		return "", fmt.Errorf("%w: %s", ErrUnknownPlatform, platform)
	}

	lockKey := lockKey(ticketID, userID)
	acquired, err := e.locks.SetNX(ctx, lockKey, "1", e.lockTTL).Result()
	if err != nil {
		return "", fmt.Errorf("failed to acquire purchase lock: %w", err)
	}
	if !acquired {
		return "", ErrPurchaseInProgress
	}

	aggregate, err := domain.NewPurchase(userID, ticketID, price, platform)
	if err != nil {
		e.releaseLock(ctx, lockKey)
		return "", err
	}

	if err := e.commit(ctx, aggregate); err != nil {
		e.releaseLock(ctx, lockKey)
		return "", err
	}

	if err := aggregate.Queue(); err != nil {
		e.releaseLock(ctx, lockKey)
		return "", err
	}
	e.setRowStatus(ctx, aggregate.GetID(), domain.PurchaseQueued, nil)

	if quantity <= 0 {
		quantity = 1
	}

	e.mu.Lock()
	e.active[aggregate.GetID()] = &activePurchase{
		aggregate: aggregate,
		lockKey:   lockKey,
		request: Request{
			PurchaseID:     aggregate.GetID(),
			UserID:         userID,
			TicketID:       ticketID,
			Quantity:       quantity,
			Amount:         price.Amount(),
			Currency:       price.Currency(),
			PaymentMethod:  paymentMethod,
			BillingAddress: billingAddress,
		},
	}
	e.mu.Unlock()

	log.Info().
		Str("purchaseID", aggregate.GetID()).
		Str("ticketID", ticketID).
		Str("userID", userID).
		Str("platform", platform).
		Msg("Purchase queued")

	return aggregate.GetID(), nil
}

// Execute runs the purchaser pipeline for a queued purchase. The purchase
// always ends terminal: COMPLETED on a confirmed checkout, FAILED otherwise,
// or it was already CANCELLED and nothing runs.
func (e *Engine) Execute(ctx context.Context, purchaseID string) error {
	e.mu.Lock()
	entry, ok := e.active[purchaseID]
	e.mu.Unlock()
	if !ok {
		return ErrPurchaseNotFound
	}

	defer e.finish(ctx, purchaseID, entry.lockKey)

	aggregate := entry.aggregate

	entry.mu.Lock()
	err := aggregate.StartProcessing()
	entry.mu.Unlock()
	if err != nil {
		// Cancelled between queueing and execution
		return nil
	}
	e.setRowStatus(ctx, purchaseID, domain.PurchaseProcessing, nil)

	e.mu.Lock()
	purchaser := e.purchasers[aggregate.PlatformSource()]
	e.mu.Unlock()

	result := purchaser.Purchase(ctx, entry.request)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if paymentSucceeded(result) {
		if err := aggregate.RecordPayment(entry.request.PaymentMethod); err != nil {
			log.Error().Err(err).Str("purchaseID", purchaseID).Msg("Failed to record payment")
		}
	}

	if result.Success {
		if err := aggregate.Complete(result.ConfirmationNumber, result.Duration); err != nil {
			return err
		}
		log.Info().
			Str("purchaseID", purchaseID).
			Str("confirmation", result.ConfirmationNumber).
			Dur("duration", result.Duration).
			Msg("Purchase completed")
	} else {
		if err := aggregate.Fail(result.FailedStep, result.Reason, result.ErrorCode, result.Duration); err != nil {
			return err
		}
		log.Warn().
			Str("purchaseID", purchaseID).
			Str("step", result.FailedStep).
			Str("errorCode", result.ErrorCode).
			Msg("Purchase failed")
	}

	return e.commit(ctx, aggregate)
}

// Cancel aborts a purchase that has not started processing yet.
func (e *Engine) Cancel(ctx context.Context, purchaseID string) error {
	e.mu.Lock()
	entry, ok := e.active[purchaseID]
	e.mu.Unlock()
	if !ok {
		return ErrPurchaseNotFound
	}

	entry.mu.Lock()
	err := entry.aggregate.Cancel()
	entry.mu.Unlock()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	e.setRowStatus(ctx, purchaseID, domain.PurchaseCancelled, &now)
	e.finish(ctx, purchaseID, entry.lockKey)

	log.Info().Str("purchaseID", purchaseID).Msg("Purchase cancelled")
	return nil
}

// Refund marks a completed purchase refunded. Refunds operate on the read
// model; the money movement itself is out of band.
func (e *Engine) Refund(ctx context.Context, purchaseID string) error {
	row, err := e.purchases.FindByPurchaseID(ctx, purchaseID)
	if err != nil {
		return err
	}
	if row == nil {
		return ErrPurchaseNotFound
	}

	status := domain.PurchaseStatus(row.Status)
	if !status.CanRefund() {
		return fmt.Errorf("%w: cannot refund in status %s", domain.ErrInvalidTransition, status)
	}

	row.Status = string(domain.PurchaseRefunded)
	if err := e.purchases.Save(ctx, row); err != nil {
		return err
	}

	log.Info().Str("purchaseID", purchaseID).Msg("Purchase refunded")
	return nil
}

// commit stores and dispatches the aggregate's uncommitted events.
func (e *Engine) commit(ctx context.Context, aggregate *domain.Purchase) error {
	events := aggregate.GetEvents()
	if len(events) == 0 {
		return nil
	}

	if err := e.bus.DispatchMany(ctx, events); err != nil {
		return fmt.Errorf("failed to commit purchase events: %w", err)
	}

	aggregate.ClearEvents()
	return nil
}

// finish drops the purchase from the active set and releases its lock.
func (e *Engine) finish(ctx context.Context, purchaseID, lockKey string) {
	e.mu.Lock()
	delete(e.active, purchaseID)
	e.mu.Unlock()
	e.releaseLock(ctx, lockKey)
}

func (e *Engine) releaseLock(ctx context.Context, key string) {
	if err := e.locks.Del(ctx, key).Err(); err != nil {
		// The TTL reclaims it eventually
		log.Warn().Err(err).Str("key", key).Msg("Failed to release purchase lock")
	}
}

// setRowStatus updates the read model directly for transitions that are not
// event-sourced: QUEUED, PROCESSING before payment, CANCELLED.
func (e *Engine) setRowStatus(ctx context.Context, purchaseID string, status domain.PurchaseStatus, finishedAt *time.Time) {
	row, err := e.purchases.FindByPurchaseID(ctx, purchaseID)
	if err != nil || row == nil {
		log.Warn().Err(err).Str("purchaseID", purchaseID).Msg("Could not update purchase row status")
		return
	}

	// A terminal row never regresses to an in-flight status
	if domain.PurchaseStatus(row.Status).IsFinal() && !status.IsFinal() {
		return
	}

	row.Status = string(status)
	if finishedAt != nil {
		row.FinishedAt = finishedAt
	}
	if err := e.purchases.Save(ctx, row); err != nil {
		log.Warn().Err(err).Str("purchaseID", purchaseID).Msg("Could not save purchase row status")
	}
}

func paymentSucceeded(result Result) bool {
	for _, step := range result.Steps {
		if step.Step == StepPaymentApply {
			return step.Err == nil
		}
	}
	return false
}

func lockKey(ticketID, userID string) string {
	return fmt.Sprintf("purchase:lock:%s:%s", ticketID, userID)
}
