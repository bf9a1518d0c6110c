package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPurchase(t *testing.T) *Purchase {
	t.Helper()
	price, err := NewPrice(120, "GBP")
	require.NoError(t, err)

	p, err := NewPurchase("user-1", "ticket-1", price, "ticketek")
	require.NoError(t, err)
	return p
}

func TestNewPurchaseStartsPending(t *testing.T) {
	p := newTestPurchase(t)

	assert.Equal(t, PurchasePending, p.Status())
	assert.Equal(t, "user-1", p.UserID())
	assert.Equal(t, "ticket-1", p.TicketID())
	assert.Equal(t, 120.0, p.Amount())
	assert.Equal(t, "GBP", p.Currency())

	events := p.GetEvents()
	require.Len(t, events, 1)
	assert.Equal(t, PurchaseInitiated, events[0].Type)
	assert.Equal(t, p.GetID(), events[0].AggregateID)
}

func TestPurchaseHappyPath(t *testing.T) {
	p := newTestPurchase(t)

	require.NoError(t, p.Queue())
	assert.Equal(t, PurchaseQueued, p.Status())

	require.NoError(t, p.StartProcessing())
	assert.Equal(t, PurchaseProcessing, p.Status())

	require.NoError(t, p.RecordPayment("card"))
	require.NoError(t, p.Complete("CONF-123", 2*time.Second))

	assert.Equal(t, PurchaseCompletedS, p.Status())
	assert.Equal(t, "CONF-123", p.ConfirmationNumber())

	types := make([]string, 0)
	for _, e := range p.GetEvents() {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{PurchaseInitiated, PaymentProcessed, PurchaseCompleted}, types)
}

func TestPurchaseFailure(t *testing.T) {
	p := newTestPurchase(t)
	require.NoError(t, p.Queue())
	require.NoError(t, p.StartProcessing())

	require.NoError(t, p.Fail("checkout", "platform timed out", "STEP_TIMEOUT", 30*time.Second))

	assert.Equal(t, PurchaseFailedS, p.Status())
	assert.Equal(t, "platform timed out", p.FailureReason())
	assert.Equal(t, "STEP_TIMEOUT", p.ErrorCode())
}

func TestPurchaseCancelOnlyBeforeProcessing(t *testing.T) {
	p := newTestPurchase(t)
	require.NoError(t, p.Cancel())
	assert.Equal(t, PurchaseCancelled, p.Status())

	p = newTestPurchase(t)
	require.NoError(t, p.Queue())
	require.NoError(t, p.Cancel())
	assert.Equal(t, PurchaseCancelled, p.Status())

	p = newTestPurchase(t)
	require.NoError(t, p.Queue())
	require.NoError(t, p.StartProcessing())
	assert.ErrorIs(t, p.Cancel(), ErrInvalidTransition)
}

func TestPurchaseRefundOnlyAfterCompletion(t *testing.T) {
	p := newTestPurchase(t)
	assert.ErrorIs(t, p.Refund(), ErrInvalidTransition)

	require.NoError(t, p.Queue())
	require.NoError(t, p.StartProcessing())
	require.NoError(t, p.Complete("CONF-9", time.Second))

	require.NoError(t, p.Refund())
	assert.Equal(t, PurchaseRefunded, p.Status())
}

func TestPurchaseFinalStatesAbsorb(t *testing.T) {
	p := newTestPurchase(t)
	require.NoError(t, p.Queue())
	require.NoError(t, p.StartProcessing())
	require.NoError(t, p.Fail("cart_add", "sold out", "CART_ADD_FAILED", time.Second))

	assert.ErrorIs(t, p.Queue(), ErrInvalidTransition)
	assert.ErrorIs(t, p.StartProcessing(), ErrInvalidTransition)
	assert.ErrorIs(t, p.Cancel(), ErrInvalidTransition)
	assert.ErrorIs(t, p.Refund(), ErrInvalidTransition)
	assert.Error(t, p.Complete("CONF-1", time.Second))
}

func TestPurchaseStatusTransitionTable(t *testing.T) {
	cases := []struct {
		from, to PurchaseStatus
		allowed  bool
	}{
		{PurchasePending, PurchaseQueued, true},
		{PurchasePending, PurchaseProcessing, true},
		{PurchasePending, PurchaseCancelled, true},
		{PurchasePending, PurchaseCompletedS, false},
		{PurchaseQueued, PurchaseProcessing, true},
		{PurchaseQueued, PurchaseCancelled, true},
		{PurchaseQueued, PurchaseCompletedS, false},
		{PurchaseProcessing, PurchaseCompletedS, true},
		{PurchaseProcessing, PurchaseFailedS, true},
		{PurchaseProcessing, PurchaseCancelled, false},
		{PurchaseCompletedS, PurchaseRefunded, true},
		{PurchaseCompletedS, PurchaseProcessing, false},
		{PurchaseFailedS, PurchaseRefunded, false},
		{PurchaseCancelled, PurchaseQueued, false},
		{PurchaseRefunded, PurchaseCompletedS, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}
