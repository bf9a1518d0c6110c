package purchase

import (
	"context"
	"time"
)

// Pipeline step names, in execution order.
const (
	StepSessionInit  = "session_init"
	StepCartAdd      = "cart_add"
	StepPaymentApply = "payment_apply"
	StepCheckout     = "checkout"
)

// Machine-readable failure codes.
const (
	CodeSessionFailed   = "SESSION_INIT_FAILED"
	CodeCartFailed      = "CART_ADD_FAILED"
	CodePaymentDeclined = "PAYMENT_DECLINED"
	CodeCheckoutFailed  = "CHECKOUT_FAILED"
	CodeStepTimeout     = "STEP_TIMEOUT"
	CodeCircuitOpen     = "CIRCUIT_OPEN"
	CodeNoConfirmation  = "NO_CONFIRMATION"
)

// SessionContext carries the checkout session state between steps: the
// session identifier and the CSRF token bound to it. A preloaded context on
// the Request is reused; otherwise the purchaser obtains or mints one during
// session init.
type SessionContext struct {
	SessionID string
	CSRFToken string
}

// Request carries everything a purchaser needs to run the checkout pipeline.
type Request struct {
	PurchaseID     string
	UserID         string
	TicketID       string
	Quantity       int
	Amount         float64
	Currency       string
	PaymentMethod  string
	BillingAddress string
	Session        SessionContext
}

// StepResult records the outcome of a single pipeline step.
type StepResult struct {
	Step     string
	Duration time.Duration
	Err      error
}

// Result is the outcome of a full pipeline run. Success requires a
// confirmation number from checkout; anything else is a failure naming the
// step that broke.
type Result struct {
	Success            bool
	ConfirmationNumber string
	FailedStep         string
	Reason             string
	ErrorCode          string
	Duration           time.Duration
	Steps              []StepResult
}

// Purchaser runs the four-step checkout pipeline against one platform:
// session initialization, cart add, payment application, checkout. Each step
// is time-boxed; a timeout fails the purchase naming that step.
type Purchaser interface {
	Platform() string
	Purchase(ctx context.Context, req Request) Result
}
