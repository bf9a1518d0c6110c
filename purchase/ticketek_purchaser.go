package purchase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"example.com/hdtickets/services/discovery/config"
	"example.com/hdtickets/services/discovery/metrics"
	"example.com/hdtickets/services/discovery/platforms"
)

// sessionInitTimeout bounds the session handshake. The remaining steps take
// their bounds from configuration.
const sessionInitTimeout = 5 * time.Second

// TicketekPurchaser drives the Ticketek checkout API. All calls go through a
// circuit breaker so a struggling platform fails fast instead of tying up
// the engine.
type TicketekPurchaser struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	cfg     config.PurchaseConfig
}

// NewTicketekPurchaser creates a purchaser for the Ticketek checkout API.
func NewTicketekPurchaser(baseURL string, cfg config.PurchaseConfig) *TicketekPurchaser {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ticketek-checkout",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	return &TicketekPurchaser{
		baseURL: baseURL,
		client:  &http.Client{},
		breaker: breaker,
		cfg:     cfg,
	}
}

// NewTicketekPurchaserWithClient is used by tests to inject an HTTP client.
func NewTicketekPurchaserWithClient(baseURL string, cfg config.PurchaseConfig, client *http.Client) *TicketekPurchaser {
	p := NewTicketekPurchaser(baseURL, cfg)
	p.client = client
	return p
}

// Platform returns the platform this purchaser drives.
func (p *TicketekPurchaser) Platform() string {
	return platforms.PlatformTicketek
}

// Purchase runs the pipeline: session init, cart add, payment apply,
// checkout. The first failing step terminates the run; the result names that
// step. Duration is wall clock over the whole pipeline.
func (p *TicketekPurchaser) Purchase(ctx context.Context, req Request) Result {
	started := time.Now()
	result := Result{}

	session, stepResult := p.initSession(ctx, req)
	result.Steps = append(result.Steps, stepResult)
	if stepResult.Err != nil {
		return p.failed(result, stepResult, CodeSessionFailed, started)
	}

	stepResult = p.addToCart(ctx, session, req)
	result.Steps = append(result.Steps, stepResult)
	if stepResult.Err != nil {
		return p.failed(result, stepResult, CodeCartFailed, started)
	}

	stepResult = p.applyPayment(ctx, session, req)
	result.Steps = append(result.Steps, stepResult)
	if stepResult.Err != nil {
		return p.failed(result, stepResult, CodePaymentDeclined, started)
	}

	confirmation, stepResult := p.checkout(ctx, session, req)
	result.Steps = append(result.Steps, stepResult)
	if stepResult.Err != nil {
		return p.failed(result, stepResult, CodeCheckoutFailed, started)
	}

	if confirmation == "" {
		stepResult.Err = errors.New("checkout returned no confirmation number")
		return p.failed(result, stepResult, CodeNoConfirmation, started)
	}

	result.Success = true
	result.ConfirmationNumber = confirmation
	result.Duration = time.Since(started)
	return result
}

// failed fills in the failure fields of a result, classifying timeouts and
// open-breaker rejections over the step default.
func (p *TicketekPurchaser) failed(result Result, step StepResult, defaultCode string, started time.Time) Result {
	code := defaultCode
	switch {
	case errors.Is(step.Err, context.DeadlineExceeded):
		code = CodeStepTimeout
	case errors.Is(step.Err, gobreaker.ErrOpenState), errors.Is(step.Err, gobreaker.ErrTooManyRequests):
		code = CodeCircuitOpen
	}

	result.Success = false
	result.FailedStep = step.Step
	result.Reason = step.Err.Error()
	result.ErrorCode = code
	result.Duration = time.Since(started)
	return result
}

// initSession establishes the checkout session. A preloaded session context
// on the request is reused; identifiers the platform hands back win, and
// anything still missing after a successful handshake is minted locally.
func (p *TicketekPurchaser) initSession(ctx context.Context, req Request) (SessionContext, StepResult) {
	session := req.Session

	payload := map[string]interface{}{"user_id": req.UserID}
	if session.SessionID != "" {
		payload["session_id"] = session.SessionID
		payload["csrf_token"] = session.CSRFToken
	}

	stepResult := p.runStep(ctx, StepSessionInit, sessionInitTimeout, "/purchase/session", payload, func(body map[string]interface{}) error {
		if id, _ := body["session_id"].(string); id != "" {
			session.SessionID = id
		}
		if token, _ := body["csrf_token"].(string); token != "" {
			session.CSRFToken = token
		}
		return nil
	})
	if stepResult.Err != nil {
		return session, stepResult
	}

	if session.SessionID == "" {
		session.SessionID = uuid.New().String()
	}
	if session.CSRFToken == "" {
		session.CSRFToken = uuid.New().String()
	}
	return session, stepResult
}

func (p *TicketekPurchaser) addToCart(ctx context.Context, session SessionContext, req Request) StepResult {
	return p.runStep(ctx, StepCartAdd, p.cfg.CartTimeout, "/purchase/cart", map[string]interface{}{
		"session_id": session.SessionID,
		"csrf_token": session.CSRFToken,
		"ticket_id":  req.TicketID,
		"quantity":   req.Quantity,
	}, func(body map[string]interface{}) error {
		// A 2xx without a cart confirmation id is still a failure
		if id, _ := body["cart_id"].(string); id == "" {
			return errors.New("no cart confirmation id in response")
		}
		return nil
	})
}

func (p *TicketekPurchaser) applyPayment(ctx context.Context, session SessionContext, req Request) StepResult {
	return p.runStep(ctx, StepPaymentApply, p.cfg.PaymentTimeout, "/purchase/payment", map[string]interface{}{
		"session_id":      session.SessionID,
		"csrf_token":      session.CSRFToken,
		"payment_method":  req.PaymentMethod,
		"billing_address": req.BillingAddress,
		"amount":          req.Amount,
		"currency":        req.Currency,
	}, nil)
}

func (p *TicketekPurchaser) checkout(ctx context.Context, session SessionContext, req Request) (string, StepResult) {
	var confirmation string
	stepResult := p.runStep(ctx, StepCheckout, p.cfg.CheckoutTimeout, "/purchase/checkout", map[string]interface{}{
		"session_id": session.SessionID,
		"csrf_token": session.CSRFToken,
	}, func(body map[string]interface{}) error {
		confirmation, _ = body["confirmation_number"].(string)
		return nil
	})
	return confirmation, stepResult
}

// runStep performs one time-boxed POST through the circuit breaker. The
// optional inspect callback extracts fields from the decoded response.
func (p *TicketekPurchaser) runStep(ctx context.Context, step string, timeout time.Duration, path string, payload map[string]interface{}, inspect func(map[string]interface{}) error) StepResult {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	err := p.post(stepCtx, path, payload, inspect)
	duration := time.Since(started)

	metrics.PurchaseStepDuration.WithLabelValues(p.Platform(), step).Observe(duration.Seconds())

	if err != nil {
		log.Warn().
			Err(err).
			Str("step", step).
			Dur("duration", duration).
			Msg("Purchase step failed")
	}

	return StepResult{Step: step, Duration: duration, Err: err}
}

func (p *TicketekPurchaser) post(ctx context.Context, path string, payload map[string]interface{}, inspect func(map[string]interface{}) error) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	_, err = p.breaker.Execute(func() (interface{}, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		res, err := p.client.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()

		if res.StatusCode < 200 || res.StatusCode >= 300 {
			detail, _ := io.ReadAll(io.LimitReader(res.Body, 512))
			return nil, fmt.Errorf("platform returned %d: %s", res.StatusCode, string(detail))
		}

		body := map[string]interface{}{}
		if err := json.NewDecoder(res.Body).Decode(&body); err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}

		if inspect != nil {
			return nil, inspect(body)
		}
		return nil, nil
	})

	// Surface the deadline over the transport wrapper so timeouts classify
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
