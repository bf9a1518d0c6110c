package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/hdtickets/services/discovery/cache"
	"example.com/hdtickets/services/discovery/config"
	"example.com/hdtickets/services/discovery/domain"
	"example.com/hdtickets/services/discovery/models"
	"example.com/hdtickets/services/discovery/purchase"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubTicketRepo struct {
	mu   sync.Mutex
	rows map[string]*models.Ticket
}

func (r *stubTicketRepo) FindByTicketID(ctx context.Context, ticketID string) (*models.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[ticketID]
	if !ok {
		return nil, nil
	}
	clone := *row
	return &clone, nil
}

func (r *stubTicketRepo) Save(ctx context.Context, ticket *models.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *ticket
	r.rows[ticket.TicketID] = &clone
	return nil
}

func (r *stubTicketRepo) SaveVersioned(ctx context.Context, ticket *models.Ticket, expectedVersion int64) error {
	return r.Save(ctx, ticket)
}

func (r *stubTicketRepo) ListByPlatform(ctx context.Context, platform string, limit int) ([]models.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Ticket
	for _, row := range r.rows {
		if row.PlatformSource == platform {
			out = append(out, *row)
		}
	}
	return out, nil
}

type stubAlertRepo struct {
	mu    sync.Mutex
	rules []models.AlertRule
}

func (r *stubAlertRepo) FindActive(ctx context.Context) ([]models.AlertRule, error) {
	return r.rules, nil
}

func (r *stubAlertRepo) Create(ctx context.Context, rule *models.AlertRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, *rule)
	return nil
}

type stubPurchaseRepo struct {
	mu   sync.Mutex
	rows map[string]*models.Purchase
}

func (r *stubPurchaseRepo) FindByPurchaseID(ctx context.Context, purchaseID string) (*models.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[purchaseID]
	if !ok {
		return nil, nil
	}
	clone := *row
	return &clone, nil
}

func (r *stubPurchaseRepo) Save(ctx context.Context, p *models.Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *p
	r.rows[p.PurchaseID] = &clone
	return nil
}

type stubRecorder struct{}

func (stubRecorder) Increment(ctx context.Context, platform, date, metric string) error { return nil }
func (stubRecorder) Count(ctx context.Context, platform, date, metric string) (int64, error) {
	return 7, nil
}

type noopBus struct{}

func (noopBus) DispatchMany(ctx context.Context, events []domain.Event) error { return nil }

type instantPurchaser struct{}

func (instantPurchaser) Platform() string { return "ticketek" }

func (instantPurchaser) Purchase(ctx context.Context, req purchase.Request) purchase.Result {
	return purchase.Result{
		Success:            true,
		ConfirmationNumber: "CONF-1",
		Duration:           time.Second,
		Steps: []purchase.StepResult{
			{Step: purchase.StepSessionInit},
			{Step: purchase.StepCartAdd},
			{Step: purchase.StepPaymentApply},
			{Step: purchase.StepCheckout},
		},
	}
}

type serverFixture struct {
	server    *Server
	tickets   *stubTicketRepo
	purchases *stubPurchaseRepo
	redisMock redismock.ClientMock
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	redisClient, redisMock := redismock.NewClientMock()
	tickets := &stubTicketRepo{rows: make(map[string]*models.Ticket)}
	alerts := &stubAlertRepo{}
	purchases := &stubPurchaseRepo{rows: make(map[string]*models.Purchase)}

	engine := purchase.NewEngine(noopBus{}, purchases, redisClient, time.Minute)
	engine.RegisterPurchaser(instantPurchaser{})

	cfg := config.Config{HTTPServerAddress: "127.0.0.1:0"}
	server := NewServer(
		cfg,
		tickets,
		alerts,
		purchases,
		cache.NewRedisCacheWithClient(redisClient),
		stubRecorder{},
		engine,
	)

	return &serverFixture{server: server, tickets: tickets, purchases: purchases, redisMock: redisMock}
}

func (f *serverFixture) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func seedTicket(f *serverFixture, ticketID, availability string) {
	f.tickets.rows[ticketID] = &models.Ticket{
		TicketID:           ticketID,
		PlatformSource:     "ticketek",
		EventName:          "FA Cup Final",
		CurrentPrice:       120,
		Currency:           "GBP",
		AvailabilityStatus: availability,
	}
}

func TestPing(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
}

func TestGetTicketNotFound(t *testing.T) {
	f := newServerFixture(t)
	f.redisMock.ExpectGet("ticket:missing").RedisNil()

	rec := f.do(http.MethodGet, "/api/v1/tickets/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTicketFallsBackToReadModel(t *testing.T) {
	f := newServerFixture(t)
	seedTicket(f, "t-1", string(domain.Available))
	f.redisMock.ExpectGet("ticket:t-1").RedisNil()

	rec := f.do(http.MethodGet, "/api/v1/tickets/t-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var response TicketResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "FA Cup Final", response.EventName)
	assert.Equal(t, 120.0, response.CurrentPrice)
}

func TestListTicketsRequiresPlatform(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(http.MethodGet, "/api/v1/tickets", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAlertRuleValidation(t *testing.T) {
	f := newServerFixture(t)

	// Missing user id
	rec := f.do(http.MethodPost, "/api/v1/alerts/rules", map[string]interface{}{
		"name_contains": "final",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// No criteria at all
	rec = f.do(http.MethodPost, "/api/v1/alerts/rules", map[string]interface{}{
		"user_id": "u-1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Valid rule
	rec = f.do(http.MethodPost, "/api/v1/alerts/rules", map[string]interface{}{
		"user_id":       "u-1",
		"name_contains": "final",
		"max_price":     150,
		"currency":      "GBP",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["rule_id"])
}

func TestCreatePurchaseUnknownTicket(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/purchases", map[string]interface{}{
		"user_id":        "u-1",
		"ticket_id":      "missing",
		"payment_method": "card",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreatePurchaseRejectsUnpurchasableTicket(t *testing.T) {
	f := newServerFixture(t)
	seedTicket(f, "t-1", string(domain.SoldOut))

	rec := f.do(http.MethodPost, "/api/v1/purchases", map[string]interface{}{
		"user_id":        "u-1",
		"ticket_id":      "t-1",
		"payment_method": "card",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreatePurchaseAccepted(t *testing.T) {
	f := newServerFixture(t)
	seedTicket(f, "t-1", string(domain.Available))

	f.redisMock.MatchExpectationsInOrder(false)
	f.redisMock.ExpectSetNX("purchase:lock:t-1:u-1", "1", time.Minute).SetVal(true)
	f.redisMock.ExpectDel("purchase:lock:t-1:u-1").SetVal(1)

	rec := f.do(http.MethodPost, "/api/v1/purchases", map[string]interface{}{
		"user_id":        "u-1",
		"ticket_id":      "t-1",
		"payment_method": "card",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["purchase_id"])
	assert.Equal(t, string(domain.PurchaseQueued), body["status"])
}

func TestGetPurchase(t *testing.T) {
	f := newServerFixture(t)
	f.purchases.rows["p-1"] = &models.Purchase{
		PurchaseID: "p-1",
		UserID:     "u-1",
		Status:     string(domain.PurchaseCompletedS),
	}

	rec := f.do(http.MethodGet, "/api/v1/purchases/p-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/purchases/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelUnknownPurchase(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(http.MethodPost, "/api/v1/purchases/missing/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefundConflictsForUnfinishedPurchase(t *testing.T) {
	f := newServerFixture(t)
	f.purchases.rows["p-1"] = &models.Purchase{
		PurchaseID: "p-1",
		Status:     string(domain.PurchaseProcessing),
	}

	rec := f.do(http.MethodPost, "/api/v1/purchases/p-1/refund", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetStats(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(http.MethodGet, "/api/v1/stats/ticketek?date=2026-08-27", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(7), body["count"])
}
