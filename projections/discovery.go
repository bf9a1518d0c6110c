package projections

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/hdtickets/services/discovery/cache"
	"example.com/hdtickets/services/discovery/domain"
	"example.com/hdtickets/services/discovery/metrics"
	"example.com/hdtickets/services/discovery/models"
	"example.com/hdtickets/services/discovery/repositories"
	"example.com/hdtickets/services/discovery/stats"
)

// highDemandKeywords flag event names that historically sell out fast.
// This is a heuristic, not a guarantee.
var highDemandKeywords = []string{"final", "championship", "derby", "playoff", "semi-final", "cup"}

// highDemandVenues is the venue allow-list for the same heuristic.
var highDemandVenues = []string{
	"wembley stadium",
	"old trafford",
	"anfield",
	"emirates stadium",
	"etihad stadium",
	"twickenham",
	"principality stadium",
}

// Dispatcher publishes follow-up events produced by projections.
type Dispatcher interface {
	Dispatch(ctx context.Context, event domain.Event) error
}

// Cache is the short-TTL key/value store used for ticket lookups.
type Cache interface {
	Get(ctx context.Context, key string, value interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// TicketSummary is the cache entry kept per ticket and in the
// platform-scoped index.
type TicketSummary struct {
	TicketID     string    `json:"ticket_id"`
	EventName    string    `json:"event_name"`
	Venue        string    `json:"venue"`
	Category     string    `json:"category"`
	Price        float64   `json:"price"`
	Currency     string    `json:"currency"`
	Availability string    `json:"availability"`
	Quantity     int       `json:"quantity"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// DiscoveryProjector reacts to ticket discovery with four independent side
// effects: read-model upsert, cache refresh, alert matching and statistics.
// Each side effect is individually caught so one failing never stops the
// others.
type DiscoveryProjector struct {
	tickets  repositories.TicketRepository
	alerts   repositories.AlertRuleRepository
	cache    Cache
	recorder stats.Recorder
	indexer  *TicketIndexer
	bus      Dispatcher

	ticketTTL time.Duration
	indexTTL  time.Duration
}

// NewDiscoveryProjector creates the discovery reaction pipeline. The indexer
// may be nil when search is not configured.
func NewDiscoveryProjector(
	tickets repositories.TicketRepository,
	alerts repositories.AlertRuleRepository,
	cache Cache,
	recorder stats.Recorder,
	indexer *TicketIndexer,
	bus Dispatcher,
	ticketTTL, indexTTL time.Duration,
) *DiscoveryProjector {
	return &DiscoveryProjector{
		tickets:   tickets,
		alerts:    alerts,
		cache:     cache,
		recorder:  recorder,
		indexer:   indexer,
		bus:       bus,
		ticketTTL: ticketTTL,
		indexTTL:  indexTTL,
	}
}

// Name identifies the handler on the bus.
func (p *DiscoveryProjector) Name() string {
	return "discovery-projector"
}

// Handle routes ticket events to their projections.
func (p *DiscoveryProjector) Handle(ctx context.Context, event domain.Event) error {
	switch data := event.Data.(type) {
	case domain.TicketDiscoveredEvent:
		return p.projectDiscovered(ctx, event, data)
	case domain.TicketPriceChangedEvent:
		return p.projectPriceChanged(ctx, event, data)
	case domain.TicketAvailabilityChangedEvent:
		return p.projectAvailabilityChanged(ctx, event, data)
	case domain.TicketSoldOutEvent:
		return p.projectSoldOut(ctx, event, data)
	default:
		return nil
	}
}

// projectDiscovered runs the four reaction side effects. Failures are
// collected per side effect, never short-circuited.
func (p *DiscoveryProjector) projectDiscovered(ctx context.Context, event domain.Event, data domain.TicketDiscoveredEvent) error {
	var failed []string

	if err := p.upsertTicket(ctx, event, data); err != nil {
		failed = append(failed, "read_model")
		log.Error().Err(err).Str("ticketID", data.TicketID).Msg("Read model upsert failed")
	}

	if err := p.refreshCache(ctx, data); err != nil {
		// Cache writes are best effort
		log.Warn().Err(err).Str("ticketID", data.TicketID).Msg("Cache refresh failed")
	}

	if err := p.matchAlerts(ctx, data); err != nil {
		failed = append(failed, "alerts")
		log.Error().Err(err).Str("ticketID", data.TicketID).Msg("Alert matching failed")
	}

	if err := p.updateStatistics(ctx, event, data); err != nil {
		failed = append(failed, "statistics")
		log.Error().Err(err).Str("ticketID", data.TicketID).Msg("Statistics update failed")
	}

	metrics.TicketsDiscovered.WithLabelValues(data.PlatformSource).Inc()

	if len(failed) > 0 {
		return fmt.Errorf("discovery projection incomplete: %s failed", strings.Join(failed, ", "))
	}
	return nil
}

// upsertTicket finds or creates the ticket row, appends to its histories and
// bumps the optimistic version counter. FirstDiscoveredAt is set exactly
// once. The save is version-guarded; losing a race against a concurrent
// discovery reloads the row and reapplies on the fresh state.
func (p *DiscoveryProjector) upsertTicket(ctx context.Context, event domain.Event, data domain.TicketDiscoveredEvent) error {
	const maxAttempts = 3

	var ticket *models.Ticket
	var previousAmount float64
	var previousStatus domain.AvailabilityStatus

	for attempt := 1; ; attempt++ {
		loaded, err := p.tickets.FindByTicketID(ctx, data.TicketID)
		if err != nil {
			return fmt.Errorf("failed to load ticket: %w", err)
		}

		var expectedVersion int64
		previousAmount = 0
		previousStatus = ""
		if loaded == nil {
			ticket = &models.Ticket{
				TicketID:          data.TicketID,
				PlatformSource:    data.PlatformSource,
				FirstDiscoveredAt: event.Timestamp,
			}
		} else {
			ticket = loaded
			expectedVersion = loaded.Version
			previousAmount = loaded.CurrentPrice
			previousStatus = domain.ParseAvailabilityStatus(loaded.AvailabilityStatus)
		}

		ticket.EventName = data.EventName
		ticket.EventCategory = data.EventCategory
		ticket.Venue = data.Venue
		ticket.EventDate = data.EventDate
		ticket.CurrentPrice = data.PriceAmount
		ticket.Currency = data.Currency
		ticket.AvailabilityStatus = data.Availability
		ticket.Quantity = data.AvailableQuantity
		ticket.IsHighDemand = isHighDemand(data.EventName, data.Venue)
		ticket.Version++
		ticket.LastUpdatedAt = event.Timestamp
		if ticket.FirstDiscoveredAt.IsZero() {
			ticket.FirstDiscoveredAt = event.Timestamp
		}

		if err := appendPriceHistory(ticket, data.PriceAmount, data.Currency, event.Timestamp); err != nil {
			return err
		}
		if err := appendAvailabilityHistory(ticket, data.Availability, data.AvailableQuantity, event.Timestamp); err != nil {
			return err
		}

		err = p.tickets.SaveVersioned(ctx, ticket, expectedVersion)
		if err == nil {
			break
		}
		if !errors.Is(err, repositories.ErrVersionConflict) || attempt == maxAttempts {
			return fmt.Errorf("failed to save ticket: %w", err)
		}
		log.Debug().
			Str("ticketID", data.TicketID).
			Int("attempt", attempt).
			Msg("Ticket row moved, retrying upsert")
	}

	// Search indexing is best effort; the row is already durable
	if p.indexer != nil {
		if err := p.indexer.Index(ctx, ticket); err != nil {
			log.Warn().Err(err).Str("ticketID", ticket.TicketID).Msg("Search indexing failed")
		}
	}

	p.emitDerivedEvents(ctx, data, previousAmount, previousStatus, ticket.Version)
	return nil
}

// emitDerivedEvents publishes price-change and sold-out facts derived from
// comparing the previous row state with the discovery.
func (p *DiscoveryProjector) emitDerivedEvents(ctx context.Context, data domain.TicketDiscoveredEvent, previousAmount float64, previousStatus domain.AvailabilityStatus, rowVersion int64) {
	if rowVersion <= 1 {
		// First discovery, nothing to derive
		return
	}

	if previousAmount != data.PriceAmount {
		event, err := domain.NewEvent(domain.AggregateTicket, data.TicketID, domain.TicketPriceChangedEvent{
			TicketID:       data.TicketID,
			OldAmount:      previousAmount,
			NewAmount:      data.PriceAmount,
			Currency:       data.Currency,
			PlatformSource: data.PlatformSource,
		})
		if err == nil {
			if err := p.bus.Dispatch(ctx, event); err != nil {
				log.Warn().Err(err).Str("ticketID", data.TicketID).Msg("Failed to dispatch price change")
			}
		}
	}

	newStatus := domain.ParseAvailabilityStatus(data.Availability)
	if domain.WentSoldOut(previousStatus, newStatus) {
		event, err := domain.NewEvent(domain.AggregateTicket, data.TicketID, domain.TicketSoldOutEvent{
			TicketID:       data.TicketID,
			LastAmount:     data.PriceAmount,
			Currency:       data.Currency,
			PlatformSource: data.PlatformSource,
		})
		if err == nil {
			if err := p.bus.Dispatch(ctx, event); err != nil {
				log.Warn().Err(err).Str("ticketID", data.TicketID).Msg("Failed to dispatch sold out")
			}
		}
	}
}

// refreshCache writes the per-ticket entry and updates the platform-scoped
// index, both TTL-bound. Built from the event itself so it works even when
// the read model write failed.
func (p *DiscoveryProjector) refreshCache(ctx context.Context, data domain.TicketDiscoveredEvent) error {
	summary := TicketSummary{
		TicketID:     data.TicketID,
		EventName:    data.EventName,
		Venue:        data.Venue,
		Category:     data.EventCategory,
		Price:        data.PriceAmount,
		Currency:     data.Currency,
		Availability: data.Availability,
		Quantity:     data.AvailableQuantity,
		DiscoveredAt: time.Now().UTC(),
	}

	if err := p.cache.Set(ctx, cache.TicketCacheKey(data.TicketID), summary, p.ticketTTL); err != nil {
		return err
	}

	index := map[string]TicketSummary{}
	if err := p.cache.Get(ctx, cache.PlatformTicketsKey(data.PlatformSource), &index); err != nil {
		// Missing or unreadable index is rebuilt from scratch
		index = map[string]TicketSummary{}
	}
	index[data.TicketID] = summary

	return p.cache.Set(ctx, cache.PlatformTicketsKey(data.PlatformSource), index, p.indexTTL)
}

// matchAlerts evaluates every active alert rule against the discovery and
// dispatches an AlertTriggered event per match. Criteria are OR-combined;
// the price ceiling is AND-combined on top.
func (p *DiscoveryProjector) matchAlerts(ctx context.Context, data domain.TicketDiscoveredEvent) error {
	rules, err := p.alerts.FindActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load alert rules: %w", err)
	}

	for _, rule := range rules {
		if !ruleMatches(rule, data) {
			continue
		}

		severity := "info"
		if isHighDemand(data.EventName, data.Venue) {
			severity = "critical"
		}

		alertID := uuid.New().String()
		event, err := domain.NewEvent(domain.AggregateAlert, alertID, domain.AlertTriggeredEvent{
			AlertID:   alertID,
			MonitorID: rule.MonitorID,
			UserID:    rule.UserID,
			AlertType: "ticket_discovered",
			Severity:  severity,
			AlertData: map[string]string{
				"ticket_id":  data.TicketID,
				"event_name": data.EventName,
				"venue":      data.Venue,
				"price":      fmt.Sprintf("%.2f %s", data.PriceAmount, data.Currency),
				"platform":   data.PlatformSource,
				"rule_id":    rule.RuleID,
			},
			TriggeredAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}

		if err := p.bus.Dispatch(ctx, event); err != nil {
			return fmt.Errorf("failed to dispatch alert for rule %s: %w", rule.RuleID, err)
		}

		metrics.AlertsTriggered.WithLabelValues("ticket_discovered").Inc()
		log.Info().
			Str("ruleID", rule.RuleID).
			Str("userID", rule.UserID).
			Str("ticketID", data.TicketID).
			Msg("Alert triggered")
	}

	return nil
}

// updateStatistics bumps the per-platform/day counter and the
// per-platform/day/category counter.
func (p *DiscoveryProjector) updateStatistics(ctx context.Context, event domain.Event, data domain.TicketDiscoveredEvent) error {
	date := event.Timestamp.Format("2006-01-02")

	if err := p.recorder.Increment(ctx, data.PlatformSource, date, "tickets_discovered"); err != nil {
		return err
	}

	category := strings.ToLower(data.EventCategory)
	if category == "" {
		category = strings.ToLower(domain.CategoryOther.String())
	}
	return p.recorder.Increment(ctx, data.PlatformSource, date, "tickets_discovered:"+category)
}

// projectPriceChanged refreshes the current price on the row. History is
// appended by the discovery projection that produced this event.
func (p *DiscoveryProjector) projectPriceChanged(ctx context.Context, event domain.Event, data domain.TicketPriceChangedEvent) error {
	ticket, err := p.tickets.FindByTicketID(ctx, data.TicketID)
	if err != nil || ticket == nil {
		return err
	}

	ticket.CurrentPrice = data.NewAmount
	ticket.Currency = data.Currency
	ticket.Version++
	ticket.LastUpdatedAt = event.Timestamp
	return p.tickets.SaveVersioned(ctx, ticket, ticket.Version-1)
}

// projectAvailabilityChanged refreshes availability on the row.
func (p *DiscoveryProjector) projectAvailabilityChanged(ctx context.Context, event domain.Event, data domain.TicketAvailabilityChangedEvent) error {
	ticket, err := p.tickets.FindByTicketID(ctx, data.TicketID)
	if err != nil || ticket == nil {
		return err
	}

	ticket.AvailabilityStatus = data.NewStatus
	ticket.Quantity = data.Quantity
	ticket.Version++
	ticket.LastUpdatedAt = event.Timestamp

	if err := appendAvailabilityHistory(ticket, data.NewStatus, data.Quantity, event.Timestamp); err != nil {
		return err
	}
	return p.tickets.SaveVersioned(ctx, ticket, ticket.Version-1)
}

// projectSoldOut marks the row sold out.
func (p *DiscoveryProjector) projectSoldOut(ctx context.Context, event domain.Event, data domain.TicketSoldOutEvent) error {
	ticket, err := p.tickets.FindByTicketID(ctx, data.TicketID)
	if err != nil || ticket == nil {
		return err
	}

	ticket.AvailabilityStatus = string(domain.SoldOut)
	ticket.Quantity = 0
	ticket.Version++
	ticket.LastUpdatedAt = event.Timestamp
	return p.tickets.SaveVersioned(ctx, ticket, ticket.Version-1)
}

// ruleMatches applies the alert rule to a discovery: at least one of the
// name/venue/category criteria must match, and the price must be at or
// below the ceiling in the same currency.
func ruleMatches(rule models.AlertRule, data domain.TicketDiscoveredEvent) bool {
	matched := false
	if rule.NameContains != "" && containsFold(data.EventName, rule.NameContains) {
		matched = true
	}
	if rule.VenueContains != "" && containsFold(data.Venue, rule.VenueContains) {
		matched = true
	}
	if rule.CategoryContains != "" && containsFold(data.EventCategory, rule.CategoryContains) {
		matched = true
	}
	if !matched {
		return false
	}

	if rule.MaxPrice <= 0 {
		return true
	}

	ceiling, err := domain.NewPrice(rule.MaxPrice, rule.Currency)
	if err != nil {
		return false
	}
	price, err := domain.NewPrice(data.PriceAmount, data.Currency)
	if err != nil {
		return false
	}

	// Cross-currency rules never match rather than comparing blindly
	over, err := price.IsGreaterThan(ceiling)
	if err != nil {
		return false
	}
	return !over
}

// isHighDemand applies the keyword/venue heuristic.
func isHighDemand(eventName, venue string) bool {
	for _, keyword := range highDemandKeywords {
		if containsFold(eventName, keyword) {
			return true
		}
	}
	for _, allowed := range highDemandVenues {
		if containsFold(venue, allowed) {
			return true
		}
	}
	return false
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func appendPriceHistory(ticket *models.Ticket, amount float64, currency string, at time.Time) error {
	var history []models.PricePoint
	if len(ticket.PriceHistory) > 0 {
		if err := json.Unmarshal(ticket.PriceHistory, &history); err != nil {
			return fmt.Errorf("failed to unmarshal price history: %w", err)
		}
	}

	history = append(history, models.PricePoint{Amount: amount, Currency: currency, RecordedAt: at})
	encoded, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal price history: %w", err)
	}
	ticket.PriceHistory = encoded
	return nil
}

func appendAvailabilityHistory(ticket *models.Ticket, status string, quantity int, at time.Time) error {
	var history []models.AvailabilityPoint
	if len(ticket.AvailabilityHistory) > 0 {
		if err := json.Unmarshal(ticket.AvailabilityHistory, &history); err != nil {
			return fmt.Errorf("failed to unmarshal availability history: %w", err)
		}
	}

	history = append(history, models.AvailabilityPoint{Status: status, Quantity: quantity, RecordedAt: at})
	encoded, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal availability history: %w", err)
	}
	ticket.AvailabilityHistory = encoded
	return nil
}
