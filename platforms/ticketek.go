package platforms

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/hdtickets/services/discovery/domain"
	"example.com/hdtickets/services/discovery/utils"
)

// PlatformTicketek is the platform source tag for Ticketek payloads.
const PlatformTicketek = "ticketek"

// limitedQuantityThreshold: inventory at or below this is treated as LIMITED
// when the platform gives no explicit sales status.
const limitedQuantityThreshold = 5

// salesStatusMap translates Ticketek sales-status codes into the internal
// availability vocabulary. Anything not listed maps to UNKNOWN.
var salesStatusMap = map[string]domain.AvailabilityStatus{
	"on_sale":              domain.Available,
	"onsale":               domain.Available,
	"available":            domain.Available,
	"low_availability":     domain.Limited,
	"limited":              domain.Limited,
	"few_remaining":        domain.Limited,
	"presale":              domain.OnSaleSoon,
	"coming_soon":          domain.OnSaleSoon,
	"announced":            domain.OnSaleSoon,
	"sold_out":             domain.SoldOut,
	"allocation_exhausted": domain.SoldOut,
	"off_sale":             domain.SoldOut,
}

// dateFormats Ticketek has been observed to use, tried in order.
var dateFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"Mon, 02 Jan 2006 15:04",
	"Monday, 02 January 2006 15:04",
	"Jan 2, 2006 15:04",
	"Jan 2, 2006",
}

var regionCurrency = map[string]string{
	"uk": "GBP",
	"au": "AUD",
	"nz": "NZD",
}

// TicketekAdapter normalizes Ticketek event and ticket payloads.
type TicketekAdapter struct {
	now func() time.Time
}

// NewTicketekAdapter creates a Ticketek adapter.
func NewTicketekAdapter() *TicketekAdapter {
	return &TicketekAdapter{now: time.Now}
}

// Platform returns the platform source tag.
func (a *TicketekAdapter) Platform() string {
	return PlatformTicketek
}

// AdaptEventData normalizes a Ticketek search/detail payload. Malformed
// entries degrade to defaults; a bad event never aborts the rest.
func (a *TicketekAdapter) AdaptEventData(raw map[string]interface{}) []NormalizedEvent {
	region := strings.ToLower(utils.GetStringValue(raw, "region"))

	rawEvents := utils.GetSliceValue(raw, "events")
	if rawEvents == nil {
		// Some payloads carry a single event at the top level
		if name := utils.GetStringValue(raw, "name"); name != "" {
			rawEvents = []interface{}{raw}
		}
	}

	events := make([]NormalizedEvent, 0, len(rawEvents))
	for _, entry := range rawEvents {
		rawEvent, ok := entry.(map[string]interface{})
		if !ok {
			log.Warn().Str("platform", PlatformTicketek).Msg("Skipping non-object event entry")
			continue
		}
		events = append(events, a.adaptEvent(rawEvent, region))
	}

	return events
}

func (a *TicketekAdapter) adaptEvent(raw map[string]interface{}, region string) NormalizedEvent {
	name := utils.GetStringValue(raw, "name")
	if name == "" {
		name = utils.GetStringValue(raw, "title")
	}

	currency := a.currencyFor(region, utils.GetStringValue(raw, "price_text"))

	event := NormalizedEvent{
		ExternalID: utils.GetStringValue(raw, "id"),
		Name:       name,
		Category:   a.categorize(raw, name),
		Venue:      utils.GetStringValue(raw, "venue"),
		Date:       a.parseDate(utils.GetStringValue(raw, "date")),
		Currency:   currency,
	}

	event.MinPrice, event.MaxPrice = a.priceRange(raw)

	for _, entry := range utils.GetSliceValue(raw, "tickets") {
		rawTicket, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		ticket := a.AdaptTicketData(rawTicket)
		// Inherit event-level context the ticket entry omitted
		if ticket.EventName == "" {
			ticket.EventName = event.Name
		}
		if ticket.Venue == "" {
			ticket.Venue = event.Venue
		}
		if ticket.EventDate.IsZero() {
			ticket.EventDate = event.Date
		}
		if ticket.Currency == "" {
			ticket.Currency = currency
		}
		if ticket.Category == domain.CategoryOther {
			ticket.Category = event.Category
		}
		event.Tickets = append(event.Tickets, ticket)
	}

	return event
}

// AdaptTicketData normalizes a single Ticketek ticket entry.
func (a *TicketekAdapter) AdaptTicketData(raw map[string]interface{}) NormalizedTicket {
	ticketID := utils.GetStringValue(raw, "id")
	if ticketID == "" {
		// A listing without an id still flows through; mint one so the
		// read model has a key.
		ticketID = uuid.New().String()
	}

	price := utils.GetFloat64Value(raw, "price")
	if price == 0 {
		if extracted, ok := utils.ExtractPrice(utils.GetStringValue(raw, "price_text")); ok {
			price = extracted
		}
	}

	quantity := utils.GetIntValue(raw, "quantity")
	name := utils.GetStringValue(raw, "event_name")

	details := map[string]string{}
	if section := utils.GetStringValue(raw, "section"); section != "" {
		details["section"] = section
	}
	if ticketType := utils.GetStringValue(raw, "ticket_type"); ticketType != "" {
		details["ticket_type"] = ticketType
	}
	if restrictions := utils.GetStringValue(raw, "restrictions"); restrictions != "" {
		details["restrictions"] = restrictions
	}

	return NormalizedTicket{
		TicketID:     ticketID,
		EventName:    name,
		Category:     a.categorize(raw, name),
		Venue:        utils.GetStringValue(raw, "venue"),
		EventDate:    a.parseDate(utils.GetStringValue(raw, "date")),
		PriceAmount:  price,
		Currency:     a.currencyFor(strings.ToLower(utils.GetStringValue(raw, "region")), utils.GetStringValue(raw, "price_text")),
		Availability: a.availability(raw, quantity),
		Quantity:     quantity,
		Details:      details,
	}
}

// availability resolves the internal status from the explicit sales status
// when present, falling back to the inventory heuristic.
func (a *TicketekAdapter) availability(raw map[string]interface{}, quantity int) domain.AvailabilityStatus {
	salesStatus := strings.ToLower(strings.TrimSpace(utils.GetStringValue(raw, "sales_status")))
	if salesStatus != "" {
		if status, ok := salesStatusMap[salesStatus]; ok {
			return status
		}
		return domain.Unknown
	}

	if _, present := raw["quantity"]; !present {
		return domain.Unknown
	}

	switch {
	case quantity <= 0:
		return domain.SoldOut
	case quantity <= limitedQuantityThreshold:
		return domain.Limited
	default:
		return domain.Available
	}
}

// categorize maps the payload's type/genre fields, then the title keywords,
// to a sport category. Unrecognized input becomes OTHER.
func (a *TicketekAdapter) categorize(raw map[string]interface{}, title string) domain.SportCategory {
	if eventType := utils.GetStringValue(raw, "type"); eventType != "" {
		if category := domain.ParseSportCategory(eventType); category != domain.CategoryOther {
			return category
		}
	}
	if genre := utils.GetStringValue(raw, "genre"); genre != "" {
		if category := domain.ParseSportCategory(genre); category != domain.CategoryOther {
			return category
		}
	}
	return domain.ParseSportCategory(title)
}

// parseDate tries the known Ticketek formats, defaulting to tomorrow rather
// than propagating a parse failure.
func (a *TicketekAdapter) parseDate(dateStr string) time.Time {
	dateStr = strings.TrimSpace(dateStr)
	if dateStr != "" {
		for _, format := range dateFormats {
			if parsed, err := time.Parse(format, dateStr); err == nil {
				return parsed
			}
		}
		log.Warn().
			Str("platform", PlatformTicketek).
			Str("dateString", dateStr).
			Msg("Could not parse event date, defaulting to tomorrow")
	}

	return a.now().AddDate(0, 0, 1).Truncate(time.Hour)
}

// currencyFor resolves currency from the region, then from symbols found in
// the price text.
func (a *TicketekAdapter) currencyFor(region, priceText string) string {
	if currency, ok := regionCurrency[region]; ok {
		return currency
	}

	switch {
	case strings.Contains(priceText, "£"):
		return "GBP"
	case strings.Contains(priceText, "NZ$"):
		return "NZD"
	case strings.Contains(priceText, "AU$"):
		return "AUD"
	case strings.Contains(priceText, "$"):
		return "USD"
	default:
		return "GBP"
	}
}

// priceRange derives min/max prices from explicit fields or free text.
func (a *TicketekAdapter) priceRange(raw map[string]interface{}) (float64, float64) {
	min := utils.GetFloat64Value(raw, "min_price")
	max := utils.GetFloat64Value(raw, "max_price")
	if min > 0 || max > 0 {
		if max < min {
			min, max = max, min
		}
		return min, max
	}

	if price, ok := utils.ExtractPrice(utils.GetStringValue(raw, "price_text")); ok {
		return price, price
	}
	return 0, 0
}
