package platforms

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/hdtickets/services/discovery/domain"
)

func fixedAdapter() *TicketekAdapter {
	a := NewTicketekAdapter()
	a.now = func() time.Time {
		return time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)
	}
	return a
}

func TestAdaptTicketDataSalesStatusMapping(t *testing.T) {
	a := fixedAdapter()

	cases := map[string]domain.AvailabilityStatus{
		"on_sale":              domain.Available,
		"ON_SALE":              domain.Available,
		"low_availability":     domain.Limited,
		"presale":              domain.OnSaleSoon,
		"allocation_exhausted": domain.SoldOut,
		"mystery_code":         domain.Unknown,
	}

	for status, want := range cases {
		ticket := a.AdaptTicketData(map[string]interface{}{
			"id":           "t-1",
			"sales_status": status,
		})
		assert.Equal(t, want, ticket.Availability, "sales_status %q", status)
	}
}

func TestAdaptTicketDataQuantityHeuristic(t *testing.T) {
	a := fixedAdapter()

	cases := []struct {
		quantity interface{}
		want     domain.AvailabilityStatus
	}{
		{0, domain.SoldOut},
		{3, domain.Limited},
		{5, domain.Limited},
		{6, domain.Available},
		{250, domain.Available},
	}

	for _, tc := range cases {
		ticket := a.AdaptTicketData(map[string]interface{}{
			"id":       "t-1",
			"quantity": tc.quantity,
		})
		assert.Equal(t, tc.want, ticket.Availability, "quantity %v", tc.quantity)
	}

	// No quantity and no sales status is unknowable, not sold out
	ticket := a.AdaptTicketData(map[string]interface{}{"id": "t-1"})
	assert.Equal(t, domain.Unknown, ticket.Availability)
}

func TestAdaptTicketDataMintsMissingID(t *testing.T) {
	a := fixedAdapter()

	ticket := a.AdaptTicketData(map[string]interface{}{"event_name": "Some Match"})
	assert.NotEmpty(t, ticket.TicketID)
}

func TestAdaptTicketDataPriceFromText(t *testing.T) {
	a := fixedAdapter()

	ticket := a.AdaptTicketData(map[string]interface{}{
		"id":         "t-1",
		"price_text": "From £89.50",
	})
	assert.Equal(t, 89.50, ticket.PriceAmount)
	assert.Equal(t, "GBP", ticket.Currency)
}

func TestParseDateDefaultsToTomorrow(t *testing.T) {
	a := fixedAdapter()

	parsed := a.parseDate("not a date at all")
	assert.Equal(t, time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC), parsed)

	parsed = a.parseDate("")
	assert.Equal(t, time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC), parsed)

	parsed = a.parseDate("2026-07-15 19:45:00")
	assert.Equal(t, time.Date(2026, 7, 15, 19, 45, 0, 0, time.UTC), parsed)
}

func TestCurrencyResolution(t *testing.T) {
	a := fixedAdapter()

	assert.Equal(t, "AUD", a.currencyFor("au", ""))
	assert.Equal(t, "NZD", a.currencyFor("nz", ""))
	assert.Equal(t, "GBP", a.currencyFor("uk", ""))
	assert.Equal(t, "NZD", a.currencyFor("", "NZ$120"))
	assert.Equal(t, "AUD", a.currencyFor("", "AU$120"))
	assert.Equal(t, "USD", a.currencyFor("", "$120"))
	assert.Equal(t, "GBP", a.currencyFor("", "120"))
}

func TestCategorizeFallsBackThroughFields(t *testing.T) {
	a := fixedAdapter()

	ticket := a.AdaptTicketData(map[string]interface{}{
		"id":   "t-1",
		"type": "Rugby Union",
	})
	assert.Equal(t, domain.CategoryRugby, ticket.Category)

	ticket = a.AdaptTicketData(map[string]interface{}{
		"id":         "t-1",
		"type":       "Live Event",
		"event_name": "British Grand Prix F1",
	})
	assert.Equal(t, domain.CategoryMotorsport, ticket.Category)

	ticket = a.AdaptTicketData(map[string]interface{}{
		"id":         "t-1",
		"event_name": "An Evening With Someone",
	})
	assert.Equal(t, domain.CategoryOther, ticket.Category)
}

func TestAdaptEventDataTicketsInheritEventContext(t *testing.T) {
	a := fixedAdapter()

	events := a.AdaptEventData(map[string]interface{}{
		"region": "UK",
		"events": []interface{}{
			map[string]interface{}{
				"id":    "ev-1",
				"name":  "FA Cup Final",
				"venue": "Wembley Stadium",
				"date":  "2026-07-15 15:00:00",
				"type":  "football",
				"tickets": []interface{}{
					map[string]interface{}{
						"id":       "t-1",
						"price":    120.0,
						"quantity": 40,
					},
				},
			},
		},
	})

	require.Len(t, events, 1)
	require.Len(t, events[0].Tickets, 1)

	ticket := events[0].Tickets[0]
	assert.Equal(t, "FA Cup Final", ticket.EventName)
	assert.Equal(t, "Wembley Stadium", ticket.Venue)
	assert.Equal(t, domain.CategoryFootball, ticket.Category)
	assert.Equal(t, "GBP", ticket.Currency)
	assert.Equal(t, time.Date(2026, 7, 15, 15, 0, 0, 0, time.UTC), ticket.EventDate)
	assert.Equal(t, domain.Available, ticket.Availability)
}

func TestAdaptEventDataSkipsMalformedEntries(t *testing.T) {
	a := fixedAdapter()

	events := a.AdaptEventData(map[string]interface{}{
		"events": []interface{}{
			"not an object",
			map[string]interface{}{"id": "ev-2", "name": "Test Match"},
		},
	})

	require.Len(t, events, 1)
	assert.Equal(t, "Test Match", events[0].Name)
}

func TestAdaptEventDataSingleTopLevelEvent(t *testing.T) {
	a := fixedAdapter()

	events := a.AdaptEventData(map[string]interface{}{
		"name":  "Wimbledon Day 3",
		"venue": "All England Club",
		"type":  "tennis",
	})

	require.Len(t, events, 1)
	assert.Equal(t, domain.CategoryTennis, events[0].Category)
}

func TestDiscoveredEventCarriesNormalizedFields(t *testing.T) {
	ticket := NormalizedTicket{
		TicketID:     "t-9",
		EventName:    "FA Cup Final",
		Category:     domain.CategoryFootball,
		Venue:        "Wembley Stadium",
		EventDate:    time.Date(2026, 7, 15, 15, 0, 0, 0, time.UTC),
		PriceAmount:  120,
		Currency:     "GBP",
		Availability: domain.Available,
		Quantity:     40,
	}

	event, err := DiscoveredEvent(PlatformTicketek, ticket)
	require.NoError(t, err)

	assert.Equal(t, domain.TicketDiscovered, event.Type)
	assert.Equal(t, "t-9", event.AggregateID)

	data, ok := event.Data.(domain.TicketDiscoveredEvent)
	require.True(t, ok)
	assert.Equal(t, "ticketek", data.PlatformSource)
	assert.Equal(t, "FOOTBALL", data.EventCategory)
	assert.Equal(t, string(domain.Available), data.Availability)
}
