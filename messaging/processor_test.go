package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/hdtickets/services/discovery/domain"
	"example.com/hdtickets/services/discovery/platforms"
)

type captureDispatcher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (d *captureDispatcher) DispatchWithRetry(ctx context.Context, event domain.Event, maxRetries int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func message(t *testing.T, body interface{}) *azservicebus.ReceivedMessage {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return &azservicebus.ReceivedMessage{Body: raw}
}

func TestProcessScrapedEventsMessage(t *testing.T) {
	bus := &captureDispatcher{}
	processor := NewProcessor(bus, 3, platforms.NewTicketekAdapter())

	msg := message(t, map[string]interface{}{
		"eventType": ScrapedEvents,
		"platform":  "ticketek",
		"data": map[string]interface{}{
			"region": "uk",
			"events": []interface{}{
				map[string]interface{}{
					"name":  "FA Cup Final",
					"venue": "Wembley Stadium",
					"type":  "football",
					"tickets": []interface{}{
						map[string]interface{}{"id": "t-1", "price": 120.0, "quantity": 10},
						map[string]interface{}{"id": "t-2", "price": 90.0, "quantity": 2},
					},
				},
			},
		},
	})

	require.NoError(t, processor.ProcessMessage(context.Background(), msg))
	require.Len(t, bus.events, 2)

	for _, event := range bus.events {
		assert.Equal(t, domain.TicketDiscovered, event.Type)
		data := event.Data.(domain.TicketDiscoveredEvent)
		assert.Equal(t, "ticketek", data.PlatformSource)
		assert.Equal(t, "FA Cup Final", data.EventName)
	}
}

func TestProcessScrapedTicketMessage(t *testing.T) {
	bus := &captureDispatcher{}
	processor := NewProcessor(bus, 3, platforms.NewTicketekAdapter())

	msg := message(t, map[string]interface{}{
		"eventType": ScrapedTicket,
		"platform":  "ticketek",
		"data": map[string]interface{}{
			"id":           "t-9",
			"event_name":   "Wimbledon Final",
			"price_text":   "£250",
			"sales_status": "limited",
		},
	})

	require.NoError(t, processor.ProcessMessage(context.Background(), msg))
	require.Len(t, bus.events, 1)

	data := bus.events[0].Data.(domain.TicketDiscoveredEvent)
	assert.Equal(t, "t-9", data.TicketID)
	assert.Equal(t, 250.0, data.PriceAmount)
	assert.Equal(t, string(domain.Limited), data.Availability)
}

func TestProcessBarePayloadRoutedByPlatformField(t *testing.T) {
	bus := &captureDispatcher{}
	processor := NewProcessor(bus, 3, platforms.NewTicketekAdapter())

	msg := message(t, map[string]interface{}{
		"platform": "ticketek",
		"name":     "Ashes Test Day 1",
		"type":     "cricket",
		"tickets": []interface{}{
			map[string]interface{}{"id": "t-1", "price": 60.0, "quantity": 100},
		},
	})

	require.NoError(t, processor.ProcessMessage(context.Background(), msg))
	require.Len(t, bus.events, 1)
}

func TestProcessMessageUnknownPlatform(t *testing.T) {
	bus := &captureDispatcher{}
	processor := NewProcessor(bus, 3, platforms.NewTicketekAdapter())

	msg := message(t, map[string]interface{}{
		"eventType": ScrapedEvents,
		"platform":  "stubhub",
		"data":      map[string]interface{}{},
	})

	assert.Error(t, processor.ProcessMessage(context.Background(), msg))
	assert.Empty(t, bus.events)
}

func TestProcessMessageUnsupportedEventType(t *testing.T) {
	bus := &captureDispatcher{}
	processor := NewProcessor(bus, 3, platforms.NewTicketekAdapter())

	msg := message(t, map[string]interface{}{
		"eventType": "SomethingElse",
		"platform":  "ticketek",
		"data":      map[string]interface{}{},
	})

	assert.Error(t, processor.ProcessMessage(context.Background(), msg))
}
