package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/rs/zerolog/log"

	"example.com/hdtickets/services/discovery/config"
)

// Consumer pulls scraped payloads off the Service Bus queue. Scrapers set the
// session id per platform, so one session is one platform's batch.
type Consumer struct {
	client *azservicebus.Client
}

// NewConsumer connects to the Service Bus namespace.
func NewConsumer(cfg config.Config) (*Consumer, error) {
	client, err := azservicebus.NewClientFromConnectionString(cfg.AzureQueueConnStr, nil)
	if err != nil {
		return nil, err
	}

	return &Consumer{client: client}, nil
}

// Start accepts sessions from the queue until the client errors. Each session
// is drained concurrently.
func (c *Consumer) Start(queueName string, processor MessageProcessor) error {
	log.Info().Str("queue", queueName).Msg("Scraped payload consumer starting")

	for {
		receiver, err := c.client.AcceptNextSessionForQueue(context.TODO(), queueName, nil)
		if err != nil {
			var sbErr *azservicebus.Error
			if errors.As(err, &sbErr) && sbErr.Code == azservicebus.CodeTimeout {
				log.Debug().Str("queue", queueName).Msg("No scraper session available, waiting")
				time.Sleep(2 * time.Second)
				continue
			}
			return err
		}

		log.Info().Str("sessionID", receiver.SessionID()).Msg("Scraper session accepted")

		go c.drainSession(receiver, processor)
	}
}

// drainSession receives scraped payloads in batches until the session is
// empty. Payloads that fail processing are abandoned back to the queue.
func (c *Consumer) drainSession(receiver *azservicebus.SessionReceiver, processor MessageProcessor) {
	sessionID := receiver.SessionID()
	defer func() {
		if err := receiver.Close(context.TODO()); err != nil {
			log.Error().Err(err).Str("sessionID", sessionID).Msg("Failed to close scraper session")
		}
	}()

	for {
		messages, err := receiver.ReceiveMessages(context.TODO(), 10, nil)
		if err != nil {
			log.Error().Err(err).Str("sessionID", sessionID).Msg("Failed to receive scraped payloads")
			return
		}

		if len(messages) == 0 {
			log.Debug().Str("sessionID", sessionID).Msg("Scraper session drained")
			return
		}

		log.Info().
			Str("sessionID", sessionID).
			Int("payloads", len(messages)).
			Msg("Scraped payload batch received")

		for _, message := range messages {
			if err := processor.ProcessMessage(context.Background(), message); err != nil {
				log.Error().
					Err(err).
					Str("sessionID", sessionID).
					Str("messageID", message.MessageID).
					Msg("Scraped payload rejected, returning to queue")
				if err := receiver.AbandonMessage(context.Background(), message, nil); err != nil {
					log.Error().Err(err).Str("messageID", message.MessageID).Msg("Failed to abandon payload")
				}
				continue
			}

			if err := receiver.CompleteMessage(context.Background(), message, nil); err != nil {
				log.Error().Err(err).Str("messageID", message.MessageID).Msg("Failed to complete payload")
			}
		}
	}
}
