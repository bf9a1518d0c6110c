package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/hdtickets/services/discovery/domain"
	"example.com/hdtickets/services/discovery/models"
)

// GormEventStore implements EventStore using GORM
type GormEventStore struct {
	db *gorm.DB
}

// NewGormEventStore creates a new GORM event store
func NewGormEventStore(db *gorm.DB) *GormEventStore {
	return &GormEventStore{db: db}
}

// Store appends a single event.
func (s *GormEventStore) Store(ctx context.Context, event domain.Event) error {
	return s.StoreMany(ctx, []domain.Event{event}, event.AggregateID)
}

// StoreMany appends a batch of events transactionally against one aggregate.
func (s *GormEventStore) StoreMany(ctx context.Context, events []domain.Event, aggregateID string) error {
	if len(events) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, event := range events {
			record, err := toRecord(event, aggregateID)
			if err != nil {
				return err
			}

			if err := tx.Create(&record).Error; err != nil {
				return fmt.Errorf("failed to save event: %w", err)
			}

			log.Info().
				Str("aggregateID", record.AggregateID).
				Str("eventType", event.Type).
				Int("version", event.Version).
				Msg("Event saved")
		}
		return nil
	})
}

// Save saves an aggregate's uncommitted events to the store
func (s *GormEventStore) Save(ctx context.Context, aggregate domain.Aggregate) error {
	events := aggregate.GetEvents()
	if len(events) == 0 {
		return nil
	}

	if err := s.StoreMany(ctx, events, aggregate.GetID()); err != nil {
		return err
	}

	aggregate.ClearEvents()
	return nil
}

// Load loads an aggregate from the store
func (s *GormEventStore) Load(ctx context.Context, aggregate domain.Aggregate) error {
	aggregateID := aggregate.GetID()
	if aggregateID == "" {
		return fmt.Errorf("aggregate ID is empty")
	}

	var records []models.Event
	if err := s.db.WithContext(ctx).
		Where("aggregate_id = ?", aggregateID).
		Order("version ASC").
		Find(&records).Error; err != nil {
		return fmt.Errorf("failed to load events: %w", err)
	}

	// No events means the aggregate doesn't exist yet
	if len(records) == 0 {
		return nil
	}

	for _, record := range records {
		data, err := domain.DecodeEventData(record.EventType, record.Data)
		if err != nil {
			return fmt.Errorf("failed to decode event data: %w", err)
		}

		if err := aggregate.Apply(data); err != nil {
			return fmt.Errorf("failed to apply event: %w", err)
		}
	}

	aggregate.ClearEvents()
	return nil
}

// GetEvents gets all events for an aggregate
func (s *GormEventStore) GetEvents(ctx context.Context, aggregateID string) ([]domain.Event, error) {
	var records []models.Event
	if err := s.db.WithContext(ctx).
		Where("aggregate_id = ?", aggregateID).
		Order("version ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}

	return toDomainEvents(records)
}

// GetUnprocessedEvents gets all unprocessed events in arrival order
func (s *GormEventStore) GetUnprocessedEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	var records []models.Event
	if err := s.db.WithContext(ctx).
		Where("processed = ?", false).
		Order("timestamp ASC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to get unprocessed events: %w", err)
	}

	return toDomainEvents(records)
}

// MarkEventAsProcessed marks an event as processed
func (s *GormEventStore) MarkEventAsProcessed(ctx context.Context, eventID string) error {
	if err := s.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("event_id = ?", eventID).
		Update("processed", true).
		Update("updated_at", time.Now()).
		Error; err != nil {
		return fmt.Errorf("failed to mark event as processed: %w", err)
	}

	return nil
}

func toRecord(event domain.Event, aggregateID string) (models.Event, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.Event{}, fmt.Errorf("failed to marshal event data: %w", err)
	}

	var metadata []byte
	if len(event.Metadata) > 0 {
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return models.Event{}, fmt.Errorf("failed to marshal event metadata: %w", err)
		}
	}

	return models.Event{
		EventID:       event.ID,
		AggregateID:   aggregateID,
		AggregateType: event.AggregateType,
		EventType:     event.Type,
		Data:          data,
		Metadata:      metadata,
		Version:       event.Version,
		Timestamp:     event.Timestamp,
		Processed:     false,
	}, nil
}

func toDomainEvents(records []models.Event) ([]domain.Event, error) {
	events := make([]domain.Event, len(records))
	for i, record := range records {
		data, err := domain.DecodeEventData(record.EventType, record.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode event data: %w", err)
		}

		var metadata map[string]string
		if len(record.Metadata) > 0 {
			if err := json.Unmarshal(record.Metadata, &metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event metadata: %w", err)
			}
		}

		events[i] = domain.Event{
			ID:            record.EventID,
			AggregateID:   record.AggregateID,
			AggregateType: record.AggregateType,
			Type:          record.EventType,
			Version:       record.Version,
			Timestamp:     record.Timestamp,
			Data:          data,
			Metadata:      metadata,
		}
	}

	return events, nil
}
