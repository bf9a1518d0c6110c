package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"example.com/hdtickets/services/discovery/models"
)

// ErrVersionConflict means a guarded save lost to a concurrent writer and
// the caller should reload the row before retrying.
var ErrVersionConflict = errors.New("ticket version conflict")

// TicketRepository accesses the ticket read model.
type TicketRepository interface {
	FindByTicketID(ctx context.Context, ticketID string) (*models.Ticket, error)
	Save(ctx context.Context, ticket *models.Ticket) error
	SaveVersioned(ctx context.Context, ticket *models.Ticket, expectedVersion int64) error
	ListByPlatform(ctx context.Context, platform string, limit int) ([]models.Ticket, error)
}

// AlertRuleRepository accesses user alert rules.
type AlertRuleRepository interface {
	FindActive(ctx context.Context) ([]models.AlertRule, error)
	Create(ctx context.Context, rule *models.AlertRule) error
}

// PurchaseRepository accesses the purchase read model.
type PurchaseRepository interface {
	FindByPurchaseID(ctx context.Context, purchaseID string) (*models.Purchase, error)
	Save(ctx context.Context, purchase *models.Purchase) error
}

// GormTicketRepository implements TicketRepository using GORM.
type GormTicketRepository struct {
	db *gorm.DB
}

// NewGormTicketRepository creates a ticket repository.
func NewGormTicketRepository(db *gorm.DB) *GormTicketRepository {
	return &GormTicketRepository{db: db}
}

// FindByTicketID returns the ticket row, or nil when it does not exist yet.
func (r *GormTicketRepository) FindByTicketID(ctx context.Context, ticketID string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := r.db.WithContext(ctx).Where("ticket_id = ?", ticketID).First(&ticket).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// Save creates or updates the ticket row.
func (r *GormTicketRepository) Save(ctx context.Context, ticket *models.Ticket) error {
	return r.db.WithContext(ctx).Save(ticket).Error
}

// SaveVersioned persists the ticket only when the stored version still equals
// expectedVersion, so concurrent projections cannot overwrite each other.
// expectedVersion 0 means the row must not exist yet.
func (r *GormTicketRepository) SaveVersioned(ctx context.Context, ticket *models.Ticket, expectedVersion int64) error {
	if expectedVersion == 0 {
		err := r.db.WithContext(ctx).Create(ticket).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrVersionConflict
		}
		return err
	}

	result := r.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Where("ticket_id = ? AND version = ?", ticket.TicketID, expectedVersion).
		Select("*").
		Omit("id", "ticket_id", "created_at").
		Updates(ticket)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// ListByPlatform returns the most recently updated tickets for a platform.
func (r *GormTicketRepository) ListByPlatform(ctx context.Context, platform string, limit int) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := r.db.WithContext(ctx).
		Where("platform_source = ?", platform).
		Order("last_updated_at DESC").
		Limit(limit).
		Find(&tickets).Error
	return tickets, err
}

// GormAlertRuleRepository implements AlertRuleRepository using GORM.
type GormAlertRuleRepository struct {
	db *gorm.DB
}

// NewGormAlertRuleRepository creates an alert rule repository.
func NewGormAlertRuleRepository(db *gorm.DB) *GormAlertRuleRepository {
	return &GormAlertRuleRepository{db: db}
}

// FindActive returns every active alert rule.
func (r *GormAlertRuleRepository) FindActive(ctx context.Context) ([]models.AlertRule, error) {
	var rules []models.AlertRule
	err := r.db.WithContext(ctx).Where("active = ?", true).Find(&rules).Error
	return rules, err
}

// Create stores a new alert rule.
func (r *GormAlertRuleRepository) Create(ctx context.Context, rule *models.AlertRule) error {
	return r.db.WithContext(ctx).Create(rule).Error
}

// GormPurchaseRepository implements PurchaseRepository using GORM.
type GormPurchaseRepository struct {
	db *gorm.DB
}

// NewGormPurchaseRepository creates a purchase repository.
func NewGormPurchaseRepository(db *gorm.DB) *GormPurchaseRepository {
	return &GormPurchaseRepository{db: db}
}

// FindByPurchaseID returns the purchase row, or nil when unknown.
func (r *GormPurchaseRepository) FindByPurchaseID(ctx context.Context, purchaseID string) (*models.Purchase, error) {
	var purchase models.Purchase
	err := r.db.WithContext(ctx).Where("purchase_id = ?", purchaseID).First(&purchase).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

// Save creates or updates the purchase row.
func (r *GormPurchaseRepository) Save(ctx context.Context, purchase *models.Purchase) error {
	return r.db.WithContext(ctx).Save(purchase).Error
}
