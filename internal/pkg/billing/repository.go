package billing

import (
	"time"

	"github.com/frameloft/FrameLoft/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ClaimResult is the outcome of an atomic webhook claim attempt.
type ClaimResult int

const (
	// Claimed means this caller owns the event and must apply side effects.
	Claimed ClaimResult = iota
	// AlreadyProcessed means side effects committed earlier; the delivery is
	// a duplicate and only recorded for audit.
	AlreadyProcessed
	// AlreadyInFlight means another delivery holds a fresh claim.
	AlreadyInFlight
)

// Repository provides DB operations used by the subscription reconciler.
type Repository interface {
	ClaimWebhookEvent(event *models.WebhookEvent, staleBefore time.Time) (ClaimResult, *models.WebhookEvent, error)
	MarkWebhookProcessed(eventID string, note string) error
	RecordWebhookFailure(eventID string, processingError string) error
	GetAccountByID(accountID uint) (*models.Account, error)
	GetAccountByCustomerID(customerID string) (*models.Account, error)
	UpdateAccountSubscription(accountID uint, updates map[string]interface{}) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// ClaimWebhookEvent inserts-or-detects the event row via the unique
// constraint on event_id, then claims it with a conditional single-statement
// update. Two concurrent deliveries of the same event cannot both win the
// claim; a claim older than staleBefore is treated as abandoned (crash
// between claim and processed) and may be re-taken.
func (r *gormRepository) ClaimWebhookEvent(event *models.WebhookEvent, staleBefore time.Time) (ClaimResult, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return AlreadyInFlight, nil, tx.Error
	}
	if tx.RowsAffected == 0 {
		// Redelivery: keep the audit trail current even when no side effects run.
		if err := r.db.Model(&models.WebhookEvent{}).
			Where("event_id = ?", event.EventID).
			UpdateColumn("delivery_count", gorm.Expr("delivery_count + 1")).Error; err != nil {
			return AlreadyInFlight, nil, err
		}
	}

	now := time.Now()
	claim := r.db.Model(&models.WebhookEvent{}).
		Where("event_id = ? AND processed_at IS NULL AND (claimed_at IS NULL OR claimed_at < ?)",
			event.EventID, staleBefore).
		UpdateColumn("claimed_at", &now)
	if claim.Error != nil {
		return AlreadyInFlight, nil, claim.Error
	}

	var stored models.WebhookEvent
	if err := r.db.Where("event_id = ?", event.EventID).First(&stored).Error; err != nil {
		return AlreadyInFlight, nil, err
	}
	if claim.RowsAffected > 0 {
		return Claimed, &stored, nil
	}
	if stored.Processed() {
		return AlreadyProcessed, &stored, nil
	}
	return AlreadyInFlight, &stored, nil
}

// MarkWebhookProcessed stamps processed_at after side effects committed.
// The note lands in processing_error for terminal non-applied outcomes
// (unresolved account, ignored event type).
func (r *gormRepository) MarkWebhookProcessed(eventID string, note string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": note,
	}
	return r.db.Model(&models.WebhookEvent{}).Where("event_id = ?", eventID).Updates(updates).Error
}

// RecordWebhookFailure stores the error without stamping processed_at, so a
// later redelivery can retry once the claim goes stale.
func (r *gormRepository) RecordWebhookFailure(eventID string, processingError string) error {
	return r.db.Model(&models.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Update("processing_error", processingError).Error
}

func (r *gormRepository) GetAccountByID(accountID uint) (*models.Account, error) {
	return models.FindAccountByID(r.db, accountID)
}

func (r *gormRepository) GetAccountByCustomerID(customerID string) (*models.Account, error) {
	return models.FindAccountByBillingCustomerID(r.db, customerID)
}

// UpdateAccountSubscription writes plan, limit and status in one
// multi-column single-row update so concurrent reconciliation of different
// events cannot interleave partial writes.
func (r *gormRepository) UpdateAccountSubscription(accountID uint, updates map[string]interface{}) error {
	return r.db.Model(&models.Account{}).Where("id = ?", accountID).Updates(updates).Error
}
