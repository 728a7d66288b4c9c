package notifier

import (
	"context"

	"github.com/frameloft/FrameLoft/app/models"
	"gorm.io/gorm"
)

// Repository provides the notifier's DB operations. The threshold write is a
// conditional single-statement update so a scan racing another replica fires
// each alert at most once.
type Repository interface {
	ListAlertCandidates(ctx context.Context, minThreshold int) ([]models.Account, error)
	AdvanceAlertThreshold(ctx context.Context, accountID uint, threshold int) (bool, error)
	RearmAlertThreshold(ctx context.Context, accountID uint, threshold int) error
	CreateNotification(ctx context.Context, accountID uint, content string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a notifier repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// ListAlertCandidates selects accounts whose alert state may change this
// scan: usage at or above the lowest threshold, or a previously recorded
// alert that may need re-arming. Unlimited accounts never alert.
func (r *gormRepository) ListAlertCandidates(ctx context.Context, minThreshold int) ([]models.Account, error) {
	var accounts []models.Account
	err := r.db.WithContext(ctx).
		Where("storage_limit > 0").
		Where("storage_used * 100 >= storage_limit * ? OR last_alert_threshold > 0", minThreshold).
		Find(&accounts).Error
	return accounts, err
}

// AdvanceAlertThreshold raises last_alert_threshold to threshold only if it
// is still lower, and reports whether this caller won the advance.
func (r *gormRepository) AdvanceAlertThreshold(ctx context.Context, accountID uint, threshold int) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ? AND last_alert_threshold < ?", accountID, threshold).
		UpdateColumn("last_alert_threshold", threshold)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// RearmAlertThreshold lowers last_alert_threshold after usage dropped, so a
// future crossing fires again.
func (r *gormRepository) RearmAlertThreshold(ctx context.Context, accountID uint, threshold int) error {
	return r.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ? AND last_alert_threshold > ?", accountID, threshold).
		UpdateColumn("last_alert_threshold", threshold).Error
}

func (r *gormRepository) CreateNotification(ctx context.Context, accountID uint, content string) error {
	db := r.db.WithContext(ctx)
	return models.CreateNotification(db, accountID, models.NotificationTypeStorageThreshold, content)
}
