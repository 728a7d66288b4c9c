package quota

import (
	"context"
	"time"

	"github.com/frameloft/FrameLoft/app/models"
	"github.com/frameloft/FrameLoft/internal/pkg/entitlements"
	"gorm.io/gorm"
)

// Repository provides the ledger's DB operations. Both mutations are single
// statements so concurrent callers are serialized by row-level atomicity.
type Repository interface {
	ReserveStorage(ctx context.Context, accountID uint, bytes int64, now time.Time) (bool, error)
	ReleaseStorage(ctx context.Context, accountID uint, bytes int64) error
	GetAccount(ctx context.Context, accountID uint) (*models.Account, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a quota repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// effectiveLimitExpr resolves the ceiling in-statement: a cancelled or
// expired subscription whose ends_at has passed falls back to the free-tier
// ceiling, everything else keeps storage_limit. Evaluating this lazily at
// admission time replaces a scheduled downgrade job.
const effectiveLimitExpr = `CASE
	WHEN subscription_status IN ('cancelled', 'expired')
		AND subscription_ends_at IS NOT NULL
		AND subscription_ends_at <= ?
	THEN ?
	ELSE storage_limit
END`

// ReserveStorage increments storage_used by bytes only if the result stays
// within the account's effective limit, in one conditional UPDATE. Returns
// whether the debit was applied. The unlimited sentinel always admits.
func (r *gormRepository) ReserveStorage(ctx context.Context, accountID uint, bytes int64, now time.Time) (bool, error) {
	freeLimit := entitlements.StorageLimitBytes(entitlements.PlanFree)

	tx := r.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", accountID).
		Where("("+effectiveLimitExpr+") = ? OR storage_used + ? <= ("+effectiveLimitExpr+")",
			now, freeLimit, models.StorageUnlimited,
			bytes, now, freeLimit).
		UpdateColumn("storage_used", gorm.Expr("storage_used + ?", bytes))
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// ReleaseStorage decrements storage_used unconditionally, floored at zero.
func (r *gormRepository) ReleaseStorage(ctx context.Context, accountID uint, bytes int64) error {
	return r.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", accountID).
		UpdateColumn("storage_used", gorm.Expr("GREATEST(storage_used - ?, 0)", bytes)).Error
}

func (r *gormRepository) GetAccount(ctx context.Context, accountID uint) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).Where("id = ?", accountID).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}
