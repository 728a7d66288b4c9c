package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Subscription status values mirrored from the billing provider.
const (
	SubscriptionStatusFree      = "free"
	SubscriptionStatusOnTrial   = "on_trial"
	SubscriptionStatusActive    = "active"
	SubscriptionStatusPastDue   = "past_due"
	SubscriptionStatusCancelled = "cancelled"
	SubscriptionStatusExpired   = "expired"
	SubscriptionStatusUnpaid    = "unpaid"
)

// StorageUnlimited is the storage_limit sentinel for plans without a ceiling.
const StorageUnlimited int64 = -1

// Account is one tenant of the gallery service.
//
// StorageUsed is owned by the quota ledger and must only be mutated through
// its reserve/release operations. Plan and StorageLimit are owned by the
// subscription reconciler, which always writes them together.
type Account struct {
	ID                    uint           `gorm:"primaryKey" json:"id"`
	Name                  string         `gorm:"type:varchar(150)" json:"name" validate:"required,min=3,max=150"`
	Email                 string         `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,min=5,max=200"`
	Plan                  string         `gorm:"type:varchar(50);default:'free';index" json:"plan" validate:"oneof=free basic pro unlimited"`
	SubscriptionStatus    string         `gorm:"type:varchar(32);default:'free';index" json:"subscription_status" validate:"oneof=free on_trial active past_due cancelled expired unpaid"`
	StorageUsed           int64          `gorm:"type:bigint;not null;default:0" json:"storage_used"`
	StorageLimit          int64          `gorm:"type:bigint;not null" json:"storage_limit"`
	BillingCustomerID     string         `gorm:"type:varchar(191);default:null;index" json:"billing_customer_id,omitempty"`
	BillingSubscriptionID string         `gorm:"type:varchar(191);default:null;index" json:"billing_subscription_id,omitempty"`
	SubscriptionEndsAt    *time.Time     `gorm:"type:timestamp;default:null" json:"subscription_ends_at,omitempty"`
	LastAlertThreshold    int            `gorm:"not null;default:0" json:"last_alert_threshold"`
	CreatedAt             time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt             gorm.DeletedAt `gorm:"index" json:"-"`
}

func (a *Account) Validate() error {
	v := validator.New()

	return v.Struct(a)
}

// HasUnlimitedStorage reports whether the account carries the unlimited sentinel.
func (a *Account) HasUnlimitedStorage() bool {
	return a.StorageLimit == StorageUnlimited
}

// InGracePeriod reports whether a cancelled/expired subscription still keeps
// its paid ceiling because subscription_ends_at has not passed yet.
func (a *Account) InGracePeriod(now time.Time) bool {
	if a.SubscriptionStatus != SubscriptionStatusCancelled && a.SubscriptionStatus != SubscriptionStatusExpired {
		return false
	}
	return a.SubscriptionEndsAt != nil && now.Before(*a.SubscriptionEndsAt)
}

// UsagePercent returns storage usage as a percentage, 0 for unlimited plans.
func (a *Account) UsagePercent() float64 {
	if a.StorageLimit <= 0 {
		return 0
	}
	return (float64(a.StorageUsed) / float64(a.StorageLimit)) * 100
}

// FindAccountByID finds an account by ID
func FindAccountByID(db *gorm.DB, id uint) (*Account, error) {
	var account Account
	result := db.Where("id = ?", id).First(&account)
	return &account, result.Error
}

// FindAccountByBillingCustomerID resolves an account from the billing
// provider's customer reference.
func FindAccountByBillingCustomerID(db *gorm.DB, customerID string) (*Account, error) {
	var account Account
	result := db.Where("billing_customer_id = ?", customerID).First(&account)
	return &account, result.Error
}
