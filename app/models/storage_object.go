package models

import (
	"time"

	"gorm.io/gorm"
)

// Storage object kinds covered by the quota ledger.
const (
	ObjectKindPhoto          = "photo"
	ObjectKindAvatar         = "avatar"
	ObjectKindCollectionHero = "collection_hero"
)

// StorageObject records one stored binary per account so deletes can credit
// the exact number of bytes that were reserved at upload time.
type StorageObject struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UUID      string         `gorm:"type:varchar(36);not null;uniqueIndex" json:"uuid"`
	AccountID uint           `gorm:"not null;index" json:"account_id"`
	Kind      string         `gorm:"type:varchar(32);not null;index" json:"kind"`
	SizeBytes int64          `gorm:"type:bigint;not null" json:"size_bytes"`
	ObjectKey string         `gorm:"type:varchar(500);not null" json:"object_key"`
	FileName  string         `gorm:"type:varchar(255)" json:"file_name"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// IsValidObjectKind reports whether kind is one of the ledger-covered kinds.
func IsValidObjectKind(kind string) bool {
	switch kind {
	case ObjectKindPhoto, ObjectKindAvatar, ObjectKindCollectionHero:
		return true
	default:
		return false
	}
}

// FindStorageObjectByUUID finds a storage object by its public UUID
func FindStorageObjectByUUID(db *gorm.DB, uuid string) (*StorageObject, error) {
	var obj StorageObject
	result := db.Where("uuid = ?", uuid).First(&obj)
	return &obj, result.Error
}
