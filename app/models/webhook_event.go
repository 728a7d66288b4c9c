package models

import "time"

// WebhookEvent stores every inbound billing-provider delivery with
// deduplication metadata for idempotent processing. Rows are append-only;
// they double as the durable audit trail.
type WebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	EventID         string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_webhook_events_event_id" json:"event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	Payload         string     `gorm:"type:longtext;not null" json:"payload"`
	ClaimedAt       *time.Time `gorm:"type:timestamp;default:null" json:"claimed_at,omitempty"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	DeliveryCount   int        `gorm:"not null;default:1" json:"delivery_count"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Processed reports whether the reconciler's side effects have committed.
func (e *WebhookEvent) Processed() bool {
	return e.ProcessedAt != nil
}
