package models

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookEvent journals an accepted billing provider event for auditing and
// replay diagnosis. Retention pruning trims old rows.
type WebhookEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	EventID string `gorm:"type:varchar(64);not null;uniqueIndex"` // Locally assigned event UUID.

	Type   string `gorm:"type:varchar(64);not null;index"`  // Provider event type.
	UserID string `gorm:"type:varchar(255);not null;index"` // Target app user ID.

	OccurredAt time.Time `gorm:"not null;index"`         // Provider event timestamp (receipt time when absent).
	Sandbox    bool      `gorm:"not null;default:false"` // Sandbox flag from the payload.
	Applied    bool      `gorm:"not null;default:false"` // Whether the event mutated subscription state.

	Payload datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"` // Raw event payload.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// TableName overrides the default table name.
func (WebhookEvent) TableName() string {
	return "webhook_events"
}
