package models

import "time"

// ReportChatCounter counts chat messages sent against one specific report.
// Created lazily on first chat; scoped to the report's lifetime, never reset.
type ReportChatCounter struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID   string `gorm:"type:varchar(255);not null;uniqueIndex:idx_report_chat_user_report,priority:1"` // Owning user ID.
	ReportID string `gorm:"type:varchar(255);not null;uniqueIndex:idx_report_chat_user_report,priority:2"` // Target report ID.

	Count int `gorm:"not null;default:0"` // Chat messages sent against the report.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (ReportChatCounter) TableName() string {
	return "report_chat_counters"
}
