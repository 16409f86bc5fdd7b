package models

import "time"

// UsageRecord tracks a user's windowed consumption counters.
// Counts are valid only relative to their markers: a stale marker means the
// window has rolled over and the count reads as zero.
type UsageRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID string `gorm:"type:varchar(255);not null;uniqueIndex"` // Owning user ID.

	Day           string `gorm:"type:varchar(10);not null;default:''"` // UTC day marker (2006-01-02).
	PooledCount   int    `gorm:"not null;default:0"`                   // Daily pooled report+chat count.
	SnapshotCount int    `gorm:"not null;default:0"`                   // Daily snapshot count.

	Week        string `gorm:"type:varchar(10);not null;default:''"` // UTC week marker (Monday of the ISO week).
	ReportCount int    `gorm:"not null;default:0"`                   // Weekly report count.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (UsageRecord) TableName() string {
	return "usage_records"
}
