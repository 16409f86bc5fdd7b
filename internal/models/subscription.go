package models

import "time"

// Subscription tiers.
const (
	// TierEntry is the free entry tier.
	TierEntry = "entry"
	// TierPlus is the paid upgraded tier.
	TierPlus = "plus"
)

// Subscription statuses reported by the billing provider.
const (
	// StatusActive marks a subscription in good standing.
	StatusActive = "active"
	// StatusCancelled marks a subscription cancelled by the user.
	StatusCancelled = "cancelled"
	// StatusPastDue marks a subscription with a billing problem.
	StatusPastDue = "past_due"
	// StatusTrialing marks a subscription in a trial period.
	StatusTrialing = "trialing"
)

// UserSubscription is the authoritative local record of a user's billing state.
// Exactly one row exists per user; entitlement decisions never bypass it.
type UserSubscription struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID string `gorm:"type:varchar(255);not null;uniqueIndex"` // Billing provider app user ID.

	Tier   string `gorm:"type:varchar(32);not null;default:entry"`  // Current tier.
	Status string `gorm:"type:varchar(32);not null;default:active"` // Provider-reported status.

	PeriodEnd         *time.Time `gorm:""`                       // Current billing period end, when known.
	CancelAtPeriodEnd bool       `gorm:"not null;default:false"` // Set when the user cancelled but access runs out the period.

	LastEventAt *time.Time `gorm:"index"` // Ordering key of the last applied billing event.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (UserSubscription) TableName() string {
	return "user_subscriptions"
}
