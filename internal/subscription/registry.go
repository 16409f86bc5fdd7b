// Package subscription owns the per-user subscription record and its
// idempotent mutation semantics.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vitalscope/vitalscope-business/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrStaleEvent indicates a mutation carried an ordering key older than the
// one already applied; the record was left untouched.
var ErrStaleEvent = errors.New("subscription: stale event")

// Patch describes the subscription fields one billing event intends to set.
// Nil pointers leave the current value in place, making re-application of the
// same event a no-op with respect to observable state.
type Patch struct {
	Tier              *string    // Target tier.
	Status            *string    // Target status.
	PeriodEnd         *time.Time // New period end.
	ClearPeriodEnd    bool       // Clears the period end when set.
	CancelAtPeriodEnd *bool      // Target cancellation flag.
	OccurredAt        time.Time  // Ordering key; zero bypasses the ordering guard.
}

// State is an authoritative snapshot of a subscription, as reported by the
// billing provider during reconciliation.
type State struct {
	Tier              string     // Provider-derived tier.
	Status            string     // Provider-derived status.
	PeriodEnd         *time.Time // Provider-reported period end.
	CancelAtPeriodEnd bool       // Provider-reported cancellation flag.
	AsOf              time.Time  // When the provider produced the snapshot.
}

// Registry is the single writer of UserSubscription rows.
type Registry struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRegistry constructs a Registry.
func NewRegistry(conn *gorm.DB) *Registry {
	return &Registry{db: conn, now: time.Now}
}

// Get returns the user's subscription, lazily creating the entry-tier
// default record for users the billing provider has never mentioned.
func (r *Registry) Get(ctx context.Context, userID string) (*models.UserSubscription, error) {
	if errEnsure := r.ensure(ctx, userID); errEnsure != nil {
		return nil, errEnsure
	}
	var record models.UserSubscription
	if errFind := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&record).Error; errFind != nil {
		return nil, fmt.Errorf("subscription: load %s: %w", userID, errFind)
	}
	return &record, nil
}

// Apply merges a patch into the user's record. Only the fields the patch
// sets are overwritten; CreatedAt is preserved and UpdatedAt refreshed.
// A patch whose ordering key is older than the last applied one is rejected
// with ErrStaleEvent and the current record is returned unchanged.
func (r *Registry) Apply(ctx context.Context, userID string, patch Patch) (*models.UserSubscription, error) {
	if errEnsure := r.ensure(ctx, userID); errEnsure != nil {
		return nil, errEnsure
	}

	updates := map[string]any{"updated_at": r.now().UTC()}
	if patch.Tier != nil {
		updates["tier"] = *patch.Tier
	}
	if patch.Status != nil {
		updates["status"] = *patch.Status
	}
	if patch.ClearPeriodEnd {
		updates["period_end"] = nil
	} else if patch.PeriodEnd != nil {
		updates["period_end"] = patch.PeriodEnd.UTC()
	}
	if patch.CancelAtPeriodEnd != nil {
		updates["cancel_at_period_end"] = *patch.CancelAtPeriodEnd
	}

	query := r.db.WithContext(ctx).Model(&models.UserSubscription{}).Where("user_id = ?", userID)
	if !patch.OccurredAt.IsZero() {
		updates["last_event_at"] = patch.OccurredAt.UTC()
		// The guard lives in the WHERE clause so racing writers serialize on
		// the row and the losing (older) event becomes a no-op.
		query = query.Where("last_event_at IS NULL OR last_event_at <= ?", patch.OccurredAt.UTC())
	}

	res := query.Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("subscription: apply %s: %w", userID, res.Error)
	}

	record, errGet := r.Get(ctx, userID)
	if errGet != nil {
		return nil, errGet
	}
	if res.RowsAffected == 0 {
		return record, ErrStaleEvent
	}
	return record, nil
}

// Overwrite replaces the billing fields with a freshly queried provider
// snapshot. Reconciliation is the one caller that outranks the ordering
// guard, because its state is never served from a cache.
func (r *Registry) Overwrite(ctx context.Context, userID string, state State) (*models.UserSubscription, error) {
	if errEnsure := r.ensure(ctx, userID); errEnsure != nil {
		return nil, errEnsure
	}

	asOf := state.AsOf
	if asOf.IsZero() {
		asOf = r.now()
	}
	updates := map[string]any{
		"tier":                 state.Tier,
		"status":               state.Status,
		"cancel_at_period_end": state.CancelAtPeriodEnd,
		"last_event_at":        asOf.UTC(),
		"updated_at":           r.now().UTC(),
	}
	if state.PeriodEnd != nil {
		updates["period_end"] = state.PeriodEnd.UTC()
	} else {
		updates["period_end"] = nil
	}

	if errUpdate := r.db.WithContext(ctx).Model(&models.UserSubscription{}).
		Where("user_id = ?", userID).
		Updates(updates).Error; errUpdate != nil {
		return nil, fmt.Errorf("subscription: overwrite %s: %w", userID, errUpdate)
	}
	return r.Get(ctx, userID)
}

// ForceTier sets the tier directly, preserving every other field. Used by the
// secret-gated admin override.
func (r *Registry) ForceTier(ctx context.Context, userID, tierName string) (*models.UserSubscription, error) {
	if errEnsure := r.ensure(ctx, userID); errEnsure != nil {
		return nil, errEnsure
	}
	if errUpdate := r.db.WithContext(ctx).Model(&models.UserSubscription{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{"tier": tierName, "updated_at": r.now().UTC()}).Error; errUpdate != nil {
		return nil, fmt.Errorf("subscription: force tier %s: %w", userID, errUpdate)
	}
	return r.Get(ctx, userID)
}

// ensure inserts the default entry-tier record when the user has none.
func (r *Registry) ensure(ctx context.Context, userID string) error {
	record := models.UserSubscription{
		UserID: userID,
		Tier:   models.TierEntry,
		Status: models.StatusActive,
	}
	if errCreate := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&record).Error; errCreate != nil {
		return fmt.Errorf("subscription: ensure %s: %w", userID, errCreate)
	}
	return nil
}
