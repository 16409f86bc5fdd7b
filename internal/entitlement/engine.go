// Package entitlement turns tier limits, subscription state and ledger
// counts into allow/deny decisions for the gated actions.
package entitlement

import (
	"context"
	"time"

	"github.com/vitalscope/vitalscope-business/internal/ledger"
	"github.com/vitalscope/vitalscope-business/internal/metrics"
	"github.com/vitalscope/vitalscope-business/internal/models"
	"github.com/vitalscope/vitalscope-business/internal/reconcile"
	"github.com/vitalscope/vitalscope-business/internal/tier"
)

// Denial reasons surfaced to clients.
const (
	ReasonWeeklyReportLimit = "weekly report limit reached"
	ReasonReportChatLimit   = "chat limit for this report reached"
	ReasonDailyPoolLimit    = "daily action limit reached"
	ReasonSnapshotUpgrade   = "daily snapshots require an upgraded plan"
	ReasonSnapshotLimit     = "daily snapshot limit reached"
	ReasonModelUpgrade      = "model not available on the current plan"
)

// Decision is the structured answer to "is this action allowed right now".
// UpgradeRequired is set only when upgrading would lift the ceiling that
// caused the denial; a same-tier cooldown leaves it false.
type Decision struct {
	Allowed         bool   `json:"allowed"`
	Reason          string `json:"reason,omitempty"`
	Remaining       int    `json:"remaining"`
	UpgradeRequired bool   `json:"upgrade_required,omitempty"`
	Model           string `json:"model,omitempty"`
}

// TierInfo summarizes a user's plan and remaining quotas for display.
type TierInfo struct {
	Tier              string         `json:"tier"`
	Status            string         `json:"status"`
	PeriodEnd         *time.Time     `json:"period_end,omitempty"`
	CancelAtPeriodEnd bool           `json:"cancel_at_period_end"`
	MaxDataDays       int            `json:"max_data_days"`
	ReportHistory     bool           `json:"report_history"`
	Remaining         map[string]int `json:"remaining"`
}

// Engine composes the tier catalog, the subscription registry (through
// reconciliation) and the usage ledger. It never mutates subscription state
// and only touches the ledger through the store's consumption operations.
type Engine struct {
	syncer *reconcile.Syncer
	store  ledger.Store
	now    func() time.Time
}

// NewEngine constructs an Engine.
func NewEngine(syncer *reconcile.Syncer, store ledger.Store) *Engine {
	return &Engine{syncer: syncer, store: store, now: time.Now}
}

// EffectiveTier resolves the tier whose limits apply right now. A cancelled
// subscription keeps the upgraded limits until its period end passes; every
// other non-active state falls back to the entry tier.
func EffectiveTier(record *models.UserSubscription, now time.Time) string {
	if record == nil || record.Tier != models.TierPlus {
		return models.TierEntry
	}
	switch record.Status {
	case models.StatusActive, models.StatusTrialing:
		return models.TierPlus
	case models.StatusCancelled:
		if record.PeriodEnd != nil && now.Before(*record.PeriodEnd) {
			return models.TierPlus
		}
		return models.TierEntry
	default:
		return models.TierEntry
	}
}

// effectiveTierFor reads the subscription (reconciling on the way) and
// resolves the applicable tier.
func (e *Engine) effectiveTierFor(ctx context.Context, userID string) (string, error) {
	record, errRefresh := e.syncer.Refresh(ctx, userID)
	if errRefresh != nil {
		return "", errRefresh
	}
	return EffectiveTier(record, e.now()), nil
}

// CheckReport answers whether the user may generate a report now.
func (e *Engine) CheckReport(ctx context.Context, userID string) (Decision, error) {
	tierName, errTier := e.effectiveTierFor(ctx, userID)
	if errTier != nil {
		return Decision{}, errTier
	}

	remaining, errPeek := e.store.Peek(ctx, userID, tierName, ledger.ResourceReport)
	if errPeek != nil {
		return Decision{}, errPeek
	}
	if remaining > 0 {
		return e.record("report", Decision{Allowed: true, Remaining: remaining}), nil
	}
	if tierName == models.TierPlus {
		return e.record("report", Decision{Reason: ReasonDailyPoolLimit}), nil
	}
	return e.record("report", Decision{Reason: ReasonWeeklyReportLimit, UpgradeRequired: true}), nil
}

// CheckChat answers whether the user may send a chat message against the
// given report.
func (e *Engine) CheckChat(ctx context.Context, userID, reportID string) (Decision, error) {
	tierName, errTier := e.effectiveTierFor(ctx, userID)
	if errTier != nil {
		return Decision{}, errTier
	}

	remaining, errPeek := e.store.PeekReportChat(ctx, userID, reportID, tierName)
	if errPeek != nil {
		return Decision{}, errPeek
	}
	if remaining > 0 {
		return e.record("chat", Decision{Allowed: true, Remaining: remaining}), nil
	}
	if tierName == models.TierPlus {
		return e.record("chat", Decision{Reason: ReasonDailyPoolLimit}), nil
	}
	return e.record("chat", Decision{Reason: ReasonReportChatLimit, UpgradeRequired: true}), nil
}

// CheckSnapshot answers whether the user may request a daily snapshot.
func (e *Engine) CheckSnapshot(ctx context.Context, userID string) (Decision, error) {
	tierName, errTier := e.effectiveTierFor(ctx, userID)
	if errTier != nil {
		return Decision{}, errTier
	}

	limits := tier.LimitsFor(tierName)
	if limits.DailySnapshots <= 0 {
		return e.record("snapshot", Decision{Reason: ReasonSnapshotUpgrade, UpgradeRequired: true}), nil
	}

	remaining, errPeek := e.store.Peek(ctx, userID, tierName, ledger.ResourceSnapshot)
	if errPeek != nil {
		return Decision{}, errPeek
	}
	if remaining > 0 {
		return e.record("snapshot", Decision{Allowed: true, Remaining: remaining}), nil
	}
	return e.record("snapshot", Decision{Reason: ReasonSnapshotLimit}), nil
}

// MaxDataDays returns the data-range ceiling for the user's tier.
func (e *Engine) MaxDataDays(ctx context.Context, userID string) (int, error) {
	tierName, errTier := e.effectiveTierFor(ctx, userID)
	if errTier != nil {
		return 0, errTier
	}
	return tier.LimitsFor(tierName).MaxDataDays, nil
}

// ResolveModel validates a model choice. A disallowed model is answered with
// the tier's default as a forced substitute rather than a bare rejection.
func (e *Engine) ResolveModel(ctx context.Context, userID, modelID string) (Decision, error) {
	tierName, errTier := e.effectiveTierFor(ctx, userID)
	if errTier != nil {
		return Decision{}, errTier
	}
	if tier.ModelAllowed(tierName, modelID) {
		return Decision{Allowed: true, Model: modelID}, nil
	}
	return Decision{
		Reason:          ReasonModelUpgrade,
		UpgradeRequired: true,
		Model:           tier.LimitsFor(tierName).DefaultModel,
	}, nil
}

// Info aggregates plan and remaining-quota figures for client display.
func (e *Engine) Info(ctx context.Context, userID string) (TierInfo, error) {
	record, errRefresh := e.syncer.Refresh(ctx, userID)
	if errRefresh != nil {
		return TierInfo{}, errRefresh
	}
	tierName := EffectiveTier(record, e.now())
	limits := tier.LimitsFor(tierName)

	remaining := map[string]int{}
	reports, errReports := e.store.Peek(ctx, userID, tierName, ledger.ResourceReport)
	if errReports != nil {
		return TierInfo{}, errReports
	}
	snapshots, errSnapshots := e.store.Peek(ctx, userID, tierName, ledger.ResourceSnapshot)
	if errSnapshots != nil {
		return TierInfo{}, errSnapshots
	}
	if limits.DailyPooled > 0 {
		remaining["pooled"] = reports
	} else {
		remaining["reports"] = reports
	}
	remaining["snapshots"] = snapshots

	return TierInfo{
		Tier:              tierName,
		Status:            record.Status,
		PeriodEnd:         record.PeriodEnd,
		CancelAtPeriodEnd: record.CancelAtPeriodEnd,
		MaxDataDays:       limits.MaxDataDays,
		ReportHistory:     limits.ReportHistory,
		Remaining:         remaining,
	}, nil
}

// ConsumeReport books a successfully generated report. Callers invoke this
// only after the action itself succeeded, so a failed action never spends
// quota.
func (e *Engine) ConsumeReport(ctx context.Context, userID string) (ledger.Outcome, error) {
	tierName, errTier := e.effectiveTierFor(ctx, userID)
	if errTier != nil {
		return ledger.Outcome{}, errTier
	}
	return e.store.TryConsume(ctx, userID, tierName, ledger.ResourceReport)
}

// ConsumeChat books a successfully delivered chat message.
func (e *Engine) ConsumeChat(ctx context.Context, userID, reportID string) (ledger.Outcome, error) {
	tierName, errTier := e.effectiveTierFor(ctx, userID)
	if errTier != nil {
		return ledger.Outcome{}, errTier
	}
	return e.store.ConsumeReportChat(ctx, userID, reportID, tierName)
}

// ConsumeSnapshot books a successfully served snapshot.
func (e *Engine) ConsumeSnapshot(ctx context.Context, userID string) (ledger.Outcome, error) {
	tierName, errTier := e.effectiveTierFor(ctx, userID)
	if errTier != nil {
		return ledger.Outcome{}, errTier
	}
	return e.store.TryConsume(ctx, userID, tierName, ledger.ResourceSnapshot)
}

// record counts the decision and passes it through.
func (e *Engine) record(action string, decision Decision) Decision {
	outcome := "deny"
	if decision.Allowed {
		outcome = "allow"
	}
	metrics.EntitlementDecisions.WithLabelValues(action, outcome).Inc()
	return decision
}
