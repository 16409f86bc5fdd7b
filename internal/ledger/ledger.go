// Package ledger enforces windowed usage quotas with atomic
// check-and-increment semantics.
package ledger

import (
	"context"
	"time"
)

// Resource identifies a metered action kind.
type Resource string

// Metered resources.
const (
	// ResourceReport is report generation.
	ResourceReport Resource = "report"
	// ResourceChat is a follow-up chat message against a report.
	ResourceChat Resource = "chat"
	// ResourceSnapshot is a daily snapshot request.
	ResourceSnapshot Resource = "snapshot"
)

// Outcome is the result of a consumption attempt. Remaining reflects the
// quota left after a successful consumption and is zero on denial.
type Outcome struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
}

// Store meters per-user consumption. Implementations must make the
// rollover+check+increment sequence a single atomic unit per user: when K
// concurrent calls race against remaining quota R, exactly R succeed.
type Store interface {
	// TryConsume checks the tier's ceiling for a resource and, when below it,
	// increments the counter. Rollover of stale windows happens inside the
	// same atomic unit.
	TryConsume(ctx context.Context, userID, tierName string, resource Resource) (Outcome, error)

	// Peek returns the remaining quota without mutating state. Stale window
	// markers are rolled over on the fly for the returned figure only; the
	// stored record is untouched.
	Peek(ctx context.Context, userID, tierName string, resource Resource) (int, error)

	// ConsumeReportChat spends one chat message against a specific report.
	// On the entry tier this is governed by the per-report ceiling; on the
	// plus tier it additionally consumes one unit from the daily pool. The
	// two counters move together or not at all.
	ConsumeReportChat(ctx context.Context, userID, reportID, tierName string) (Outcome, error)

	// PeekReportChat returns the remaining per-report chat quota without
	// mutating state. A negative per-report ceiling never occurs; tiers with
	// no per-report ceiling report the daily pool instead via Peek.
	PeekReportChat(ctx context.Context, userID, reportID, tierName string) (int, error)
}

// DayKey returns the UTC calendar day marker for t.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// WeekKey returns the UTC marker for the Monday starting t's ISO week.
func WeekKey(t time.Time) string {
	t = t.UTC()
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	monday := t.AddDate(0, 0, 1-weekday)
	return monday.Format("2006-01-02")
}
