package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vitalscope/vitalscope-business/internal/models"
	"github.com/vitalscope/vitalscope-business/internal/tier"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrUnknownResource indicates a resource the ledger does not meter.
var ErrUnknownResource = errors.New("ledger: unknown resource")

// GormStore meters usage in the relational database. Atomicity of the
// check-and-increment relies on guarded single-statement updates
// (UPDATE ... WHERE count < limit) re-evaluated under the row lock, so
// concurrent consumers can never push a counter past its ceiling.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore constructs a GormStore.
func NewGormStore(conn *gorm.DB) *GormStore {
	return &GormStore{db: conn, now: time.Now}
}

// counterPlan describes which column and window govern one consumption.
type counterPlan struct {
	column    string // Counter column name.
	markerCol string // Window marker column name.
	marker    string // Current window marker value.
	limit     int    // Ceiling for the window.
}

// planFor resolves the column, marker and ceiling for a resource under a tier.
func (s *GormStore) planFor(tierName string, resource Resource, at time.Time) (counterPlan, error) {
	limits := tier.LimitsFor(tierName)
	switch resource {
	case ResourceReport:
		if limits.DailyPooled > 0 {
			return counterPlan{column: "pooled_count", markerCol: "day", marker: DayKey(at), limit: limits.DailyPooled}, nil
		}
		return counterPlan{column: "report_count", markerCol: "week", marker: WeekKey(at), limit: limits.WeeklyReports}, nil
	case ResourceChat:
		if limits.DailyPooled > 0 {
			return counterPlan{column: "pooled_count", markerCol: "day", marker: DayKey(at), limit: limits.DailyPooled}, nil
		}
		// Entry-tier chat is metered per report, not per window.
		return counterPlan{}, fmt.Errorf("ledger: chat on tier %s is metered per report", tierName)
	case ResourceSnapshot:
		return counterPlan{column: "snapshot_count", markerCol: "day", marker: DayKey(at), limit: limits.DailySnapshots}, nil
	default:
		return counterPlan{}, fmt.Errorf("%w: %s", ErrUnknownResource, resource)
	}
}

// TryConsume atomically rolls over, checks and increments a windowed counter.
func (s *GormStore) TryConsume(ctx context.Context, userID, tierName string, resource Resource) (Outcome, error) {
	plan, errPlan := s.planFor(tierName, resource, s.now())
	if errPlan != nil {
		return Outcome{}, errPlan
	}
	if plan.limit <= 0 {
		return Outcome{Allowed: false, Remaining: 0}, nil
	}

	var outcome Outcome
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errEnsure := ensureUsageRow(tx, userID, s.now()); errEnsure != nil {
			return errEnsure
		}
		if errRoll := rollWindow(tx, userID, plan.markerCol, plan.marker); errRoll != nil {
			return errRoll
		}

		res := tx.Model(&models.UsageRecord{}).
			Where(fmt.Sprintf("user_id = ? AND %s = ? AND %s < ?", plan.markerCol, plan.column), userID, plan.marker, plan.limit).
			Update(plan.column, gorm.Expr(plan.column+" + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			outcome = Outcome{Allowed: false, Remaining: 0}
			return nil
		}

		count, errCount := readCounter(tx, userID, plan.column)
		if errCount != nil {
			return errCount
		}
		outcome = Outcome{Allowed: true, Remaining: maxInt(plan.limit-count, 0)}
		return nil
	})
	if errTx != nil {
		return Outcome{}, fmt.Errorf("ledger: consume %s: %w", resource, errTx)
	}
	return outcome, nil
}

// Peek computes the remaining quota. Stale markers are treated as zero counts
// without persisting the rollover.
func (s *GormStore) Peek(ctx context.Context, userID, tierName string, resource Resource) (int, error) {
	plan, errPlan := s.planFor(tierName, resource, s.now())
	if errPlan != nil {
		return 0, errPlan
	}
	if plan.limit <= 0 {
		return 0, nil
	}

	var record models.UsageRecord
	errFind := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&record).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return plan.limit, nil
		}
		return 0, fmt.Errorf("ledger: peek %s: %w", resource, errFind)
	}

	count := 0
	switch plan.column {
	case "pooled_count":
		if record.Day == plan.marker {
			count = record.PooledCount
		}
	case "snapshot_count":
		if record.Day == plan.marker {
			count = record.SnapshotCount
		}
	case "report_count":
		if record.Week == plan.marker {
			count = record.ReportCount
		}
	}
	return maxInt(plan.limit-count, 0), nil
}

// ConsumeReportChat spends a chat message against one report. For pooled
// tiers the daily pool and the per-report counter move in one transaction;
// denial of either leaves both untouched.
func (s *GormStore) ConsumeReportChat(ctx context.Context, userID, reportID, tierName string) (Outcome, error) {
	limits := tier.LimitsFor(tierName)

	var outcome Outcome
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errEnsure := ensureChatRow(tx, userID, reportID); errEnsure != nil {
			return errEnsure
		}

		if limits.DailyPooled > 0 {
			day := DayKey(s.now())
			if errEnsure := ensureUsageRow(tx, userID, s.now()); errEnsure != nil {
				return errEnsure
			}
			if errRoll := rollWindow(tx, userID, "day", day); errRoll != nil {
				return errRoll
			}
			res := tx.Model(&models.UsageRecord{}).
				Where("user_id = ? AND day = ? AND pooled_count < ?", userID, day, limits.DailyPooled).
				Update("pooled_count", gorm.Expr("pooled_count + 1"))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				outcome = Outcome{Allowed: false, Remaining: 0}
				return nil
			}
			if errChat := tx.Model(&models.ReportChatCounter{}).
				Where("user_id = ? AND report_id = ?", userID, reportID).
				Update("count", gorm.Expr("count + 1")).Error; errChat != nil {
				return errChat
			}
			count, errCount := readCounter(tx, userID, "pooled_count")
			if errCount != nil {
				return errCount
			}
			outcome = Outcome{Allowed: true, Remaining: maxInt(limits.DailyPooled-count, 0)}
			return nil
		}

		res := tx.Model(&models.ReportChatCounter{}).
			Where("user_id = ? AND report_id = ? AND count < ?", userID, reportID, limits.ChatPerReport).
			Update("count", gorm.Expr("count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			outcome = Outcome{Allowed: false, Remaining: 0}
			return nil
		}

		var counter models.ReportChatCounter
		if errFind := tx.Where("user_id = ? AND report_id = ?", userID, reportID).Take(&counter).Error; errFind != nil {
			return errFind
		}
		outcome = Outcome{Allowed: true, Remaining: maxInt(limits.ChatPerReport-counter.Count, 0)}
		return nil
	})
	if errTx != nil {
		return Outcome{}, fmt.Errorf("ledger: consume report chat: %w", errTx)
	}
	return outcome, nil
}

// PeekReportChat returns the remaining per-report chat quota.
func (s *GormStore) PeekReportChat(ctx context.Context, userID, reportID, tierName string) (int, error) {
	limits := tier.LimitsFor(tierName)
	if limits.ChatPerReport <= 0 {
		// Pooled tiers have no per-report ceiling; the pool governs.
		return s.Peek(ctx, userID, tierName, ResourceChat)
	}

	var counter models.ReportChatCounter
	errFind := s.db.WithContext(ctx).Where("user_id = ? AND report_id = ?", userID, reportID).Take(&counter).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return limits.ChatPerReport, nil
		}
		return 0, fmt.Errorf("ledger: peek report chat: %w", errFind)
	}
	return maxInt(limits.ChatPerReport-counter.Count, 0), nil
}

// ensureUsageRow inserts the user's usage record when missing.
func ensureUsageRow(tx *gorm.DB, userID string, at time.Time) error {
	record := models.UsageRecord{
		UserID: userID,
		Day:    DayKey(at),
		Week:   WeekKey(at),
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error
}

// ensureChatRow inserts the per-report chat counter when missing.
func ensureChatRow(tx *gorm.DB, userID, reportID string) error {
	counter := models.ReportChatCounter{UserID: userID, ReportID: reportID}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&counter).Error
}

// rollWindow resets counters whose stored marker no longer matches the
// current window. Re-running it within the same window is a no-op.
func rollWindow(tx *gorm.DB, userID, markerCol, marker string) error {
	updates := map[string]any{markerCol: marker}
	switch markerCol {
	case "day":
		updates["pooled_count"] = 0
		updates["snapshot_count"] = 0
	case "week":
		updates["report_count"] = 0
	}
	return tx.Model(&models.UsageRecord{}).
		Where(fmt.Sprintf("user_id = ? AND %s <> ?", markerCol), userID, marker).
		Updates(updates).Error
}

// readCounter reads one counter column for a user.
func readCounter(tx *gorm.DB, userID, column string) (int, error) {
	var value int
	errScan := tx.Model(&models.UsageRecord{}).
		Select(column).
		Where("user_id = ?", userID).
		Scan(&value).Error
	return value, errScan
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
