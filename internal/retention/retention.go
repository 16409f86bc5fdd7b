// Package retention prunes the webhook event journal on a schedule.
package retention

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/vitalscope/vitalscope-business/internal/models"
	"github.com/vitalscope/vitalscope-business/internal/settings"
)

// pruneSchedule runs the journal prune once a day, shortly after midnight UTC.
const pruneSchedule = "10 0 * * *"

// Pruner deletes webhook journal rows older than the configured retention.
type Pruner struct {
	db  *gorm.DB
	now func() time.Time
}

// NewPruner constructs a Pruner.
func NewPruner(conn *gorm.DB) *Pruner {
	return &Pruner{db: conn, now: time.Now}
}

// Start schedules the daily prune and stops the scheduler when ctx ends.
func (p *Pruner) Start(ctx context.Context) error {
	scheduler := cron.New(cron.WithLocation(time.UTC))
	_, errAdd := scheduler.AddFunc(pruneSchedule, func() {
		if pruned, errPrune := p.Prune(ctx); errPrune != nil {
			log.WithError(errPrune).Error("webhook journal prune failed")
		} else if pruned > 0 {
			log.Infof("pruned %d webhook journal rows", pruned)
		}
	})
	if errAdd != nil {
		return errAdd
	}
	scheduler.Start()
	go func() {
		<-ctx.Done()
		scheduler.Stop()
	}()
	return nil
}

// Prune deletes rows older than the retention window and returns the count.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	days := settings.IntValue(settings.RetentionDaysKey, settings.DefaultRetentionDays)
	if days <= 0 {
		return 0, nil
	}
	cutoff := p.now().UTC().AddDate(0, 0, -days)
	result := p.db.WithContext(ctx).
		Where("occurred_at < ?", cutoff).
		Delete(&models.WebhookEvent{})
	return result.RowsAffected, result.Error
}
