package reconcile

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vitalscope/vitalscope-business/internal/models"
	"github.com/vitalscope/vitalscope-business/internal/settings"
	"gorm.io/gorm"
)

// Sweeper periodically refreshes subscriptions that look stale, catching
// users whose expiration webhook never arrived. It complements the on-read
// sync for users who stopped issuing requests.
type Sweeper struct {
	db     *gorm.DB
	syncer *Syncer
}

// NewSweeper constructs a Sweeper. Returns nil when any dependency is
// missing; a nil Sweeper's Start is a no-op.
func NewSweeper(conn *gorm.DB, syncer *Syncer) *Sweeper {
	if conn == nil || syncer == nil {
		return nil
	}
	return &Sweeper{db: conn, syncer: syncer}
}

// Start launches the sweep loop in a background goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	if s == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go s.run(ctx)
	log.Infof("reconcile sweeper started (interval=%ds)", settings.IntValue(settings.SweepIntervalSecondsKey, settings.DefaultSweepIntervalSeconds))
}

func (s *Sweeper) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		s.sweep(ctx)

		interval := time.Duration(settings.IntValue(settings.SweepIntervalSecondsKey, settings.DefaultSweepIntervalSeconds)) * time.Second
		if interval <= 0 {
			interval = time.Duration(settings.DefaultSweepIntervalSeconds) * time.Second
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

// sweep refreshes every plus subscription whose period end has passed but
// whose record still carries the upgraded tier.
func (s *Sweeper) sweep(ctx context.Context) {
	maxConcurrency := settings.IntValue(settings.SweepMaxConcurrencyKey, settings.DefaultSweepMaxConcurrency)
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}

	var userIDs []string
	if errFind := s.db.WithContext(ctx).Model(&models.UserSubscription{}).
		Where("tier = ? AND period_end IS NOT NULL AND period_end < ?", models.TierPlus, time.Now().UTC()).
		Pluck("user_id", &userIDs).Error; errFind != nil {
		log.WithError(errFind).Warn("reconcile sweeper: load stale subscriptions failed")
		return
	}
	if len(userIDs) == 0 {
		return
	}

	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup
	for _, userID := range userIDs {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return
		}

		wg.Add(1)
		id := userID
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if _, errRefresh := s.syncer.Refresh(ctx, id); errRefresh != nil {
				log.WithError(errRefresh).Warnf("reconcile sweeper: refresh failed (user=%s)", id)
			}
		}()
	}
	wg.Wait()
}
