package reconcile

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vitalscope/vitalscope-business/internal/metrics"
	"github.com/vitalscope/vitalscope-business/internal/models"
	"github.com/vitalscope/vitalscope-business/internal/subscription"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Syncer refreshes cached subscription records from the billing provider.
// This is the one path that treats the provider as more authoritative than
// the local registry, and it always re-queries rather than trusting any
// cached provider response.
type Syncer struct {
	registry *subscription.Registry
	client   Client
	group    singleflight.Group
	limiter  *rate.Limiter
}

// NewSyncer constructs a Syncer. A nil client disables provider queries and
// turns Refresh into a plain registry read.
func NewSyncer(registry *subscription.Registry, client Client, providerQPS float64) *Syncer {
	var limiter *rate.Limiter
	if providerQPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(providerQPS), int(providerQPS)+1)
	}
	return &Syncer{registry: registry, client: client, limiter: limiter}
}

// Refresh returns the user's subscription, corrected from the provider when
// the cached record has drifted. Provider failures fall back to the cached
// record and never fail the caller's request.
func (s *Syncer) Refresh(ctx context.Context, userID string) (*models.UserSubscription, error) {
	local, errGet := s.registry.Get(ctx, userID)
	if errGet != nil {
		return nil, errGet
	}
	if s.client == nil {
		return local, nil
	}

	// Concurrent readers for the same user collapse into one provider query.
	refreshed, errSync, _ := s.group.Do(userID, func() (any, error) {
		if s.limiter != nil && !s.limiter.Allow() {
			// Over the outbound budget: serve the cached record this time.
			return local, nil
		}

		state, errQuery := s.client.Subscriber(ctx, userID)
		if errQuery != nil {
			metrics.ReconciliationFailures.Inc()
			log.WithError(errQuery).WithField("user", userID).
				Warn("reconcile: provider query failed, serving cached state")
			return local, nil
		}

		if !diverges(local, state) {
			return local, nil
		}

		corrected, errOverwrite := s.registry.Overwrite(ctx, userID, state)
		if errOverwrite != nil {
			return nil, errOverwrite
		}
		metrics.ReconciliationCorrections.Inc()
		log.WithFields(log.Fields{
			"user": userID,
			"tier": corrected.Tier,
		}).Info("reconcile: corrected stale subscription record")
		return corrected, nil
	})
	if errSync != nil {
		return nil, errSync
	}
	return refreshed.(*models.UserSubscription), nil
}

// diverges reports whether the provider state differs from the cached record
// in any entitlement-relevant field.
func diverges(record *models.UserSubscription, state subscription.State) bool {
	if record.Tier != state.Tier || record.Status != state.Status {
		return true
	}
	if record.CancelAtPeriodEnd != state.CancelAtPeriodEnd {
		return true
	}
	return !equalPeriodEnd(record.PeriodEnd, state.PeriodEnd)
}

func equalPeriodEnd(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
