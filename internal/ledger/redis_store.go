package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vitalscope/vitalscope-business/internal/tier"
)

// Key TTLs keep dead windows from accumulating; the window marker embedded in
// the key makes rollover automatic and idempotent.
const (
	dailyKeyTTL  = 48 * time.Hour
	weeklyKeyTTL = 8 * 24 * time.Hour
)

// consumeScript performs check-and-increment with a ceiling as one atomic
// unit. Returns the remaining quota after increment, or -1 when denied.
var consumeScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
if count >= limit then
  return -1
end
count = redis.call('INCR', KEYS[1])
if ttl > 0 then
  redis.call('EXPIRE', KEYS[1], ttl)
end
return limit - count
`)

// consumePooledChatScript spends one unit from the daily pool and bumps the
// per-report chat counter together; denial of the pool touches neither.
var consumePooledChatScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
if count >= limit then
  return -1
end
count = redis.call('INCR', KEYS[1])
if ttl > 0 then
  redis.call('EXPIRE', KEYS[1], ttl)
end
redis.call('INCR', KEYS[2])
return limit - count
`)

// RedisStore meters usage in Redis. Every check-and-increment runs as a Lua
// script, so concurrent consumers for the same user serialize on the server.
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

// redisPlan describes the key, ceiling and TTL governing one consumption.
type redisPlan struct {
	key   string
	limit int
	ttl   time.Duration
}

func (s *RedisStore) planFor(userID, tierName string, resource Resource, at time.Time) (redisPlan, error) {
	limits := tier.LimitsFor(tierName)
	switch resource {
	case ResourceReport:
		if limits.DailyPooled > 0 {
			return redisPlan{key: pooledKey(userID, at), limit: limits.DailyPooled, ttl: dailyKeyTTL}, nil
		}
		return redisPlan{key: reportKey(userID, at), limit: limits.WeeklyReports, ttl: weeklyKeyTTL}, nil
	case ResourceChat:
		if limits.DailyPooled > 0 {
			return redisPlan{key: pooledKey(userID, at), limit: limits.DailyPooled, ttl: dailyKeyTTL}, nil
		}
		return redisPlan{}, fmt.Errorf("ledger: chat on tier %s is metered per report", tierName)
	case ResourceSnapshot:
		return redisPlan{key: snapshotKey(userID, at), limit: limits.DailySnapshots, ttl: dailyKeyTTL}, nil
	default:
		return redisPlan{}, fmt.Errorf("%w: %s", ErrUnknownResource, resource)
	}
}

// TryConsume atomically checks and increments a windowed counter.
func (s *RedisStore) TryConsume(ctx context.Context, userID, tierName string, resource Resource) (Outcome, error) {
	plan, errPlan := s.planFor(userID, tierName, resource, s.now())
	if errPlan != nil {
		return Outcome{}, errPlan
	}
	if plan.limit <= 0 {
		return Outcome{Allowed: false, Remaining: 0}, nil
	}

	remaining, errRun := consumeScript.Run(ctx, s.client, []string{plan.key}, plan.limit, int(plan.ttl.Seconds())).Int()
	if errRun != nil {
		return Outcome{}, fmt.Errorf("ledger: consume %s: %w", resource, errRun)
	}
	if remaining < 0 {
		return Outcome{Allowed: false, Remaining: 0}, nil
	}
	return Outcome{Allowed: true, Remaining: remaining}, nil
}

// Peek returns the remaining quota without mutating state.
func (s *RedisStore) Peek(ctx context.Context, userID, tierName string, resource Resource) (int, error) {
	plan, errPlan := s.planFor(userID, tierName, resource, s.now())
	if errPlan != nil {
		return 0, errPlan
	}
	if plan.limit <= 0 {
		return 0, nil
	}

	count, errGet := s.client.Get(ctx, plan.key).Int()
	if errGet != nil {
		if errors.Is(errGet, redis.Nil) {
			return plan.limit, nil
		}
		return 0, fmt.Errorf("ledger: peek %s: %w", resource, errGet)
	}
	if count >= plan.limit {
		return 0, nil
	}
	return plan.limit - count, nil
}

// ConsumeReportChat spends a chat message against one report.
func (s *RedisStore) ConsumeReportChat(ctx context.Context, userID, reportID, tierName string) (Outcome, error) {
	limits := tier.LimitsFor(tierName)

	if limits.DailyPooled > 0 {
		keys := []string{pooledKey(userID, s.now()), chatKey(userID, reportID)}
		remaining, errRun := consumePooledChatScript.Run(ctx, s.client, keys, limits.DailyPooled, int(dailyKeyTTL.Seconds())).Int()
		if errRun != nil {
			return Outcome{}, fmt.Errorf("ledger: consume report chat: %w", errRun)
		}
		if remaining < 0 {
			return Outcome{Allowed: false, Remaining: 0}, nil
		}
		return Outcome{Allowed: true, Remaining: remaining}, nil
	}

	remaining, errRun := consumeScript.Run(ctx, s.client, []string{chatKey(userID, reportID)}, limits.ChatPerReport, 0).Int()
	if errRun != nil {
		return Outcome{}, fmt.Errorf("ledger: consume report chat: %w", errRun)
	}
	if remaining < 0 {
		return Outcome{Allowed: false, Remaining: 0}, nil
	}
	return Outcome{Allowed: true, Remaining: remaining}, nil
}

// PeekReportChat returns the remaining per-report chat quota.
func (s *RedisStore) PeekReportChat(ctx context.Context, userID, reportID, tierName string) (int, error) {
	limits := tier.LimitsFor(tierName)
	if limits.ChatPerReport <= 0 {
		return s.Peek(ctx, userID, tierName, ResourceChat)
	}

	count, errGet := s.client.Get(ctx, chatKey(userID, reportID)).Int()
	if errGet != nil {
		if errors.Is(errGet, redis.Nil) {
			return limits.ChatPerReport, nil
		}
		return 0, fmt.Errorf("ledger: peek report chat: %w", errGet)
	}
	if count >= limits.ChatPerReport {
		return 0, nil
	}
	return limits.ChatPerReport - count, nil
}

func pooledKey(userID string, at time.Time) string {
	return fmt.Sprintf("vitalscope:usage:%s:pooled:%s", userID, DayKey(at))
}

func snapshotKey(userID string, at time.Time) string {
	return fmt.Sprintf("vitalscope:usage:%s:snapshot:%s", userID, DayKey(at))
}

func reportKey(userID string, at time.Time) string {
	return fmt.Sprintf("vitalscope:usage:%s:report:%s", userID, WeekKey(at))
}

func chatKey(userID, reportID string) string {
	return fmt.Sprintf("vitalscope:chat:%s:%s", userID, reportID)
}
