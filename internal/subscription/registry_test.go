package subscription

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/vitalscope/vitalscope-business/internal/models"
	"gorm.io/gorm"
)

func setupRegistryDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:registry_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.UserSubscription{}); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func timePtr(t time.Time) *time.Time { return &t }

func TestGetCreatesEntryDefault(t *testing.T) {
	registry := NewRegistry(setupRegistryDB(t))

	record, errGet := registry.Get(context.Background(), "u1")
	if errGet != nil {
		t.Fatalf("get: %v", errGet)
	}
	if record.Tier != models.TierEntry || record.Status != models.StatusActive {
		t.Fatalf("expected entry/active default, got %s/%s", record.Tier, record.Status)
	}
	if record.PeriodEnd != nil || record.CancelAtPeriodEnd {
		t.Fatalf("default record should carry no period end or cancel flag")
	}
}

func TestApplyMergesOnlySpecifiedFields(t *testing.T) {
	registry := NewRegistry(setupRegistryDB(t))
	ctx := context.Background()

	periodEnd := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	occurred := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if _, errApply := registry.Apply(ctx, "u1", Patch{
		Tier:              strPtr(models.TierPlus),
		Status:            strPtr(models.StatusActive),
		PeriodEnd:         timePtr(periodEnd),
		CancelAtPeriodEnd: boolPtr(false),
		OccurredAt:        occurred,
	}); errApply != nil {
		t.Fatalf("apply purchase: %v", errApply)
	}

	// A status-only patch must leave tier and period end alone.
	record, errApply := registry.Apply(ctx, "u1", Patch{
		Status:            strPtr(models.StatusCancelled),
		CancelAtPeriodEnd: boolPtr(true),
		OccurredAt:        occurred.Add(time.Hour),
	})
	if errApply != nil {
		t.Fatalf("apply cancellation: %v", errApply)
	}
	if record.Tier != models.TierPlus {
		t.Fatalf("tier should be preserved, got %s", record.Tier)
	}
	if record.Status != models.StatusCancelled || !record.CancelAtPeriodEnd {
		t.Fatalf("expected cancelled with flag set, got %s/%v", record.Status, record.CancelAtPeriodEnd)
	}
	if record.PeriodEnd == nil || !record.PeriodEnd.Equal(periodEnd) {
		t.Fatalf("period end should be preserved, got %v", record.PeriodEnd)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	registry := NewRegistry(setupRegistryDB(t))
	ctx := context.Background()

	patch := Patch{
		Tier:              strPtr(models.TierPlus),
		Status:            strPtr(models.StatusActive),
		PeriodEnd:         timePtr(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)),
		CancelAtPeriodEnd: boolPtr(false),
		OccurredAt:        time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	first, errFirst := registry.Apply(ctx, "u1", patch)
	if errFirst != nil {
		t.Fatalf("first apply: %v", errFirst)
	}
	second, errSecond := registry.Apply(ctx, "u1", patch)
	if errSecond != nil {
		t.Fatalf("second apply: %v", errSecond)
	}

	if first.Tier != second.Tier || first.Status != second.Status ||
		first.CancelAtPeriodEnd != second.CancelAtPeriodEnd {
		t.Fatalf("re-applied event diverged: %+v vs %+v", first, second)
	}
	if !first.PeriodEnd.Equal(*second.PeriodEnd) {
		t.Fatalf("period end diverged: %v vs %v", first.PeriodEnd, second.PeriodEnd)
	}
	if !first.CreatedAt.Equal(second.CreatedAt) {
		t.Fatalf("created at must be preserved across applies")
	}
}

func TestApplyRejectsOlderEvent(t *testing.T) {
	registry := NewRegistry(setupRegistryDB(t))
	ctx := context.Background()

	newer := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	if _, errApply := registry.Apply(ctx, "u1", Patch{
		Tier:           strPtr(models.TierEntry),
		Status:         strPtr(models.StatusActive),
		ClearPeriodEnd: true,
		OccurredAt:     newer,
	}); errApply != nil {
		t.Fatalf("apply expiration: %v", errApply)
	}

	// An older renewal delivered late must not resurrect the subscription.
	record, errStale := registry.Apply(ctx, "u1", Patch{
		Tier:       strPtr(models.TierPlus),
		Status:     strPtr(models.StatusActive),
		PeriodEnd:  timePtr(newer.AddDate(0, 1, 0)),
		OccurredAt: newer.Add(-time.Hour),
	})
	if !errors.Is(errStale, ErrStaleEvent) {
		t.Fatalf("expected ErrStaleEvent, got %v", errStale)
	}
	if record.Tier != models.TierEntry {
		t.Fatalf("stale event must not mutate the record, got tier %s", record.Tier)
	}
}

func TestOverwriteBypassesOrderingGuard(t *testing.T) {
	registry := NewRegistry(setupRegistryDB(t))
	ctx := context.Background()

	if _, errApply := registry.Apply(ctx, "u1", Patch{
		Tier:       strPtr(models.TierPlus),
		Status:     strPtr(models.StatusActive),
		OccurredAt: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
	}); errApply != nil {
		t.Fatalf("apply: %v", errApply)
	}

	record, errOverwrite := registry.Overwrite(ctx, "u1", State{
		Tier:   models.TierEntry,
		Status: models.StatusActive,
	})
	if errOverwrite != nil {
		t.Fatalf("overwrite: %v", errOverwrite)
	}
	if record.Tier != models.TierEntry {
		t.Fatalf("overwrite should win over cached state, got %s", record.Tier)
	}
	if record.PeriodEnd != nil {
		t.Fatalf("overwrite with nil period end should clear it")
	}
}

func TestForceTierPreservesOtherFields(t *testing.T) {
	registry := NewRegistry(setupRegistryDB(t))
	ctx := context.Background()

	periodEnd := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	if _, errApply := registry.Apply(ctx, "u1", Patch{
		Tier:              strPtr(models.TierPlus),
		Status:            strPtr(models.StatusCancelled),
		PeriodEnd:         timePtr(periodEnd),
		CancelAtPeriodEnd: boolPtr(true),
		OccurredAt:        time.Now().UTC(),
	}); errApply != nil {
		t.Fatalf("apply: %v", errApply)
	}

	record, errForce := registry.ForceTier(ctx, "u1", models.TierEntry)
	if errForce != nil {
		t.Fatalf("force tier: %v", errForce)
	}
	if record.Tier != models.TierEntry {
		t.Fatalf("expected forced entry tier, got %s", record.Tier)
	}
	if record.Status != models.StatusCancelled || !record.CancelAtPeriodEnd || record.PeriodEnd == nil {
		t.Fatalf("force tier must preserve other fields, got %+v", record)
	}
}
