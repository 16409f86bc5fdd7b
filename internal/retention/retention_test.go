package retention

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/vitalscope/vitalscope-business/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func setupRetentionDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:retention_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.WebhookEvent{}); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func seedEvent(t *testing.T, conn *gorm.DB, eventID string, occurredAt time.Time) {
	t.Helper()
	row := models.WebhookEvent{
		EventID:    eventID,
		Type:       "RENEWAL",
		UserID:     "u1",
		OccurredAt: occurredAt,
		Applied:    true,
		Payload:    datatypes.JSON([]byte(`{}`)),
	}
	if errCreate := conn.Create(&row).Error; errCreate != nil {
		t.Fatalf("seed event: %v", errCreate)
	}
}

func TestPruneDeletesOnlyExpiredRows(t *testing.T) {
	conn := setupRetentionDB(t)
	now := time.Date(2026, 6, 1, 0, 10, 0, 0, time.UTC)

	seedEvent(t, conn, "old", now.AddDate(0, 0, -91))
	seedEvent(t, conn, "edge", now.AddDate(0, 0, -89))
	seedEvent(t, conn, "fresh", now.Add(-time.Hour))

	pruner := NewPruner(conn)
	pruner.now = func() time.Time { return now }

	pruned, errPrune := pruner.Prune(context.Background())
	if errPrune != nil {
		t.Fatalf("prune: %v", errPrune)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 pruned row, got %d", pruned)
	}

	var remaining []models.WebhookEvent
	if errFind := conn.Order("event_id").Find(&remaining).Error; errFind != nil {
		t.Fatalf("find: %v", errFind)
	}
	if len(remaining) != 2 || remaining[0].EventID != "edge" || remaining[1].EventID != "fresh" {
		t.Fatalf("unexpected survivors: %+v", remaining)
	}
}

func TestPruneIsIdempotent(t *testing.T) {
	conn := setupRetentionDB(t)
	now := time.Now().UTC()
	seedEvent(t, conn, "old", now.AddDate(0, 0, -120))

	pruner := NewPruner(conn)
	if _, errFirst := pruner.Prune(context.Background()); errFirst != nil {
		t.Fatalf("first prune: %v", errFirst)
	}
	pruned, errSecond := pruner.Prune(context.Background())
	if errSecond != nil {
		t.Fatalf("second prune: %v", errSecond)
	}
	if pruned != 0 {
		t.Fatalf("second prune should be a no-op, got %d", pruned)
	}
}
