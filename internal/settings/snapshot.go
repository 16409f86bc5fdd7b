// Package settings holds DB-backed runtime configuration behind an
// in-memory snapshot refreshed at boot.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vitalscope/vitalscope-business/internal/models"
	"gorm.io/gorm"
)

// snapshot holds the in-memory settings values.
type snapshot struct {
	updatedAt time.Time
	values    map[string]json.RawMessage
}

// globalSnapshot stores the latest snapshot atomically.
var globalSnapshot atomic.Value // stores snapshot

func init() {
	globalSnapshot.Store(snapshot{values: map[string]json.RawMessage{}})
}

// Refresh reloads all settings rows from the database into the snapshot.
// Required at process startup; values read before the first refresh fall
// back to compile-time defaults.
func Refresh(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return errors.New("settings: nil db")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var rows []models.Setting
	if errFind := conn.WithContext(ctx).
		Select("key", "value", "updated_at").
		Order("key ASC").
		Find(&rows).Error; errFind != nil {
		return errFind
	}

	values := make(map[string]json.RawMessage, len(rows))
	maxUpdatedAt := time.Time{}
	for _, row := range rows {
		key := strings.TrimSpace(row.Key)
		if key == "" {
			continue
		}
		copied := make([]byte, len(row.Value))
		copy(copied, row.Value)
		values[key] = copied
		if rowUpdatedAt := row.UpdatedAt.UTC(); rowUpdatedAt.After(maxUpdatedAt) {
			maxUpdatedAt = rowUpdatedAt
		}
	}

	globalSnapshot.Store(snapshot{updatedAt: maxUpdatedAt, values: values})
	return nil
}

// Value returns a copy of the raw value for a key.
func Value(key string) (json.RawMessage, bool) {
	current := load()
	val, ok := current.values[strings.TrimSpace(key)]
	if !ok {
		return nil, false
	}
	copied := make([]byte, len(val))
	copy(copied, val)
	return copied, true
}

// IntValue reads a key as an integer, falling back to def on absence or a
// non-numeric value.
func IntValue(key string, def int) int {
	raw, ok := Value(key)
	if !ok {
		return def
	}
	text := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	parsed, errParse := strconv.Atoi(text)
	if errParse != nil {
		return def
	}
	return parsed
}

// UpdatedAt returns the newest row timestamp seen by the last refresh.
func UpdatedAt() time.Time {
	return load().updatedAt
}

func load() snapshot {
	v := globalSnapshot.Load()
	current, ok := v.(snapshot)
	if !ok || current.values == nil {
		return snapshot{values: map[string]json.RawMessage{}}
	}
	return current
}
