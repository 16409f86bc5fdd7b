package db

import (
	"fmt"

	"github.com/vitalscope/vitalscope-business/internal/models"
	"gorm.io/gorm"
)

// Migrate applies schema migrations for all persisted models.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errMigrate := conn.AutoMigrate(
		&models.UserSubscription{},
		&models.UsageRecord{},
		&models.ReportChatCounter{},
		&models.WebhookEvent{},
		&models.Setting{},
	); errMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errMigrate)
	}
	return nil
}
