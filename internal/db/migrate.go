package db

import (
	"fmt"

	"github.com/refinement-bot/refinery/internal/models"
	"gorm.io/gorm"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Batch{},
		&models.WorkItem{},
		&models.RosterMember{},
		&models.Vote{},
		&models.Abstention{},
		&models.FinalEstimate{},
		&models.ReminderMarker{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
