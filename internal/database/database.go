package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"supportdesk/internal/models"
)

// Connect opens the shared Postgres store and runs migrations. A single
// relational database is the source of truth for the whole engine.
func Connect(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := AutoMigrateAll(db); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return db, nil
}

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.SupportSession{},
		&models.Message{},
		&models.AvailabilitySlot{},
		&models.KnowledgeEntry{},
		&models.TypingFact{},
		&models.SupportSettings{},
	)
}
