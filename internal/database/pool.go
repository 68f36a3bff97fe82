package database

import (
	"fmt"

	"tasklife/internal/config"
	"tasklife/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Connect opens the configured database and applies the pool settings.
// sqlite is used for local development and tests, postgres everywhere else.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.Database.Name)
	case "postgres":
		dialector = postgres.Open(cfg.GetDatabaseDSN())
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.Database.ConnMaxIdleTime)

	return db, nil
}

// Migrate creates or updates the schema for every lifecycle entity,
// including the unique (series_id, occurrence_index) index that guards
// occurrence idempotency.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Task{},
		&models.TaskSeries{},
		&models.RejectionRecord{},
		&models.GroupMembership{},
	)
}
