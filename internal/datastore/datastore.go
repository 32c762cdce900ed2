// Package datastore opens the database and owns schema migration for the
// alertwarden tables.
package datastore

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/alertwarden/alertwarden/internal/conf"
	"github.com/alertwarden/alertwarden/internal/datastore/entities"
)

// Open connects to the configured database and migrates the schema.
func Open(settings *conf.DatabaseSettings) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch settings.Driver {
	case "sqlite":
		dialector = sqlite.Open(settings.Path)
	case "mysql":
		dialector = mysql.Open(settings.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", settings.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", settings.Driver, err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the alertwarden tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&entities.AlertRule{},
		&entities.Alert{},
		&entities.NotificationChannel{},
		&entities.EscalationPolicy{},
		&entities.AlertRuleChannel{},
		&entities.AlertNotification{},
	); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	return nil
}
