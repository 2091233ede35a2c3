package store

import (
	"errors"
	"fmt"

	"github.com/fiffu/postwatch/lib/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrPersistenceUnavailable wraps every storage-layer failure so callers
	// can tell a broken database apart from an absent row.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	ErrNotFound               = errors.New("not found")
)

// Open opens the sqlite database at path and migrates the schema. WAL mode
// and a busy timeout let status readers run while a poll cycle is writing.
func Open(path string) (*gorm.DB, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrPersistenceUnavailable, path, err)
	}

	// A single connection serializes writers instead of surfacing "database is locked".
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.Watermark{},
		&models.DeliveryPolicy{},
		&models.DeliveryRecord{},
		&models.MonitorSettings{},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: migrate: %v", ErrPersistenceUnavailable, err)
	}
	return db, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrPersistenceUnavailable, op, err)
}
