package datastore

import (
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rainhead/lifelight-go/internal/errors"
)

// SQLiteStore implements Interface for SQLite.
type SQLiteStore struct {
	DataStore
	Path string
}

var _ Interface = (*SQLiteStore)(nil)

// New creates a store backed by the SQLite database at path. Pass
// ":memory:" for an in-memory store.
func New(path string) *SQLiteStore {
	return &SQLiteStore{Path: path}
}

// Open establishes the database connection and migrates the schema.
// File-backed stores run in WAL mode so readers are never blocked by
// the single writer.
func (store *SQLiteStore) Open() error {
	dsn := store.Path
	if dsn != ":memory:" && !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return errors.Newf("opening SQLite database: %w", err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("path", store.Path).
			Build()
	}

	store.DB = db
	return performAutoMigration(db)
}

// Close closes the underlying database connection.
func (store *SQLiteStore) Close() error {
	if store.DB == nil {
		return nil
	}
	sqlDB, err := store.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// performAutoMigration creates or updates the three entity tables and
// their indices.
func performAutoMigration(db *gorm.DB) error {
	if err := db.AutoMigrate(&Taxon{}, &Observation{}, &ObservationPhoto{}); err != nil {
		return errors.Newf("migrating schema: %w", err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}
