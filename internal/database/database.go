package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/storesync/internal/entities"
)

type Database struct {
	DB *gorm.DB
}

// Options tunes how the sqlite connection is opened.
type Options struct {
	LogLevel     logger.LogLevel
	MaxOpenConns int
}

func NewDatabase(dbPath string, log zerolog.Logger) (*Database, error) {
	return Open(dbPath, Options{LogLevel: logger.Warn}, log)
}

// Open connects to the primary database and migrates every table owned by
// the sync engine: normalized records, jobs, checkpoints and batch events.
func Open(dbPath string, opts Options, log zerolog.Logger) (*Database, error) {
	db, err := OpenGorm(dbPath, opts, log)
	if err != nil {
		return nil, err
	}

	// Auto-migrate all entities
	err = db.AutoMigrate(
		&entities.SyncJob{},
		&entities.Checkpoint{},
		&entities.SyncEvent{},
		&entities.Order{},
		&entities.Product{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("database initialized")

	return &Database{DB: db}, nil
}

// OpenGorm opens a sqlite connection without running any migrations.
func OpenGorm(dbPath string, opts Options, log zerolog.Logger) (*gorm.DB, error) {
	if opts.LogLevel == 0 {
		opts.LogLevel = logger.Warn
	}
	db, err := gorm.Open(sqlite.Open(DSN(dbPath)), &gorm.Config{
		Logger: logger.Default.LogMode(opts.LogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access database handle: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Debug().Str("path", dbPath).Msg("sqlite connection opened")
	return db, nil
}

// DSN appends the pragmas needed for concurrent writers to a sqlite path.
func DSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
}

func (d *Database) Ping() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
