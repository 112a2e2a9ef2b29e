package database

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func TestOpen_MigratesTables(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(dbPath, Options{LogLevel: logger.Silent}, zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"sync_jobs", "checkpoints", "sync_events", "orders", "products"} {
		assert.True(t, db.DB.Migrator().HasTable(table), "table %s should exist", table)
	}
	assert.NoError(t, db.Ping())
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "a.db?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", DSN("a.db"))
	assert.Equal(t, "file:a.db?cache=shared&_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", DSN("file:a.db?cache=shared"))
}

func TestClose_ThenPingFails(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "closed.db")

	db, err := Open(dbPath, Options{LogLevel: logger.Silent}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	assert.Error(t, db.Ping())
}
