// Package testutil opens throwaway databases for repository tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/storesync/internal/database"
)

// OpenDB returns a migrated database under t.TempDir() that is closed when
// the test ends.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), database.Options{LogLevel: logger.Silent}, zerolog.Nop())
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })
	return db.DB
}
