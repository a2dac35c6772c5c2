// Package storagetest opens throwaway SQLite-backed stores for tests.
package storagetest

import (
	"fmt"
	"testing"

	"lvlup-backend/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
)

// New returns a migrated store over a private in-memory database. A single
// connection serializes access so shared-cache locking never surfaces.
func New(t testing.TB) *storage.GormStorage {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	st, err := storage.Open(sqlite.Open(dsn), zap.NewNop())
	require.NoError(t, err)

	sqlDB, err := st.DB().DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() { _ = st.Close() })
	return st
}
