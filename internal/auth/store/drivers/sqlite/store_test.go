package sqlite_test

import (
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/miniokta/internal/auth/store"
	"github.com/aussiebroadwan/miniokta/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/miniokta/internal/auth/store/storetest"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, newTestStore)
}

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.ApplyMigrations())
}
