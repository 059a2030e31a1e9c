package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_AppliedOnce(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "migrate_test.db")

	store, err := NewStorage(dbPath)
	require.NoError(t, err)

	applied, err := store.getAppliedMigrations()
	require.NoError(t, err)
	assert.Len(t, applied, len(allMigrations))
	require.NoError(t, store.Close())

	// Reopening the same file must not re-run anything.
	store, err = NewStorage(dbPath)
	require.NoError(t, err)
	defer store.Close()

	var count int
	err = store.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(allMigrations), count)
}

func TestMigrations_VersionsAreOrderedAndUnique(t *testing.T) {
	seen := make(map[int]bool)
	last := 0
	for _, m := range allMigrations {
		assert.False(t, seen[m.Version], "duplicate migration version %d", m.Version)
		assert.Greater(t, m.Version, last, "migrations out of order at %d", m.Version)
		seen[m.Version] = true
		last = m.Version
	}
}
