package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrator_PostgresLifecycle(t *testing.T) {
	store := openRawPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	known, err := readMigrations(embeddedMigrations)
	require.NoError(t, err)
	latest := known[len(known)-1].version

	requireStatus := func(step string, wantVersion int64, wantCount int) {
		t.Helper()
		version, count, err := store.MigrationStatus(ctx)
		require.NoError(t, err, step)
		assert.Equal(t, wantVersion, version, step)
		assert.Equal(t, wantCount, count, step)
	}

	require.NoError(t, store.MigrateDown(ctx, len(known)+10))
	requireStatus("reset", 0, 0)

	require.NoError(t, store.MigrateUp(ctx, 1))
	requireStatus("up one", 1, 1)

	require.NoError(t, store.MigrateUp(ctx, 0))
	requireStatus("up all", latest, len(known))

	require.NoError(t, store.MigrateUp(ctx, 0))
	requireStatus("repeated up", latest, len(known))

	require.NoError(t, store.MigrateDown(ctx, 0))
	requireStatus("down default step", latest-1, len(known)-1)

	infos, err := store.Migrations(ctx)
	require.NoError(t, err)
	require.Len(t, infos, len(known))
	assert.False(t, infos[len(infos)-1].Applied)
	assert.True(t, infos[0].Applied)
	assert.False(t, infos[0].AppliedAt.IsZero())

	require.NoError(t, store.MigrateDown(ctx, len(known)))
	requireStatus("down rest", 0, 0)

	// откат пустой схемы ничего не делает
	require.NoError(t, store.MigrateDown(ctx, 1))
}

func TestMigrator_NilStoreAndUnknownDirection(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var nilStore *Store
	assert.ErrorIs(t, nilStore.MigrateUp(ctx, 0), errStoreNotInitialized)
	assert.ErrorIs(t, nilStore.MigrateDown(ctx, 1), errStoreNotInitialized)
	_, _, err := nilStore.MigrationStatus(ctx)
	assert.ErrorIs(t, err, errStoreNotInitialized)
	_, err = nilStore.Migrations(ctx)
	assert.ErrorIs(t, err, errStoreNotInitialized)

	store := &Store{db: nil}
	assert.ErrorIs(t, store.migrate(ctx, migrationDirection("sideways"), 0), errStoreNotInitialized)

	raw := openRawPostgresStoreForIntegrationTest(t)
	assert.ErrorContains(t, raw.migrate(ctx, migrationDirection("sideways"), 0), "unsupported migration direction")
}
