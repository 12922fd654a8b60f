package repository

import (
	"context"
	"testing"

	"queuebot/events"
	"queuebot/repository/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuildConfigRepository_GetSet(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	repo := NewGuildConfigRepository(testDB.DB, testutil.TestDefaults)
	ctx := context.Background()

	t.Run("missing guild returns nil", func(t *testing.T) {
		config, err := repo.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, config)
	})

	t.Run("set then get round trips the record", func(t *testing.T) {
		config := testutil.CreateTestGuildConfigWithGrace("100", 60, "c1", "c2")
		config.CommandPrefix = "q!"
		config.Color = 0x123456

		require.NoError(t, repo.Set(ctx, config))
		assert.False(t, config.UpdatedAt.IsZero())

		loaded, err := repo.Get(ctx, "100")
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, 60, loaded.GracePeriodSeconds)
		assert.Equal(t, "q!", loaded.CommandPrefix)
		assert.Equal(t, 0x123456, loaded.Color)
		assert.Equal(t, []string{"c1", "c2"}, loaded.TrackedChannelIDs)
	})

	t.Run("set overwrites", func(t *testing.T) {
		config := testutil.CreateTestGuildConfig("200", "a")
		require.NoError(t, repo.Set(ctx, config))

		config.Untrack("a")
		config.Track("b")
		require.NoError(t, repo.Set(ctx, config))

		loaded, err := repo.Get(ctx, "200")
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, loaded.TrackedChannelIDs)
	})
}

func TestGuildConfigRepository_DeleteAndEntries(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	repo := NewGuildConfigRepository(testDB.DB, testutil.TestDefaults)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, testutil.CreateTestGuildConfig("1", "x")))
	require.NoError(t, repo.Set(ctx, testutil.CreateTestGuildConfig("2")))
	require.NoError(t, repo.Set(ctx, testutil.CreateTestGuildConfig("3", "y", "z")))

	require.NoError(t, repo.Delete(ctx, "2"))
	require.NoError(t, repo.Delete(ctx, "never-existed"))

	entries, err := repo.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "1", entries[0].GuildID)
	assert.Equal(t, "3", entries[1].GuildID)
	assert.Equal(t, []string{"y", "z"}, entries[1].TrackedChannelIDs)
}

func TestGuildConfigRepository_EntriesSkipsCorruptRecords(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	repo := NewGuildConfigRepository(testDB.DB, testutil.TestDefaults)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, testutil.CreateTestGuildConfig("good")))
	_, err := testDB.DB.Exec(ctx,
		`INSERT INTO guild_configs (guild_id, record) VALUES ($1, $2)`,
		"bad", []string{"9999", "!", "#000000"})
	require.NoError(t, err)

	entries, err := repo.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "good", entries[0].GuildID)

	_, err = repo.Get(ctx, "bad")
	assert.Error(t, err)
}

func TestUnitOfWork_CommitAndRollback(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	factory := NewUnitOfWorkFactory(testDB.DB, events.NewBus(), testutil.TestDefaults)
	ctx := context.Background()

	uow := factory.Create()
	require.NoError(t, uow.Begin(ctx))
	require.NoError(t, uow.GuildConfigRepository().Set(ctx, testutil.CreateTestGuildConfig("committed")))
	require.NoError(t, uow.Commit())
	require.NoError(t, uow.Rollback())

	uow = factory.Create()
	require.NoError(t, uow.Begin(ctx))
	require.NoError(t, uow.GuildConfigRepository().Set(ctx, testutil.CreateTestGuildConfig("rolled-back")))
	require.NoError(t, uow.Rollback())

	repo := NewGuildConfigRepository(testDB.DB, testutil.TestDefaults)

	committed, err := repo.Get(ctx, "committed")
	require.NoError(t, err)
	assert.NotNil(t, committed)

	rolledBack, err := repo.Get(ctx, "rolled-back")
	require.NoError(t, err)
	assert.Nil(t, rolledBack)
}

func TestUnitOfWork_RepositoryBeforeBeginPanics(t *testing.T) {
	factory := NewUnitOfWorkFactory(nil, events.NewBus(), testutil.TestDefaults)
	uow := factory.Create()

	assert.Panics(t, func() {
		uow.GuildConfigRepository()
	})
	assert.Error(t, uow.Commit())
	assert.NoError(t, uow.Rollback())
}
