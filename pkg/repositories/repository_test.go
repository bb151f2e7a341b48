package repositories

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cbodonnell/tabletop/pkg/repositories/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gameResult(id string, seq uint64, finished time.Time) *models.GameResult {
	return &models.GameResult{
		ID:         id,
		Seq:        seq,
		Variant:    "dice",
		Winner:     1,
		WinnerName: "bob",
		FinishedAt: finished,
		Players: []models.PlayerResult{
			{Slot: 0, Name: "alice", Score: 40, Rolls: 9},
			{Slot: 1, Name: "bob", Score: 103, Rolls: 9, Won: true},
			{Slot: 2, Name: "carol", Score: 0, Rolls: 8},
		},
	}
}

func TestSQLiteRepository(t *testing.T) {
	ctx := context.Background()
	repo, err := NewRepository(ctx, "sqlite://"+filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	require.NotNil(t, repo)
	defer repo.Close(ctx)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := gameResult("2e1c9d7a-2c57-4a8e-8d1b-1f0c6f3f6a01", 1, base)
	second := gameResult("9a0b6c3e-58b2-4c8f-a0a5-6d7b2e9f1c02", 2, base.Add(time.Minute))
	second.Variant = "grid"
	second.Players[0].Correct = 4
	second.Players[0].Incorrect = 2

	require.NoError(t, repo.SaveGameResult(ctx, first))
	require.NoError(t, repo.SaveGameResult(ctx, second))
	// Settlements may be retried.
	require.NoError(t, repo.SaveGameResult(ctx, first))

	results, err := repo.ListGameResults(ctx, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, second, results[0])
	assert.Equal(t, first, results[1])

	results, err = repo.ListGameResults(ctx, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, second.ID, results[0].ID)

	got, err := repo.GetGameResult(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	_, err = repo.GetGameResult(ctx, "missing")
	assert.True(t, IsNotFound(err))
	assert.EqualError(t, err, "game missing not found")
}

func TestSQLiteRepository_reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	repo, err := NewSQLiteRepository(ctx, path)
	require.NoError(t, err)
	result := gameResult("5f7c1a2b-0e3d-4f6a-9b8c-7d6e5f4a3b03", 1, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, repo.SaveGameResult(ctx, result))
	require.NoError(t, repo.Close(ctx))

	// Migrations run again on every open.
	repo, err = NewSQLiteRepository(ctx, path)
	require.NoError(t, err)
	defer repo.Close(ctx)
	got, err := repo.GetGameResult(ctx, result.ID)
	require.NoError(t, err)
	assert.Equal(t, result, got)
}

func TestNewRepository(t *testing.T) {
	ctx := context.Background()

	repo, err := NewRepository(ctx, "")
	assert.NoError(t, err)
	assert.Nil(t, repo)

	_, err = NewRepository(ctx, "mysql://localhost/games")
	assert.ErrorContains(t, err, "unsupported database url")
}

func TestMigrationScripts(t *testing.T) {
	for _, dialect := range []string{"sqlite", "postgres"} {
		scripts, err := migrationScripts(dialect)
		require.NoError(t, err)
		require.NotEmpty(t, scripts)
		assert.Contains(t, scripts[0], "CREATE TABLE IF NOT EXISTS games")
	}
}
