package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "dice", cfg.Game.Variant)
	assert.Equal(t, 3, cfg.Game.MinPlayers)
	assert.Equal(t, 5, cfg.Game.MaxPlayers)
	assert.Equal(t, 100, cfg.Game.WinningScore)
	assert.Equal(t, 50*time.Millisecond, cfg.Scheduler.Interval)
	assert.Equal(t, "/dev/shm/tabletop.state", cfg.SHM.Path())
	assert.Equal(t, "/tmp/tabletop_pipe_", cfg.Channels.Base())
}

func TestLoad_fileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tabletop.yaml")
	contents := `
game:
  variant: grid
  min_players: 2
scheduler:
  interval: 20ms
sync:
  lock: spin
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	t.Setenv("TABLETOP_GAME_WINNING_SCORE", "50")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "grid", cfg.Game.Variant)
	assert.Equal(t, 2, cfg.Game.MinPlayers)
	assert.Equal(t, 50, cfg.Game.WinningScore)
	assert.Equal(t, 20*time.Millisecond, cfg.Scheduler.Interval)
	assert.Equal(t, "spin", cfg.Sync.Lock)
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "too many players", mutate: func(c *Config) { c.Game.MaxPlayers = 6 }},
		{name: "min above max", mutate: func(c *Config) { c.Game.MinPlayers = 4; c.Game.MaxPlayers = 3 }},
		{name: "unknown variant", mutate: func(c *Config) { c.Game.Variant = "chess" }},
		{name: "unknown lock", mutate: func(c *Config) { c.Sync.Lock = "semaphore" }},
		{name: "unknown notify", mutate: func(c *Config) { c.Sync.Notify = "condvar" }},
		{name: "bad shm name", mutate: func(c *Config) { c.SHM.Name = "a/b" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
