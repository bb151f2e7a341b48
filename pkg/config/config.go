package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cbodonnell/tabletop/pkg/game/constants"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. TABLETOP_GAME_VARIANT.
const EnvPrefix = "TABLETOP"

type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	SHM       SHMConfig       `mapstructure:"shm"`
	Channels  ChannelsConfig  `mapstructure:"channels"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Game      GameConfig      `mapstructure:"game"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Files     FilesConfig     `mapstructure:"files"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Admin     AdminConfig     `mapstructure:"admin"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type SHMConfig struct {
	Dir  string `mapstructure:"dir"`
	Name string `mapstructure:"name"`
}

// Path returns the backing file of the shared state region.
func (c SHMConfig) Path() string {
	return filepath.Join(c.Dir, c.Name+".state")
}

type ChannelsConfig struct {
	Dir    string `mapstructure:"dir"`
	Prefix string `mapstructure:"prefix"`
}

// Base returns the path prefix every slot FIFO name is derived from.
func (c ChannelsConfig) Base() string {
	return filepath.Join(c.Dir, c.Prefix)
}

type SyncConfig struct {
	Lock         string        `mapstructure:"lock"`   // flock, futex, spin
	Notify       string        `mapstructure:"notify"` // futex, poll
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type GameConfig struct {
	Variant       string        `mapstructure:"variant"` // dice, grid
	MinPlayers    int           `mapstructure:"min_players"`
	MaxPlayers    int           `mapstructure:"max_players"`
	WinningScore  int           `mapstructure:"winning_score"`
	CorrectPoints int           `mapstructure:"correct_points"`
	WrongPenalty  int           `mapstructure:"wrong_penalty"`
	GridClues     int           `mapstructure:"grid_clues"`
	ResetDelay    time.Duration `mapstructure:"reset_delay"`
}

type SchedulerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type FilesConfig struct {
	Log    string `mapstructure:"log"`
	Scores string `mapstructure:"scores"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type AdminConfig struct {
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("shm.dir", "/dev/shm")
	v.SetDefault("shm.name", "tabletop")
	v.SetDefault("channels.dir", "/tmp")
	v.SetDefault("channels.prefix", "tabletop_pipe_")
	v.SetDefault("sync.lock", "flock")
	v.SetDefault("sync.notify", "futex")
	v.SetDefault("sync.poll_interval", 5*time.Millisecond)
	v.SetDefault("game.variant", "dice")
	v.SetDefault("game.min_players", constants.MinPlayers)
	v.SetDefault("game.max_players", constants.MaxSlots)
	v.SetDefault("game.winning_score", constants.WinningScore)
	v.SetDefault("game.correct_points", constants.CorrectPoints)
	v.SetDefault("game.wrong_penalty", constants.WrongPenalty)
	v.SetDefault("game.grid_clues", constants.GridClues)
	v.SetDefault("game.reset_delay", 3*time.Second)
	v.SetDefault("scheduler.interval", 50*time.Millisecond)
	v.SetDefault("files.log", "game.log")
	v.SetDefault("files.scores", "scores.txt")
	v.SetDefault("database.url", "sqlite://tabletop.db")
	v.SetDefault("admin.addr", "127.0.0.1:8890")
}

// Load reads configuration from an optional .env file, an optional YAML file
// at path and TABLETOP_* environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and strategy names.
func (c *Config) Validate() error {
	var errs []error
	if c.Game.MinPlayers < 1 || c.Game.MinPlayers > c.Game.MaxPlayers {
		errs = append(errs, fmt.Errorf("game.min_players must be between 1 and game.max_players, got %d", c.Game.MinPlayers))
	}
	if c.Game.MaxPlayers < 1 || c.Game.MaxPlayers > constants.MaxSlots {
		errs = append(errs, fmt.Errorf("game.max_players must be between 1 and %d, got %d", constants.MaxSlots, c.Game.MaxPlayers))
	}
	switch c.Game.Variant {
	case "dice", "grid":
	default:
		errs = append(errs, fmt.Errorf("unknown game.variant %q", c.Game.Variant))
	}
	if c.Game.GridClues < 0 || c.Game.GridClues >= constants.BoardCells {
		errs = append(errs, fmt.Errorf("game.grid_clues must be in [0,%d), got %d", constants.BoardCells, c.Game.GridClues))
	}
	switch c.Sync.Lock {
	case "flock", "futex", "spin":
	default:
		errs = append(errs, fmt.Errorf("unknown sync.lock %q", c.Sync.Lock))
	}
	switch c.Sync.Notify {
	case "futex", "poll":
	default:
		errs = append(errs, fmt.Errorf("unknown sync.notify %q", c.Sync.Notify))
	}
	if c.Sync.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("sync.poll_interval must be positive"))
	}
	if c.Scheduler.Interval <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.interval must be positive"))
	}
	if c.SHM.Name == "" || strings.ContainsRune(c.SHM.Name, '/') {
		errs = append(errs, fmt.Errorf("shm.name must be a non-empty file name"))
	}
	return errors.Join(errs...)
}
