package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/cbodonnell/tabletop/pkg/config"
	"github.com/cbodonnell/tabletop/pkg/game"
	"github.com/cbodonnell/tabletop/pkg/ledger"
	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/queue"
	"github.com/cbodonnell/tabletop/pkg/shm"
)

func storeOptions(cfg *config.Config) shm.Options {
	return shm.Options{
		Lock:         cfg.Sync.Lock,
		Notify:       cfg.Sync.Notify,
		PollInterval: cfg.Sync.PollInterval,
	}
}

// newEngine builds the engine every process of a run shares. The coordinator
// and the handlers must agree on the rules, so both derive them from the
// same configuration.
func newEngine(cfg *config.Config, store *shm.Store, logQueue queue.Queue) (*game.Engine, error) {
	kind, ok := shm.ParseVariantKind(cfg.Game.Variant)
	if !ok {
		return nil, fmt.Errorf("unknown game variant %q", cfg.Game.Variant)
	}
	return game.NewEngine(game.NewEngineOptions{
		Store:    store,
		LogQueue: logQueue,
		Variants: []game.Variant{
			game.NewDiceVariant(cfg.Game.WinningScore, game.RandomRoller),
			game.NewGridVariant(game.NewGridVariantOptions{
				CorrectPoints: cfg.Game.CorrectPoints,
				WrongPenalty:  cfg.Game.WrongPenalty,
				Clues:         cfg.Game.GridClues,
			}),
		},
		Rules: game.Rules{
			Variant:    kind,
			MinPlayers: cfg.Game.MinPlayers,
			MaxPlayers: cfg.Game.MaxPlayers,
		},
	}), nil
}

// loadScores merges the scores file into the shared ledger. A file with more
// names than the ledger holds is loaded as far as it fits.
func loadScores(scores *ledger.Ledger, path string) error {
	if _, err := scores.Load(path); err != nil {
		if !errors.Is(err, ledger.ErrLedgerFull) {
			return fmt.Errorf("failed to load scores: %w", err)
		}
		log.Warn("Score ledger is full, some rows of %s were not loaded", path)
	}
	return nil
}

func setupLogger(level string, name string) error {
	parsedLogLevel, err := log.ParseLogLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	log.SetDefaultLogger(log.New(os.Stdout, name, parsedLogLevel))
	return nil
}
