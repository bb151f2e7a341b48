package workers

import (
	"context"
	"errors"
	"time"

	"github.com/cbodonnell/tabletop/pkg/game"
	"github.com/cbodonnell/tabletop/pkg/game/types"
	"github.com/cbodonnell/tabletop/pkg/ledger"
	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/repositories"
	"github.com/cbodonnell/tabletop/pkg/repositories/models"
)

// SettlementWorker is the only writer of the score ledger file and the game
// history. It applies each finished game to the shared ledger, rewrites the
// ledger file and stores the game in the repository.
type SettlementWorker struct {
	ledger         *ledger.Ledger
	scoresPath     string
	repository     repositories.Repository
	settlementChan <-chan *types.Settlement
	saveTimeout    time.Duration
}

type NewSettlementWorkerOptions struct {
	Ledger     *ledger.Ledger
	ScoresPath string
	// Repository may be nil when history is disabled.
	Repository     repositories.Repository
	SettlementChan <-chan *types.Settlement
	SaveTimeout    time.Duration
}

// NewSettlementWorker creates a new SettlementWorker.
// The worker processes settlements from the scheduler until the channel is
// closed or the context is done, then settles whatever is still buffered and
// saves the ledger one last time.
func NewSettlementWorker(opts NewSettlementWorkerOptions) *SettlementWorker {
	timeout := opts.SaveTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SettlementWorker{
		ledger:         opts.Ledger,
		scoresPath:     opts.ScoresPath,
		repository:     opts.Repository,
		settlementChan: opts.SettlementChan,
		saveTimeout:    timeout,
	}
}

func (w *SettlementWorker) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			w.saveLedger()
			return
		case s, ok := <-w.settlementChan:
			if !ok {
				w.saveLedger()
				return
			}
			w.settle(s)
		}
	}
}

func (w *SettlementWorker) drain() {
	for {
		select {
		case s, ok := <-w.settlementChan:
			if !ok {
				return
			}
			w.settle(s)
		default:
			return
		}
	}
}

func (w *SettlementWorker) settle(s *types.Settlement) {
	if err := w.ledger.Record(game.LedgerResults(s)); err != nil {
		if errors.Is(err, ledger.ErrLedgerFull) {
			log.Warn("Score ledger is full, new players of game %s are not recorded", s.GameID)
		} else {
			log.Error("Failed to record game %s: %v", s.GameID, err)
		}
	}
	w.saveLedger()

	if w.repository == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.saveTimeout)
	defer cancel()
	if err := w.repository.SaveGameResult(ctx, GameResultFromSettlement(s)); err != nil {
		log.Error("Failed to save game %s: %v", s.GameID, err)
	}
}

func (w *SettlementWorker) saveLedger() {
	if w.scoresPath == "" {
		return
	}
	if err := w.ledger.Save(w.scoresPath); err != nil {
		log.Error("Failed to save scores to %s: %v", w.scoresPath, err)
	}
}

// GameResultFromSettlement converts a settlement into a history row.
func GameResultFromSettlement(s *types.Settlement) *models.GameResult {
	result := &models.GameResult{
		ID:         s.GameID,
		Seq:        s.Seq,
		Variant:    s.Variant,
		Winner:     s.Winner,
		WinnerName: s.WinnerName,
		FinishedAt: s.FinishedAt,
		Players:    make([]models.PlayerResult, 0, len(s.Players)),
	}
	for _, p := range s.Players {
		result.Players = append(result.Players, models.PlayerResult{
			Slot:      p.Slot,
			Name:      p.Name,
			Score:     p.Score,
			Correct:   p.Correct,
			Incorrect: p.Incorrect,
			Rolls:     p.Rolls,
			Won:       p.Won,
		})
	}
	return result
}
