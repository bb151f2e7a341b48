package game

import (
	"context"
	"time"

	"github.com/cbodonnell/tabletop/pkg/game/types"
	"github.com/cbodonnell/tabletop/pkg/log"
)

// Broadcaster delivers best-effort notifications to connected slots. Sends
// never block; a slot that is not listening misses the update.
type Broadcaster interface {
	// YourTurn notifies the slot now holding the turn.
	YourTurn(slot int, snap *types.GameSnapshot)
	// StateChanged sends snap to every Active slot except exclude.
	StateChanged(exclude int, snap *types.GameSnapshot)
	// GameStarted notifies every Active slot that a game began.
	GameStarted(snap *types.GameSnapshot)
	// GameOver notifies every connected slot that the game ended.
	GameOver(snap *types.GameSnapshot)
	// PlayerLeft notifies every connected slot except slot that it left.
	PlayerLeft(slot int, name string, snap *types.GameSnapshot)
}

// SchedulerObserver receives scheduler events, e.g. for metrics.
type SchedulerObserver interface {
	TurnRepaired()
	GameSettled()
}

// Scheduler is the periodic consistency sweep over the shared game. Turns
// are normally passed by the mover's own handler; the scheduler repairs the
// turn after disconnects, ends games and hands each result to the settlement
// writer exactly once.
type Scheduler struct {
	engine         *Engine
	broadcaster    Broadcaster
	settlementChan chan<- *types.Settlement
	observer       SchedulerObserver
	interval       time.Duration
	resetDelay     time.Duration
}

// NewSchedulerOptions contains options for creating a new Scheduler.
type NewSchedulerOptions struct {
	Engine         *Engine
	Broadcaster    Broadcaster
	SettlementChan chan<- *types.Settlement
	Observer       SchedulerObserver
	Interval       time.Duration
	// ResetDelay is how long a finished game stays on display before the
	// next one is prepared. Zero resets on the next sweep.
	ResetDelay time.Duration
}

func NewScheduler(opts NewSchedulerOptions) *Scheduler {
	interval := opts.Interval
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &Scheduler{
		engine:         opts.Engine,
		broadcaster:    opts.Broadcaster,
		settlementChan: opts.SettlementChan,
		observer:       opts.Observer,
		interval:       interval,
		resetDelay:     opts.ResetDelay,
	}
}

// Start runs sweeps until ctx is done. Between sweeps it sleeps for at most
// the interval, waking early when the game section changes.
func (s *Scheduler) Start(ctx context.Context) {
	var resetAt time.Time
	seen := s.engine.Signal().Load()
	for {
		if ctx.Err() != nil {
			return
		}

		if s.Tick(ctx) {
			resetAt = time.Now().Add(s.resetDelay)
		}
		if !resetAt.IsZero() && !time.Now().Before(resetAt) {
			resetAt = time.Time{}
			s.reset()
		}

		seen = s.engine.Signal().Wait(ctx, seen, s.interval)
	}
}

// Tick runs one sweep and delivers its notifications. It reports whether a
// game was settled.
func (s *Scheduler) Tick(ctx context.Context) bool {
	res := s.engine.Sweep()
	if res.Repaired {
		log.Debug("Scheduler moved the turn to slot %d", res.Snapshot.CurrentTurn)
		if s.observer != nil {
			s.observer.TurnRepaired()
		}
		if s.broadcaster != nil {
			s.broadcaster.YourTurn(res.Snapshot.CurrentTurn, res.Snapshot)
			s.broadcaster.StateChanged(res.Snapshot.CurrentTurn, res.Snapshot)
		}
	}
	if res.Finished && s.broadcaster != nil {
		s.broadcaster.GameOver(res.Snapshot)
	}
	if res.Settlement == nil {
		return false
	}

	log.Info("Game %s finished, winner slot %d", res.Settlement.GameID, res.Settlement.Winner)
	if s.observer != nil {
		s.observer.GameSettled()
	}
	if s.settlementChan != nil {
		select {
		case s.settlementChan <- res.Settlement:
		case <-ctx.Done():
			log.Warn("Dropped settlement of game %s at shutdown", res.Settlement.GameID)
		}
	}
	return true
}

func (s *Scheduler) reset() {
	res := s.engine.Reset()
	if !res.Reset {
		return
	}
	if !res.Started {
		log.Info("Waiting for players for the next game")
		return
	}
	log.Info("Next game %s started", res.Snapshot.GameID)
	if s.broadcaster != nil {
		s.broadcaster.GameStarted(res.Snapshot)
		s.broadcaster.YourTurn(res.Snapshot.CurrentTurn, res.Snapshot)
	}
}
