package game

import (
	"fmt"
	"strings"
	"time"

	"github.com/cbodonnell/tabletop/pkg/game/constants"
	"github.com/cbodonnell/tabletop/pkg/game/types"
	"github.com/cbodonnell/tabletop/pkg/lock"
	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/queue"
	"github.com/cbodonnell/tabletop/pkg/shm"
	"github.com/google/uuid"
)

// Rules are the per-run game settings. Every process attached to a region
// must use the same rules.
type Rules struct {
	Variant    shm.VariantKind
	MinPlayers int
	MaxPlayers int
}

// Engine performs every game operation against the shared state. All reads
// and writes of the game section happen under its lock; log lines produced
// inside a critical section are enqueued after the lock is released.
type Engine struct {
	mu       lock.Mutex
	signal   lock.Signal
	game     *shm.GameSection
	logQueue queue.Queue
	variants map[shm.VariantKind]Variant
	rules    Rules
	now      func() time.Time
}

// NewEngineOptions contains options for creating a new Engine.
type NewEngineOptions struct {
	Store    *shm.Store
	LogQueue queue.Queue
	Variants []Variant
	Rules    Rules
	// Now defaults to time.Now.
	Now func() time.Time
}

func NewEngine(opts NewEngineOptions) *Engine {
	variants := make(map[shm.VariantKind]Variant, len(opts.Variants))
	for _, v := range opts.Variants {
		variants[v.Kind()] = v
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	rules := opts.Rules
	if rules.MaxPlayers <= 0 || rules.MaxPlayers > constants.MaxSlots {
		rules.MaxPlayers = constants.MaxSlots
	}
	if rules.MinPlayers <= 0 {
		rules.MinPlayers = constants.MinPlayers
	}
	return &Engine{
		mu:       opts.Store.GameLock(),
		signal:   opts.Store.GameSignal(),
		game:     opts.Store.Game(),
		logQueue: opts.LogQueue,
		variants: variants,
		rules:    rules,
		now:      now,
	}
}

// Signal is advanced on every change to the game section.
func (e *Engine) Signal() lock.Signal {
	return e.signal
}

// Rules returns the rules the engine was created with.
func (e *Engine) Rules() Rules {
	return e.rules
}

// critical runs fn under the game lock, then enqueues the collected log lines
// and wakes waiters if fn reported a change.
func (e *Engine) critical(fn func(g *shm.GameSection, ev *events) bool) {
	ev := &events{}
	e.mu.Lock()
	changed := fn(e.game, ev)
	e.mu.Unlock()

	if changed {
		e.signal.Broadcast()
	}
	at := e.now()
	for _, line := range ev.lines {
		if err := e.logQueue.Enqueue(line, at); err != nil {
			log.Debug("Dropped event log line %q: %v", line, err)
		}
	}
}

type events struct {
	lines []string
}

func (ev *events) add(format string, args ...interface{}) {
	ev.lines = append(ev.lines, fmt.Sprintf(format, args...))
}

// Init writes the configured variant into a freshly created region.
func (e *Engine) Init() {
	e.critical(func(g *shm.GameSection, ev *events) bool {
		g.Variant = e.rules.Variant
		ev.add("Server started: %s game, %d-%d players", g.Variant, e.rules.MinPlayers, e.rules.MaxPlayers)
		return true
	})
}

func (e *Engine) validSlot(slot int) bool {
	return slot >= 0 && slot < e.rules.MaxPlayers
}

// JoinResult is returned by Join.
type JoinResult struct {
	// Started is true when this join started the game.
	Started bool
	// Missing is how many more players are needed before the game starts.
	Missing  int
	Snapshot *types.GameSnapshot
}

// Join records name in slot and starts the game once enough players wait.
func (e *Engine) Join(slot int, name string) (*JoinResult, error) {
	name = sanitizeName(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if !e.validSlot(slot) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
	board := e.prepareBoard()

	var res *JoinResult
	var err error
	e.critical(func(g *shm.GameSection, ev *events) bool {
		p := g.Player(slot)
		if p.State != shm.PlayerDisconnected {
			err = ErrSlotTaken
			return false
		}
		if p.Reserved && g.Phase != shm.PhaseAwaitingPlayers {
			// Slots are never reused while the game that claimed them runs.
			err = ErrSlotTaken
			return false
		}
		p.SetName(name)
		p.State = shm.PlayerWaiting
		p.Score, p.Correct, p.Incorrect, p.Rolls = 0, 0, 0, 0
		p.Reserved = true
		p.Counted = false
		g.NumPlayers++
		ev.add("Player %d joined: %s (Total: %d players)", slot+1, name, g.NumPlayers)

		res = &JoinResult{}
		if g.Phase == shm.PhaseAwaitingPlayers {
			if int(g.NumPlayers) >= e.rules.MinPlayers {
				e.start(g, board, ev)
				res.Started = true
			} else {
				res.Missing = e.rules.MinPlayers - int(g.NumPlayers)
			}
		}
		res.Snapshot = SnapshotFromState(g)
		return true
	})
	return res, err
}

// prepareBoard builds the board a game starting from the next critical
// section would use, so puzzle generation stays outside the lock.
func (e *Engine) prepareBoard() *shm.Board {
	if v, ok := e.variants[e.rules.Variant]; ok {
		return v.NewBoard()
	}
	return nil
}

// start must be called with the lock held and phase AwaitingPlayers.
func (e *Engine) start(g *shm.GameSection, board *shm.Board, ev *events) {
	if board != nil {
		g.Board = *board
	} else {
		g.Board.Reset()
	}
	id := uuid.New()
	copy(g.GameID[:], id[:])
	g.GameSeq++
	g.Phase = shm.PhaseInProgress
	g.Winner = constants.NoPlayer
	g.Settled = false
	for i := range g.Players {
		p := &g.Players[i]
		if p.State == shm.PlayerWaiting {
			p.State = shm.PlayerActive
			p.Score, p.Correct, p.Incorrect, p.Rolls = 0, 0, 0, 0
		}
		p.Counted = false
	}
	first := nextActive(g, constants.NoPlayer)
	setTurn(g, first)
	ev.add("Game started with %d players! First turn: Player %d (%s)", g.NumPlayers, first+1, g.Player(first).NameString())
}

// finish must be called with the lock held.
func (e *Engine) finish(g *shm.GameSection, winner int, ev *events) {
	g.Phase = shm.PhaseFinished
	g.Winner = int32(winner)
	for i := range g.Players {
		p := &g.Players[i]
		if p.State == shm.PlayerActive {
			p.State = shm.PlayerFinished
			p.Counted = true
		}
	}
	g.CurrentTurn = constants.NoPlayer
	g.TurnSignal++
	g.Settled = false
	if winner == constants.NoPlayer {
		ev.add("Game over: no active players remain")
		return
	}
	w := g.Player(winner)
	ev.add("Player %d (%s) WINS with score %d!", winner+1, w.NameString(), w.Score)
}

// MoveResult is returned by Move.
type MoveResult struct {
	Outcome  types.MoveOutcome
	Snapshot *types.GameSnapshot
}

// Move resolves a move by slot. A move that does not end the game passes the
// turn to the next Active player in the same critical section.
func (e *Engine) Move(slot int, move types.Move) (*MoveResult, error) {
	if !e.validSlot(slot) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}

	var res *MoveResult
	var err error
	e.critical(func(g *shm.GameSection, ev *events) bool {
		if g.Phase != shm.PhaseInProgress {
			err = ErrNotInProgress
			return false
		}
		if int(g.CurrentTurn) != slot {
			cur := int(g.CurrentTurn)
			nyt := &NotYourTurnError{Slot: slot, CurrentTurn: cur}
			if cur >= 0 && cur < len(g.Players) {
				nyt.CurrentName = g.Player(cur).NameString()
			}
			err = nyt
			return false
		}
		v, ok := e.variants[g.Variant]
		if !ok {
			err = fmt.Errorf("%w: no rules for %s games", ErrInvalidMove, g.Variant)
			return false
		}

		out, rerr := v.Resolve(g, slot, move)
		if rerr != nil {
			err = rerr
			return false
		}
		p := g.Player(slot)
		out.Name = p.NameString()
		ev.add("%s", describeMove(out))

		if winner, done := v.Finished(g, slot); done {
			e.finish(g, winner, ev)
			out.Finished = true
			out.Winner = winner
			out.NextTurn = constants.NoPlayer
		} else {
			next := nextActive(g, slot)
			setTurn(g, next)
			out.Winner = constants.NoPlayer
			out.NextTurn = next
			if next != slot && next != constants.NoPlayer {
				ev.add("Turn advanced to Player %d (%s)", next+1, g.Player(next).NameString())
			}
		}
		res = &MoveResult{Outcome: out, Snapshot: SnapshotFromState(g)}
		return true
	})
	return res, err
}

func describeMove(out types.MoveOutcome) string {
	switch out.Kind {
	case types.MoveRoll:
		if out.Reset {
			return fmt.Sprintf("Player %d (%s) rolled snake eyes! Score reset to 0", out.Slot+1, out.Name)
		}
		return fmt.Sprintf("Player %d (%s) rolled %d + %d = %d (Total: %d)", out.Slot+1, out.Name, out.Die1, out.Die2, out.Die1+out.Die2, out.Score)
	case types.MovePlace:
		verdict := "wrong"
		if out.Correct {
			verdict = "correct"
		}
		return fmt.Sprintf("Player %d (%s) placed %d at (%d,%d): %s (Score: %d, Remaining: %d)", out.Slot+1, out.Name, out.Value, out.Row+1, out.Col+1, verdict, out.Score, out.Remaining)
	default:
		return fmt.Sprintf("Player %d (%s) moved", out.Slot+1, out.Name)
	}
}

// Status returns a snapshot of the game without changing it.
func (e *Engine) Status() *types.GameSnapshot {
	var snap *types.GameSnapshot
	e.critical(func(g *shm.GameSection, _ *events) bool {
		snap = SnapshotFromState(g)
		return false
	})
	return snap
}

// LeaveResult is returned by Leave.
type LeaveResult struct {
	// Left is false when the slot was already disconnected.
	Left     bool
	Name     string
	WasTurn  bool
	Snapshot *types.GameSnapshot
}

// Leave disconnects slot. The turn is not passed here; the scheduler routes
// around the empty slot on its next sweep.
func (e *Engine) Leave(slot int) *LeaveResult {
	res := &LeaveResult{}
	if !e.validSlot(slot) {
		return res
	}
	e.critical(func(g *shm.GameSection, ev *events) bool {
		p := g.Player(slot)
		if p.State == shm.PlayerDisconnected {
			return false
		}
		res.Left = true
		res.Name = p.NameString()
		res.WasTurn = int(g.CurrentTurn) == slot
		p.State = shm.PlayerDisconnected
		p.HandlerPID = 0
		if g.NumPlayers > 0 {
			g.NumPlayers--
		}
		if g.Phase == shm.PhaseAwaitingPlayers {
			p.Reserved = false
		}
		ev.add("Player %d (%s) disconnected", slot+1, res.Name)
		res.Snapshot = SnapshotFromState(g)
		return true
	})
	return res
}

// AttachHandler records the process serving slot.
func (e *Engine) AttachHandler(slot, pid int) {
	if !e.validSlot(slot) {
		return
	}
	e.critical(func(g *shm.GameSection, ev *events) bool {
		g.Player(slot).HandlerPID = int32(pid)
		ev.add("Handler process %d started for Player %d", pid, slot+1)
		return false
	})
}

// DetachHandler clears the process of slot after it exited.
func (e *Engine) DetachHandler(slot, pid int) {
	if !e.validSlot(slot) {
		return
	}
	e.critical(func(g *shm.GameSection, _ *events) bool {
		p := g.Player(slot)
		if int(p.HandlerPID) == pid {
			p.HandlerPID = 0
		}
		return false
	})
}

// SlotAvailable reports whether a new connection may take slot: nobody is
// connected to it and it was not claimed during the running game.
func (e *Engine) SlotAvailable(slot int) bool {
	if !e.validSlot(slot) {
		return false
	}
	var ok bool
	e.critical(func(g *shm.GameSection, _ *events) bool {
		p := g.Player(slot)
		ok = p.State == shm.PlayerDisconnected && p.HandlerPID == 0 &&
			(!p.Reserved || g.Phase == shm.PhaseAwaitingPlayers)
		return false
	})
	return ok
}

// ResetResult is returned by Reset.
type ResetResult struct {
	Reset    bool
	Started  bool
	Snapshot *types.GameSnapshot
}

// Reset prepares the next game after a finished one has been settled.
// Connected players wait again and the game starts at once when enough remain.
func (e *Engine) Reset() *ResetResult {
	board := e.prepareBoard()
	res := &ResetResult{}
	e.critical(func(g *shm.GameSection, ev *events) bool {
		if g.Phase != shm.PhaseFinished || !g.Settled {
			return false
		}
		g.Phase = shm.PhaseAwaitingPlayers
		g.Winner = constants.NoPlayer
		g.CurrentTurn = constants.NoPlayer
		g.Board.Reset()
		connected := 0
		for i := range g.Players {
			p := &g.Players[i]
			p.Counted = false
			if p.State == shm.PlayerDisconnected {
				p.Reserved = false
				continue
			}
			p.State = shm.PlayerWaiting
			p.Score, p.Correct, p.Incorrect, p.Rolls = 0, 0, 0, 0
			connected++
		}
		g.NumPlayers = int32(connected)
		g.TurnSignal++
		res.Reset = true
		ev.add("Game reset, %d players waiting", connected)
		if connected >= e.rules.MinPlayers {
			e.start(g, board, ev)
			res.Started = true
		}
		res.Snapshot = SnapshotFromState(g)
		return true
	})
	return res
}

// SweepResult reports what a scheduler sweep changed.
type SweepResult struct {
	// Repaired is true when current_turn pointed at a player that is no
	// longer Active and was moved on.
	Repaired bool
	// Finished is true when this sweep ended the game.
	Finished   bool
	Settlement *types.Settlement
	Snapshot   *types.GameSnapshot
}

// Sweep is one consistency pass of the turn scheduler.
func (e *Engine) Sweep() *SweepResult {
	res := &SweepResult{}
	e.critical(func(g *shm.GameSection, ev *events) bool {
		changed := false
		if g.Phase == shm.PhaseInProgress && !turnValid(g) {
			next := nextActive(g, int(g.CurrentTurn))
			if next == constants.NoPlayer {
				e.finish(g, constants.NoPlayer, ev)
				res.Finished = true
			} else {
				setTurn(g, next)
				res.Repaired = true
				ev.add("Turn advanced to Player %d (%s)", next+1, g.Player(next).NameString())
			}
			changed = true
		}
		if g.Phase == shm.PhaseInProgress {
			if v, ok := e.variants[g.Variant]; ok {
				if winner, done := v.Finished(g, constants.NoPlayer); done {
					e.finish(g, winner, ev)
					res.Finished = true
					changed = true
				}
			}
		}
		if g.Phase == shm.PhaseFinished && !g.Settled {
			res.Settlement = e.settlement(g)
			g.Settled = true
			changed = true
		}
		if changed {
			res.Snapshot = SnapshotFromState(g)
		}
		return changed
	})
	return res
}

// settlement must be called with the lock held.
func (e *Engine) settlement(g *shm.GameSection) *types.Settlement {
	s := &types.Settlement{
		GameID:     uuid.UUID(g.GameID).String(),
		Seq:        g.GameSeq,
		Variant:    g.Variant.String(),
		Winner:     int(g.Winner),
		FinishedAt: e.now(),
	}
	for i := range g.Players {
		p := &g.Players[i]
		if !p.Counted {
			continue
		}
		s.Players = append(s.Players, types.PlayerResult{
			Slot:      i,
			Name:      p.NameString(),
			Score:     int(p.Score),
			Correct:   int(p.Correct),
			Incorrect: int(p.Incorrect),
			Rolls:     int(p.Rolls),
			Won:       i == int(g.Winner),
		})
	}
	if w := int(g.Winner); w >= 0 && w < len(g.Players) {
		s.WinnerName = g.Player(w).NameString()
	}
	return s
}

// Shutdown tells every attached process that the server is stopping.
func (e *Engine) Shutdown() {
	e.critical(func(g *shm.GameSection, ev *events) bool {
		g.Shutdown = true
		ev.add("Server shutting down")
		return true
	})
}

// ShuttingDown reports whether Shutdown was called.
func (e *Engine) ShuttingDown() bool {
	var down bool
	e.critical(func(g *shm.GameSection, _ *events) bool {
		down = g.Shutdown
		return false
	})
	return down
}

// sanitizeName joins the words of name with underscores so it stays a single
// field in the score ledger file.
func sanitizeName(name string) string {
	return shm.TruncateName(strings.Join(strings.Fields(name), "_"))
}
