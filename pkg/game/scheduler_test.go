package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cbodonnell/tabletop/pkg/game/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedNotice struct {
	kind string
	slot int
}

type recordingBroadcaster struct {
	mu      sync.Mutex
	notices []recordedNotice
}

func (b *recordingBroadcaster) add(kind string, slot int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notices = append(b.notices, recordedNotice{kind: kind, slot: slot})
}

func (b *recordingBroadcaster) YourTurn(slot int, _ *types.GameSnapshot) { b.add("your_turn", slot) }

func (b *recordingBroadcaster) StateChanged(exclude int, _ *types.GameSnapshot) {
	b.add("state", exclude)
}

func (b *recordingBroadcaster) GameStarted(_ *types.GameSnapshot) { b.add("started", -1) }

func (b *recordingBroadcaster) GameOver(_ *types.GameSnapshot) { b.add("game_over", -1) }

func (b *recordingBroadcaster) PlayerLeft(slot int, _ string, _ *types.GameSnapshot) {
	b.add("left", slot)
}

func (b *recordingBroadcaster) has(kind string, slot int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, n := range b.notices {
		if n.kind == kind && n.slot == slot {
			return true
		}
	}
	return false
}

type countingObserver struct {
	mu      sync.Mutex
	repairs int
	settled int
}

func (o *countingObserver) TurnRepaired() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.repairs++
}

func (o *countingObserver) GameSettled() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.settled++
}

func (o *countingObserver) counts() (int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.repairs, o.settled
}

// TestScheduler_disconnectMidTurn plays the three player scenario: A, B and C
// join a dice game, A rolls without winning, B disconnects while holding the
// turn and the scheduler hands the turn to C.
func TestScheduler_disconnectMidTurn(t *testing.T) {
	const interval = 20 * time.Millisecond
	env := newTestEnv(t, diceRules())
	a := env.attach(t, NewDiceVariant(100, scriptedRoller([2]int{3, 4})))
	b := env.attach(t, NewDiceVariant(100, nil))
	c := env.attach(t, NewDiceVariant(100, nil))

	bc := &recordingBroadcaster{}
	obs := &countingObserver{}
	s := NewScheduler(NewSchedulerOptions{
		Engine:      env.engine,
		Broadcaster: bc,
		Observer:    obs,
		Interval:    interval,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	_, err := a.Join(0, "A")
	require.NoError(t, err)
	_, err = b.Join(1, "B")
	require.NoError(t, err)
	res, err := c.Join(2, "C")
	require.NoError(t, err)
	require.True(t, res.Started)
	assert.Equal(t, 0, res.Snapshot.CurrentTurn)

	move, err := a.Move(0, types.Move{Kind: types.MoveRoll})
	require.NoError(t, err)
	assert.False(t, move.Outcome.Finished)
	assert.Equal(t, 1, move.Snapshot.CurrentTurn)

	left := b.Leave(1)
	require.True(t, left.WasTurn)

	// The scheduler waits on the game signal, so the repair lands well within
	// one interval; the bound below leaves room for slow machines.
	assert.Eventually(t, func() bool {
		return env.engine.Status().CurrentTurn == 2
	}, 10*interval, time.Millisecond)
	assert.Eventually(t, func() bool {
		return bc.has("your_turn", 2)
	}, time.Second, time.Millisecond)
	assert.True(t, bc.has("state", 2))
	repairs, _ := obs.counts()
	assert.Equal(t, 1, repairs)

	_, err = c.Move(2, types.Move{Kind: types.MoveRoll})
	require.NoError(t, err)
	assert.Equal(t, 0, env.engine.Status().CurrentTurn)
}

func TestScheduler_settlesOnceAndResets(t *testing.T) {
	env := newTestEnv(t, diceRules(), NewDiceVariant(20, scriptedRoller([2]int{6, 6})))
	e := env.engine
	settlements := make(chan *types.Settlement, 4)
	bc := &recordingBroadcaster{}
	obs := &countingObserver{}
	s := NewScheduler(NewSchedulerOptions{
		Engine:         e,
		Broadcaster:    bc,
		SettlementChan: settlements,
		Observer:       obs,
		Interval:       5 * time.Millisecond,
		ResetDelay:     30 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	joinAll(t, e, "alice", "bob", "carol")
	for _, slot := range []int{0, 1, 2, 0} {
		_, err := e.Move(slot, types.Move{Kind: types.MoveRoll})
		require.NoError(t, err)
	}

	var settlement *types.Settlement
	select {
	case settlement = <-settlements:
	case <-time.After(5 * time.Second):
		t.Fatal("no settlement")
	}
	assert.Equal(t, 0, settlement.Winner)
	assert.Equal(t, "alice", settlement.WinnerName)
	assert.Len(t, settlement.Players, 3)

	// After the reset delay the next game starts with the same players.
	assert.Eventually(t, func() bool {
		snap := e.Status()
		return snap.Phase == "in_progress" && snap.Seq == 2
	}, 5*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return bc.has("started", -1) }, time.Second, time.Millisecond)

	select {
	case extra := <-settlements:
		t.Fatalf("unexpected second settlement for game %s", extra.GameID)
	case <-time.After(50 * time.Millisecond):
	}
	_, settled := obs.counts()
	assert.Equal(t, 1, settled)
}

func TestScheduler_stopsOnCancel(t *testing.T) {
	env := newTestEnv(t, diceRules(), NewDiceVariant(100, nil))
	s := NewScheduler(NewSchedulerOptions{Engine: env.engine, Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
