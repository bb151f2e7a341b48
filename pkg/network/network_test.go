package network

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cbodonnell/tabletop/pkg/game"
	"github.com/cbodonnell/tabletop/pkg/game/types"
	"github.com/cbodonnell/tabletop/pkg/lock"
	"github.com/cbodonnell/tabletop/pkg/queue"
	"github.com/cbodonnell/tabletop/pkg/shm"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *game.Engine {
	t.Helper()
	store, err := shm.CreateStore(filepath.Join(t.TempDir(), "game.state"), shm.Options{
		Lock:         lock.StrategyFlock,
		Notify:       lock.StrategyPoll,
		PollInterval: time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
		store.Remove()
	})
	e := game.NewEngine(game.NewEngineOptions{
		Store:    store,
		LogQueue: queue.NewInMemoryQueue(1000),
		Variants: []game.Variant{game.NewDiceVariant(100, func() (int, int) { return 2, 3 })},
		Rules:    game.Rules{Variant: shm.VariantDice, MinPlayers: 3, MaxPlayers: 5},
	})
	e.Init()
	return e
}

type notice struct {
	kind string
	slot int
}

type fakeBroadcaster struct {
	mu      sync.Mutex
	notices []notice
}

func (b *fakeBroadcaster) add(kind string, slot int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notices = append(b.notices, notice{kind, slot})
}

func (b *fakeBroadcaster) YourTurn(slot int, _ *types.GameSnapshot) { b.add("your_turn", slot) }

func (b *fakeBroadcaster) StateChanged(exclude int, _ *types.GameSnapshot) {
	b.add("state", exclude)
}

func (b *fakeBroadcaster) GameStarted(_ *types.GameSnapshot) { b.add("started", -1) }

func (b *fakeBroadcaster) GameOver(_ *types.GameSnapshot) { b.add("game_over", -1) }

func (b *fakeBroadcaster) PlayerLeft(slot int, _ string, _ *types.GameSnapshot) {
	b.add("left", slot)
}

func (b *fakeBroadcaster) has(kind string, slot int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, n := range b.notices {
		if n.kind == kind && n.slot == slot {
			return true
		}
	}
	return false
}
