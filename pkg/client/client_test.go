package client

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cbodonnell/tabletop/pkg/game"
	"github.com/cbodonnell/tabletop/pkg/lock"
	"github.com/cbodonnell/tabletop/pkg/messages"
	"github.com/cbodonnell/tabletop/pkg/network"
	"github.com/cbodonnell/tabletop/pkg/queue"
	"github.com/cbodonnell/tabletop/pkg/shm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serve runs an in-process handler session for each slot.
func serve(t *testing.T, base string, slots int) {
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
	engine := game.NewEngine(game.NewEngineOptions{
		Store:    store,
		LogQueue: queue.NewInMemoryQueue(100),
		Variants: []game.Variant{game.NewDiceVariant(100, func() (int, int) { return 2, 3 })},
		Rules:    game.Rules{Variant: shm.VariantDice, MinPlayers: 2, MaxPlayers: slots},
	})
	engine.Init()
	require.NoError(t, network.CreateChannels(base, slots))
	notifier := network.NewNotifier(base, slots)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for slot := 0; slot < slots; slot++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			paths := network.Paths(base, slot)
			in, err := network.OpenPipe(ctx, paths.ToServer, os.O_RDONLY)
			if err != nil {
				return
			}
			defer in.Close()
			out, err := network.OpenPipe(ctx, paths.ToClient, os.O_WRONLY)
			if err != nil {
				return
			}
			defer out.Close()
			network.NewSession(network.NewSessionOptions{
				Slot:        slot,
				Engine:      engine,
				In:          in,
				Out:         out,
				Broadcaster: notifier,
			}).Run(ctx)
		}(slot)
	}
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
}

func dial(t *testing.T, base string, slot int) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, base, slot)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// waitFor reads notifications until one of messageType arrives.
func waitFor(t *testing.T, c *Client, messageType string) *messages.Message {
	t.Helper()
	found := make(chan *messages.Message, 1)
	go func() {
		for {
			m, err := c.ReadNotification()
			if err != nil {
				close(found)
				return
			}
			if m.Type == messageType {
				found <- m
				return
			}
		}
	}()
	select {
	case m, ok := <-found:
		require.True(t, ok, "notifications closed before %s", messageType)
		return m
	case <-time.After(5 * time.Second):
		c.notify.Close()
		t.Fatalf("no %s notification", messageType)
		return nil
	}
}

func TestClient(t *testing.T) {
	base := filepath.Join(t.TempDir(), "pipe_")
	serve(t, base, 2)

	alice := dial(t, base, 0)
	bob := dial(t, base, 1)
	assert.Equal(t, 1, bob.Slot())

	resp, err := alice.Join("alice")
	require.NoError(t, err)
	require.Equal(t, messages.MessageTypeJoined, resp.Type)
	joined := &messages.Joined{}
	require.NoError(t, resp.Decode(joined))
	assert.False(t, joined.Started)
	assert.Equal(t, 1, joined.Missing)

	resp, err = bob.Join("bob")
	require.NoError(t, err)
	require.NoError(t, resp.Decode(joined))
	assert.True(t, joined.Started)

	turn := waitFor(t, alice, messages.MessageTypeYourTurn)
	assert.Equal(t, 0, turn.Slot)

	resp, err = alice.Roll()
	require.NoError(t, err)
	require.Equal(t, messages.MessageTypeMoveResult, resp.Type)
	result := &messages.MoveResult{}
	require.NoError(t, resp.Decode(result))
	assert.Equal(t, 5, result.Outcome.Score)
	assert.Equal(t, 1, result.Outcome.NextTurn)

	waitFor(t, bob, messages.MessageTypeYourTurn)

	resp, err = alice.Roll()
	require.NoError(t, err)
	assert.Equal(t, messages.MessageTypeWait, resp.Type)

	snap, err := bob.Status()
	require.NoError(t, err)
	assert.Equal(t, "in_progress", snap.Phase)
	assert.Equal(t, 1, snap.CurrentTurn)
	require.NotNil(t, snap.Player(0))
	assert.Equal(t, 5, snap.Player(0).Score)

	require.NoError(t, alice.Quit())
	left := waitFor(t, bob, messages.MessageTypePlayerLeft)
	payload := &messages.PlayerLeft{}
	require.NoError(t, left.Decode(payload))
	assert.Equal(t, "alice", payload.Name)
}

func TestDial_cancelled(t *testing.T) {
	base := filepath.Join(t.TempDir(), "pipe_")
	require.NoError(t, network.CreateChannels(base, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := Dial(ctx, base, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
