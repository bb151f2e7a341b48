package queue

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cbodonnell/tabletop/pkg/game/constants"
	"github.com/cbodonnell/tabletop/pkg/lock"
	"github.com/cbodonnell/tabletop/pkg/shm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSharedQueues(t *testing.T) (*SharedQueue, *SharedQueue) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.state")
	opts := shm.Options{Lock: lock.StrategyFlock, Notify: lock.StrategyPoll, PollInterval: time.Millisecond}

	owner, err := shm.CreateStore(path, opts)
	require.NoError(t, err)
	other, err := shm.AttachStore(path, opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		other.Close()
		owner.Close()
		owner.Remove()
	})
	return NewSharedQueue(owner), NewSharedQueue(other)
}

func implementations(t *testing.T) map[string][2]Queue {
	producer, consumer := newSharedQueues(t)
	mem := NewInMemoryQueue(constants.LogQueueSize)
	return map[string][2]Queue{
		"shared":    {producer, consumer},
		"in-memory": {mem, mem},
	}
}

func TestQueue_fifo(t *testing.T) {
	for name, qs := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			producer, consumer := qs[0], qs[1]
			at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
			for i := 0; i < 5; i++ {
				require.NoError(t, producer.Enqueue(fmt.Sprintf("event %d", i), at.Add(time.Duration(i)*time.Second)))
			}
			assert.Equal(t, 5, consumer.Size())

			entries := consumer.Drain()
			require.Len(t, entries, 5)
			for i, e := range entries {
				assert.Equal(t, fmt.Sprintf("event %d", i), e.Text)
				assert.True(t, e.At.Equal(at.Add(time.Duration(i)*time.Second)))
			}
			assert.Zero(t, consumer.Size())
			assert.Empty(t, consumer.Drain())
		})
	}
}

func TestQueue_full(t *testing.T) {
	for name, qs := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			producer, consumer := qs[0], qs[1]
			for i := 0; i < constants.LogQueueSize; i++ {
				require.NoError(t, producer.Enqueue("line", time.Now()))
			}
			err := producer.Enqueue("overflow", time.Now())
			assert.ErrorIs(t, err, ErrQueueFull)
			assert.EqualValues(t, 1, consumer.Dropped())

			// Wrap around the ring after a partial drain.
			assert.Len(t, consumer.Drain(), constants.LogQueueSize)
			require.NoError(t, producer.Enqueue("after", time.Now()))
			entries := consumer.Drain()
			require.Len(t, entries, 1)
			assert.Equal(t, "after", entries[0].Text)
		})
	}
}

func TestQueue_truncates(t *testing.T) {
	for name, qs := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, qs[0].Enqueue(strings.Repeat("x", 1000), time.Now()))
			entries := qs[1].Drain()
			require.Len(t, entries, 1)
			assert.Len(t, entries[0].Text, constants.MaxLogMsg-1)
		})
	}
}

func TestQueue_close(t *testing.T) {
	for name, qs := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			producer, consumer := qs[0], qs[1]
			require.NoError(t, producer.Enqueue("last", time.Now()))
			consumer.Close()
			assert.True(t, producer.Closed())
			assert.ErrorIs(t, producer.Enqueue("late", time.Now()), ErrQueueClosed)

			entries := consumer.Drain()
			require.Len(t, entries, 1)
			assert.Equal(t, "last", entries[0].Text)
		})
	}
}

func TestQueue_wait(t *testing.T) {
	for name, qs := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			producer, consumer := qs[0], qs[1]
			seen := consumer.Seq()
			go func() {
				time.Sleep(10 * time.Millisecond)
				producer.Enqueue("wake", time.Now())
			}()
			got := consumer.Wait(context.Background(), seen, 5*time.Second)
			assert.NotEqual(t, seen, got)
			assert.Equal(t, 1, consumer.Size())

			seen = consumer.Seq()
			assert.Equal(t, seen, consumer.Wait(context.Background(), seen, 10*time.Millisecond))
		})
	}
}

func TestSharedQueue_concurrentProducers(t *testing.T) {
	producer, consumer := newSharedQueues(t)

	const producers, perProducer = 4, 20
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		q := producer
		if p%2 == 1 {
			q = consumer
		}
		wg.Add(1)
		go func(p int, q Queue) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				assert.NoError(t, q.Enqueue(fmt.Sprintf("p%d-%d", p, i), time.Now()))
			}
		}(p, q)
	}
	wg.Wait()

	entries := consumer.Drain()
	require.Len(t, entries, producers*perProducer)

	// Per-producer order is preserved.
	next := make(map[string]int)
	for _, e := range entries {
		var p, i int
		_, err := fmt.Sscanf(e.Text, "p%d-%d", &p, &i)
		require.NoError(t, err)
		key := fmt.Sprint(p)
		assert.Equal(t, next[key], i)
		next[key] = i + 1
	}
}
