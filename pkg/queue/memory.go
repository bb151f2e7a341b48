// queue package

package queue

import (
	"context"
	"sync"
	"time"

	"github.com/cbodonnell/tabletop/pkg/game/constants"
)

// InMemoryQueue implements a bounded in-process queue.
type InMemoryQueue struct {
	lock     sync.Mutex
	cond     *sync.Cond
	entries  []Entry
	capacity int
	dropped  uint64
	closed   bool
	seq      uint32
}

// NewInMemoryQueue creates a new queue. A capacity <= 0 selects the shared
// queue capacity.
func NewInMemoryQueue(capacity int) *InMemoryQueue {
	if capacity <= 0 {
		capacity = constants.LogQueueSize
	}
	q := &InMemoryQueue{capacity: capacity}
	q.cond = sync.NewCond(&q.lock)
	return q
}

// Enqueue adds an item to the end of the queue.
func (q *InMemoryQueue) Enqueue(text string, at time.Time) error {
	q.lock.Lock()
	defer q.lock.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if len(q.entries) >= q.capacity {
		q.dropped++
		return ErrQueueFull
	}
	if len(text) > constants.MaxLogMsg-1 {
		text = text[:constants.MaxLogMsg-1]
	}
	q.entries = append(q.entries, Entry{At: at, Text: text})
	q.bump()
	return nil
}

// Drain removes and returns all pending entries.
func (q *InMemoryQueue) Drain() []Entry {
	q.lock.Lock()
	defer q.lock.Unlock()
	entries := q.entries
	q.entries = nil
	return entries
}

// Size returns the current size of the queue.
func (q *InMemoryQueue) Size() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return len(q.entries)
}

func (q *InMemoryQueue) Dropped() uint64 {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.dropped
}

func (q *InMemoryQueue) Close() {
	q.lock.Lock()
	defer q.lock.Unlock()
	q.closed = true
	q.bump()
}

func (q *InMemoryQueue) Closed() bool {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.closed
}

func (q *InMemoryQueue) Seq() uint32 {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.seq
}

func (q *InMemoryQueue) Wait(ctx context.Context, seen uint32, timeout time.Duration) uint32 {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	stop := context.AfterFunc(ctx, func() {
		q.lock.Lock()
		defer q.lock.Unlock()
		q.cond.Broadcast()
	})
	defer stop()

	q.lock.Lock()
	defer q.lock.Unlock()
	for q.seq == seen && ctx.Err() == nil {
		q.cond.Wait()
	}
	return q.seq
}

// bump must be called with the lock held.
func (q *InMemoryQueue) bump() {
	q.seq++
	q.cond.Broadcast()
}
