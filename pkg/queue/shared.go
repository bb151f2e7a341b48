package queue

import (
	"context"
	"time"

	"github.com/cbodonnell/tabletop/pkg/lock"
	"github.com/cbodonnell/tabletop/pkg/shm"
)

// SharedQueue is a circular buffer in the log section of the shared region.
// Every process attached to the region may enqueue; the coordinator's log
// writer is the only consumer.
type SharedQueue struct {
	mu  lock.Mutex
	sig lock.Signal
	sec *shm.LogSection
}

func NewSharedQueue(store *shm.Store) *SharedQueue {
	return &SharedQueue{
		mu:  store.LogLock(),
		sig: store.LogSignal(),
		sec: store.Log(),
	}
}

func (q *SharedQueue) Enqueue(text string, at time.Time) error {
	q.mu.Lock()
	sec := q.sec
	if sec.Closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if int(sec.Count) >= len(sec.Entries) {
		sec.Dropped++
		q.mu.Unlock()
		return ErrQueueFull
	}
	e := &sec.Entries[sec.Tail]
	e.Timestamp = at.UnixNano()
	e.SetText(text)
	sec.Tail = (sec.Tail + 1) % int32(len(sec.Entries))
	sec.Count++
	q.mu.Unlock()

	q.sig.Broadcast()
	return nil
}

func (q *SharedQueue) Drain() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	sec := q.sec
	if sec.Count == 0 {
		return nil
	}
	entries := make([]Entry, 0, sec.Count)
	for sec.Count > 0 {
		e := &sec.Entries[sec.Head]
		entries = append(entries, Entry{At: time.Unix(0, e.Timestamp), Text: e.TextString()})
		sec.Head = (sec.Head + 1) % int32(len(sec.Entries))
		sec.Count--
	}
	return entries
}

func (q *SharedQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int(q.sec.Count)
}

func (q *SharedQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sec.Dropped
}

func (q *SharedQueue) Close() {
	q.mu.Lock()
	q.sec.Closed = true
	q.mu.Unlock()
	q.sig.Broadcast()
}

func (q *SharedQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sec.Closed
}

func (q *SharedQueue) Seq() uint32 {
	return q.sig.Load()
}

func (q *SharedQueue) Wait(ctx context.Context, seen uint32, timeout time.Duration) uint32 {
	return q.sig.Wait(ctx, seen, timeout)
}
