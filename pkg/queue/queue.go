package queue

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrQueueFull is returned by Enqueue when the queue is at capacity. The
	// entry is dropped and counted.
	ErrQueueFull = errors.New("queue is full")
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("queue is closed")
)

// Entry is one queued log line.
type Entry struct {
	At   time.Time
	Text string
}

// Queue is a bounded FIFO of log lines with many producers and one consumer.
type Queue interface {
	// Enqueue appends text without blocking.
	Enqueue(text string, at time.Time) error
	// Drain removes and returns every queued entry in FIFO order.
	Drain() []Entry
	Size() int
	// Dropped returns how many entries were rejected because the queue was full.
	Dropped() uint64
	// Close stops accepting entries. Queued entries can still be drained.
	Close()
	Closed() bool
	// Seq returns the change sequence consumers pass to Wait.
	Seq() uint32
	// Wait blocks until the sequence moves past seen, the timeout elapses or
	// ctx is done.
	Wait(ctx context.Context, seen uint32, timeout time.Duration) uint32
}
