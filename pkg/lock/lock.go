// Package lock provides mutual exclusion and change notification that work
// across independent processes mapping the same shared region.
//
// Every primitive operates on a uint32 word that lives inside the shared
// mapping. None of the word-based primitives survive a holder crashing while
// the lock is held; the flock strategy does, because the kernel drops the
// file lock when the holding process exits.
package lock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	StrategyFlock = "flock"
	StrategyFutex = "futex"
	StrategySpin  = "spin"
	StrategyPoll  = "poll"
)

// ErrUnsupported is returned when a strategy is not available on this platform.
var ErrUnsupported = errors.New("strategy not supported on this platform")

// Mutex is a process-shared lock.
type Mutex interface {
	sync.Locker
	io.Closer
}

// Signal is a process-shared change notification. The shared word is a
// sequence number: Broadcast advances it, Wait blocks until it moves.
type Signal interface {
	// Load returns the current sequence.
	Load() uint32
	// Broadcast advances the sequence and wakes every waiter.
	Broadcast()
	// Wait returns the sequence once it differs from seen, the timeout
	// elapses or ctx is done, whichever comes first. A timeout <= 0 waits
	// until the sequence changes or ctx is done.
	Wait(ctx context.Context, seen uint32, timeout time.Duration) uint32
}

// NewMutex creates a lock of the given strategy on word. lockPath is only used
// by the flock strategy, which locks a sidecar file instead of the word.
func NewMutex(strategy string, word *uint32, lockPath string) (Mutex, error) {
	switch strategy {
	case StrategyFlock:
		return newFlockMutex(lockPath)
	case StrategyFutex:
		return newFutexMutex(word)
	case StrategySpin:
		return &spinMutex{word: word}, nil
	default:
		return nil, fmt.Errorf("unknown lock strategy %q", strategy)
	}
}

// NewSignal creates a notification of the given strategy on word.
func NewSignal(strategy string, word *uint32, pollInterval time.Duration) (Signal, error) {
	switch strategy {
	case StrategyFutex:
		return newFutexSignal(word)
	case StrategyPoll:
		return &pollSignal{word: word, interval: pollInterval}, nil
	default:
		return nil, fmt.Errorf("unknown notify strategy %q", strategy)
	}
}

func deadlineFor(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}
