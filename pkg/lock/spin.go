package lock

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"
)

const (
	spinYields = 64
	spinSleep  = 50 * time.Microsecond
)

// spinMutex is a test-and-set lock on the shared word. 0 is unlocked, 1 is locked.
type spinMutex struct {
	word *uint32
}

func (m *spinMutex) Lock() {
	for i := 0; ; i++ {
		if atomic.CompareAndSwapUint32(m.word, 0, 1) {
			return
		}
		if i < spinYields {
			runtime.Gosched()
		} else {
			time.Sleep(spinSleep)
		}
	}
}

func (m *spinMutex) Unlock() {
	atomic.StoreUint32(m.word, 0)
}

func (m *spinMutex) Close() error {
	return nil
}

// pollSignal busy-polls the shared word with a fixed sleep between reads.
type pollSignal struct {
	word     *uint32
	interval time.Duration
}

func (s *pollSignal) Load() uint32 {
	return atomic.LoadUint32(s.word)
}

func (s *pollSignal) Broadcast() {
	atomic.AddUint32(s.word, 1)
}

func (s *pollSignal) Wait(ctx context.Context, seen uint32, timeout time.Duration) uint32 {
	deadline := deadlineFor(timeout)
	for {
		v := atomic.LoadUint32(s.word)
		if v != seen || ctx.Err() != nil {
			return v
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return v
		}
		time.Sleep(s.interval)
	}
}
