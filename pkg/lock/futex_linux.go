//go:build linux

package lock

import (
	"context"
	"math"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	// Shared (non-private) futex operations, so waiters in other processes
	// mapping the same page are matched.
	futexOpWait = 0
	futexOpWake = 1

	// futexWaitSlice bounds each kernel wait so ctx cancellation is noticed.
	futexWaitSlice = 100 * time.Millisecond
)

func futexWait(addr *uint32, val uint32, timeout time.Duration) {
	var tsp *unix.Timespec
	if timeout > 0 {
		ts := unix.NsecToTimespec(int64(timeout))
		tsp = &ts
	}
	// EAGAIN (value already changed), ETIMEDOUT and EINTR all mean "re-check".
	unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(addr)), futexOpWait, uintptr(val), uintptr(unsafe.Pointer(tsp)), 0, 0)
}

func futexWake(addr *uint32, n int) {
	unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(addr)), futexOpWake, uintptr(n), 0, 0, 0)
}

// futexMutex is the three-state futex lock: 0 unlocked, 1 locked,
// 2 locked with possible waiters.
type futexMutex struct {
	word *uint32
}

func newFutexMutex(word *uint32) (Mutex, error) {
	return &futexMutex{word: word}, nil
}

func (m *futexMutex) Lock() {
	if atomic.CompareAndSwapUint32(m.word, 0, 1) {
		return
	}
	c := atomic.LoadUint32(m.word)
	if c != 2 {
		c = atomic.SwapUint32(m.word, 2)
	}
	for c != 0 {
		futexWait(m.word, 2, 0)
		c = atomic.SwapUint32(m.word, 2)
	}
}

func (m *futexMutex) Unlock() {
	if atomic.AddUint32(m.word, ^uint32(0)) != 0 {
		atomic.StoreUint32(m.word, 0)
		futexWake(m.word, 1)
	}
}

func (m *futexMutex) Close() error {
	return nil
}

type futexSignal struct {
	word *uint32
}

func newFutexSignal(word *uint32) (Signal, error) {
	return &futexSignal{word: word}, nil
}

func (s *futexSignal) Load() uint32 {
	return atomic.LoadUint32(s.word)
}

func (s *futexSignal) Broadcast() {
	atomic.AddUint32(s.word, 1)
	futexWake(s.word, math.MaxInt32)
}

func (s *futexSignal) Wait(ctx context.Context, seen uint32, timeout time.Duration) uint32 {
	deadline := deadlineFor(timeout)
	for {
		v := atomic.LoadUint32(s.word)
		if v != seen || ctx.Err() != nil {
			return v
		}
		slice := futexWaitSlice
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return v
			}
			if remaining < slice {
				slice = remaining
			}
		}
		futexWait(s.word, seen, slice)
	}
}
