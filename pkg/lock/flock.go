package lock

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// flockMutex serializes goroutines of one process with a sync.Mutex and
// processes with an exclusive flock on a sidecar file. flock locks belong to
// the open file description, so the in-process mutex is what keeps two
// goroutines sharing the descriptor apart.
type flockMutex struct {
	mu   sync.Mutex
	file *os.File
}

func newFlockMutex(path string) (*flockMutex, error) {
	if path == "" {
		return nil, fmt.Errorf("flock strategy needs a lock file path")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}
	return &flockMutex{file: f}, nil
}

func (m *flockMutex) Lock() {
	m.mu.Lock()
	for {
		err := unix.Flock(int(m.file.Fd()), unix.LOCK_EX)
		if err == nil {
			return
		}
		if err == unix.EINTR {
			continue
		}
		m.mu.Unlock()
		panic(fmt.Sprintf("flock %s: %v", m.file.Name(), err))
	}
}

func (m *flockMutex) Unlock() {
	if err := unix.Flock(int(m.file.Fd()), unix.LOCK_UN); err != nil {
		panic(fmt.Sprintf("flock unlock %s: %v", m.file.Name(), err))
	}
	m.mu.Unlock()
}

func (m *flockMutex) Close() error {
	return m.file.Close()
}
