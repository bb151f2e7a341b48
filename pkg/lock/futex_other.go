//go:build !linux

package lock

func newFutexMutex(word *uint32) (Mutex, error) {
	return nil, ErrUnsupported
}

func newFutexSignal(word *uint32) (Signal, error) {
	return nil, ErrUnsupported
}
