package shm

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

var (
	// ErrRegionInUse is returned by Create when a live process owns the region.
	ErrRegionInUse = errors.New("shared region is owned by a running process")
	// ErrLayoutMismatch is returned by Attach when the region is not a
	// compatible, initialized tabletop region.
	ErrLayoutMismatch = errors.New("shared region layout mismatch")
)

// Region is a named, fixed-size memory mapping backed by a file, typically
// under /dev/shm. Every process that maps the same path sees the same bytes.
type Region struct {
	path string
	file *os.File
	data []byte
}

// Create makes and initializes a new region at path. A region left behind by
// a process that no longer exists is removed first.
func Create(path string) (*Region, error) {
	if err := removeStale(path); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, ErrRegionInUse
		}
		return nil, fmt.Errorf("failed to create region %s: %w", path, err)
	}
	if err := f.Truncate(int64(LayoutSize)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to size region %s: %w", path, err)
	}

	r, err := mapRegion(path, f)
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	l := r.Layout()
	l.init(os.Getpid())
	atomic.StoreUint32(&l.Header.Ready, 1)
	return r, nil
}

// Attach maps an existing, initialized region without modifying it.
func Attach(path string) (*Region, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open region %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat region %s: %w", path, err)
	}
	if info.Size() != int64(LayoutSize) {
		f.Close()
		return nil, fmt.Errorf("%w: size %d, want %d", ErrLayoutMismatch, info.Size(), LayoutSize)
	}

	r, err := mapRegion(path, f)
	if err != nil {
		return nil, err
	}
	h := &r.Layout().Header
	if h.Magic != Magic || h.Version != Version || atomic.LoadUint32(&h.Ready) != 1 {
		r.Close()
		return nil, fmt.Errorf("%w: magic %#x version %d", ErrLayoutMismatch, h.Magic, h.Version)
	}
	return r, nil
}

func mapRegion(path string, f *os.File) (*Region, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, LayoutSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to map region %s: %w", path, err)
	}
	return &Region{path: path, file: f, data: data}, nil
}

// Layout overlays the typed layout on the mapping. The pointer is valid until Close.
func (r *Region) Layout() *Layout {
	return (*Layout)(unsafe.Pointer(&r.data[0]))
}

// Path returns the backing file path.
func (r *Region) Path() string {
	return r.path
}

// Close unmaps the region in this process. The region itself stays until Remove.
func (r *Region) Close() error {
	var errs []error
	if r.data != nil {
		if err := unix.Munmap(r.data); err != nil {
			errs = append(errs, fmt.Errorf("failed to unmap region: %w", err))
		}
		r.data = nil
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			errs = append(errs, err)
		}
		r.file = nil
	}
	return errors.Join(errs...)
}

// Remove unlinks the region from the namespace.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove region %s: %w", path, err)
	}
	return nil
}

// removeStale deletes the region at path unless its creator is still running.
func removeStale(path string) error {
	r, err := Attach(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		// Unreadable leftovers of another layout are replaced.
		return Remove(path)
	}
	pid := int(r.Layout().Header.OwnerPID)
	r.Close()

	if processAlive(pid) {
		return fmt.Errorf("%w (pid %d)", ErrRegionInUse, pid)
	}
	return Remove(path)
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
