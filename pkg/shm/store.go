package shm

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cbodonnell/tabletop/pkg/lock"
)

// Options selects the synchronization strategies used on the region.
type Options struct {
	Lock         string
	Notify       string
	PollInterval time.Duration
}

// Store is a handle on the shared region together with the lock and
// notification of each of its sections. Each section has its own lock and
// callers never hold two of them at once.
type Store struct {
	region *Region
	layout *Layout

	gameMu   lock.Mutex
	logMu    lock.Mutex
	ledgerMu lock.Mutex

	gameSignal   lock.Signal
	logSignal    lock.Signal
	ledgerSignal lock.Signal
}

// CreateStore creates the region at path and opens a handle on it.
func CreateStore(path string, opts Options) (*Store, error) {
	r, err := Create(path)
	if err != nil {
		return nil, err
	}
	s, err := newStore(r, opts)
	if err != nil {
		r.Close()
		Remove(path)
		return nil, err
	}
	return s, nil
}

// AttachStore opens a handle on an existing region.
func AttachStore(path string, opts Options) (*Store, error) {
	r, err := Attach(path)
	if err != nil {
		return nil, err
	}
	s, err := newStore(r, opts)
	if err != nil {
		r.Close()
		return nil, err
	}
	return s, nil
}

func newStore(r *Region, opts Options) (*Store, error) {
	l := r.Layout()
	s := &Store{region: r, layout: l}

	var err error
	if s.gameMu, err = lock.NewMutex(opts.Lock, &l.Game.Lock, lockPath(r.Path(), "game")); err != nil {
		return nil, fmt.Errorf("failed to create game lock: %w", err)
	}
	if s.logMu, err = lock.NewMutex(opts.Lock, &l.Log.Lock, lockPath(r.Path(), "log")); err != nil {
		s.closeLocks()
		return nil, fmt.Errorf("failed to create log lock: %w", err)
	}
	if s.ledgerMu, err = lock.NewMutex(opts.Lock, &l.Ledger.Lock, lockPath(r.Path(), "ledger")); err != nil {
		s.closeLocks()
		return nil, fmt.Errorf("failed to create ledger lock: %w", err)
	}

	if s.gameSignal, err = lock.NewSignal(opts.Notify, &l.Game.Notify, opts.PollInterval); err != nil {
		s.closeLocks()
		return nil, fmt.Errorf("failed to create game signal: %w", err)
	}
	if s.logSignal, err = lock.NewSignal(opts.Notify, &l.Log.Notify, opts.PollInterval); err != nil {
		s.closeLocks()
		return nil, fmt.Errorf("failed to create log signal: %w", err)
	}
	if s.ledgerSignal, err = lock.NewSignal(opts.Notify, &l.Ledger.Notify, opts.PollInterval); err != nil {
		s.closeLocks()
		return nil, fmt.Errorf("failed to create ledger signal: %w", err)
	}
	return s, nil
}

func lockPath(regionPath, section string) string {
	return regionPath + "." + section + ".lock"
}

// Game returns the game section. Fields are only read or written under GameLock.
func (s *Store) Game() *GameSection { return &s.layout.Game }

func (s *Store) Log() *LogSection { return &s.layout.Log }

func (s *Store) Ledger() *LedgerSection { return &s.layout.Ledger }

func (s *Store) GameLock() lock.Mutex { return s.gameMu }

func (s *Store) LogLock() lock.Mutex { return s.logMu }

func (s *Store) LedgerLock() lock.Mutex { return s.ledgerMu }

func (s *Store) GameSignal() lock.Signal { return s.gameSignal }

func (s *Store) LogSignal() lock.Signal { return s.logSignal }

func (s *Store) LedgerSignal() lock.Signal { return s.ledgerSignal }

// Path returns the backing file of the region.
func (s *Store) Path() string {
	return s.region.Path()
}

// OwnerPID returns the pid of the process that created the region.
func (s *Store) OwnerPID() int {
	return int(s.layout.Header.OwnerPID)
}

func (s *Store) closeLocks() error {
	var errs []error
	for _, m := range []lock.Mutex{s.gameMu, s.logMu, s.ledgerMu} {
		if m != nil {
			if err := m.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close releases this process' handle. Callers must not hold any section lock.
func (s *Store) Close() error {
	return errors.Join(s.closeLocks(), s.region.Close())
}

// Remove unlinks the region and its lock files. It is called by the creator
// after Close, once no other process depends on the region.
func (s *Store) Remove() error {
	errs := []error{Remove(s.region.Path())}
	for _, section := range []string{"game", "log", "ledger"} {
		if err := os.Remove(lockPath(s.region.Path(), section)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
