// Package ledger keeps cumulative per-name statistics in the shared region
// and persists them to a whitespace separated flat file.
package ledger

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cbodonnell/tabletop/pkg/lock"
	"github.com/cbodonnell/tabletop/pkg/shm"
)

// ErrLedgerFull is returned when a new name could not be added because the
// table is at capacity. Rows that were already present are still updated.
var ErrLedgerFull = errors.New("score ledger is full")

type Entry struct {
	Name      string `json:"name"`
	Wins      int    `json:"wins"`
	Correct   int    `json:"correct"`
	Incorrect int    `json:"incorrect"`
}

// Result is one participant's contribution from a finished game.
type Result struct {
	Name      string
	Won       bool
	Correct   int
	Incorrect int
}

type Ledger struct {
	mu  lock.Mutex
	sig lock.Signal
	sec *shm.LedgerSection
}

func New(store *shm.Store) *Ledger {
	return &Ledger{
		mu:  store.LedgerLock(),
		sig: store.LedgerSignal(),
		sec: store.Ledger(),
	}
}

// Load merges the file at path into the table, adding counters of names that
// are already present. Only the first Load on a region has any effect; it
// reports whether this call was that one. A missing file counts as empty.
func (l *Ledger) Load(path string) (bool, error) {
	entries, err := ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, err
	}

	l.mu.Lock()
	if l.sec.Loaded {
		l.mu.Unlock()
		return false, nil
	}
	full := false
	for _, e := range entries {
		if r := l.find(e.Name); r != nil {
			r.Wins += int32(e.Wins)
			r.Correct += int32(e.Correct)
			r.Incorrect += int32(e.Incorrect)
		} else {
			full = true
		}
	}
	l.sec.Loaded = true
	l.sec.Version++
	l.mu.Unlock()

	l.sig.Broadcast()
	if full {
		return true, ErrLedgerFull
	}
	return true, nil
}

// Record applies the results of one game.
func (l *Ledger) Record(results []Result) error {
	l.mu.Lock()
	full := false
	for _, res := range results {
		r := l.find(res.Name)
		if r == nil {
			full = true
			continue
		}
		if res.Won {
			r.Wins++
		}
		r.Correct += int32(res.Correct)
		r.Incorrect += int32(res.Incorrect)
	}
	l.sec.Version++
	l.mu.Unlock()

	l.sig.Broadcast()
	if full {
		return ErrLedgerFull
	}
	return nil
}

// Entries returns a copy of the table ordered by wins, then name.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	entries := make([]Entry, 0, l.sec.Count)
	for i := 0; i < int(l.sec.Count); i++ {
		r := &l.sec.Entries[i]
		entries = append(entries, Entry{
			Name:      r.NameString(),
			Wins:      int(r.Wins),
			Correct:   int(r.Correct),
			Incorrect: int(r.Incorrect),
		})
	}
	l.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Wins != entries[j].Wins {
			return entries[i].Wins > entries[j].Wins
		}
		return entries[i].Name < entries[j].Name
	})
	return entries
}

// Version increases on every change to the table.
func (l *Ledger) Version() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sec.Version
}

// Save rewrites the file at path with the current table. The file is written
// outside the lock from a snapshot.
func (l *Ledger) Save(path string) error {
	return WriteFile(path, l.Entries())
}

// find must be called with the lock held. A missing name gets a new zeroed
// row unless the table is full.
func (l *Ledger) find(name string) *shm.LedgerRecord {
	name = shm.TruncateName(name)
	for i := 0; i < int(l.sec.Count); i++ {
		if l.sec.Entries[i].NameString() == name {
			return &l.sec.Entries[i]
		}
	}
	if int(l.sec.Count) >= len(l.sec.Entries) {
		return nil
	}
	r := &l.sec.Entries[l.sec.Count]
	*r = shm.LedgerRecord{}
	r.SetName(name)
	l.sec.Count++
	return r
}

// ReadFile parses a ledger file.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open score ledger %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads lines of "name wins [correct incorrect]". Blank lines are
// skipped; any other malformed line is an error.
func Parse(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 && len(fields) != 4 {
			return nil, fmt.Errorf("line %d: expected 2 or 4 fields, got %d", lineNo, len(fields))
		}
		e := Entry{Name: fields[0]}
		nums := make([]int, len(fields)-1)
		for i, field := range fields[1:] {
			n, err := strconv.Atoi(field)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid number %q", lineNo, field)
			}
			nums[i] = n
		}
		e.Wins = nums[0]
		if len(nums) == 3 {
			e.Correct, e.Incorrect = nums[1], nums[2]
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read score ledger: %w", err)
	}
	return entries, nil
}

// Format writes one line per entry.
func Format(w io.Writer, entries []Entry) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		if _, err := fmt.Fprintf(bw, "%s %d %d %d\n", e.Name, e.Wins, e.Correct, e.Incorrect); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile replaces the file at path through a temporary file and a rename,
// so readers never observe a partial ledger.
func WriteFile(path string, entries []Entry) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary score ledger: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Format(tmp, entries); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write score ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write score ledger: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace score ledger %s: %w", path, err)
	}
	return nil
}
