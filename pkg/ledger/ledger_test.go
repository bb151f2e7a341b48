package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cbodonnell/tabletop/pkg/game/constants"
	"github.com/cbodonnell/tabletop/pkg/lock"
	"github.com/cbodonnell/tabletop/pkg/shm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedger(t *testing.T) (*Ledger, *shm.Store) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.state")
	opts := shm.Options{Lock: lock.StrategyFlock, Notify: lock.StrategyPoll, PollInterval: time.Millisecond}
	store, err := shm.CreateStore(path, opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
		store.Remove()
	})
	return New(store), store
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []Entry
		wantErr bool
	}{
		{
			name:  "legacy two fields",
			input: "alice 3\nbob 1\n",
			want:  []Entry{{Name: "alice", Wins: 3}, {Name: "bob", Wins: 1}},
		},
		{
			name:  "four fields and blank lines",
			input: "alice 3 20 4\n\n  bob 0 7 9  \n",
			want:  []Entry{{Name: "alice", Wins: 3, Correct: 20, Incorrect: 4}, {Name: "bob", Correct: 7, Incorrect: 9}},
		},
		{
			name:    "three fields",
			input:   "alice 3 20\n",
			wantErr: true,
		},
		{
			name:    "not a number",
			input:   "alice many\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(strings.NewReader(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLedger_loadMergesOnce(t *testing.T) {
	l, store := newLedger(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "scores.txt")
	require.NoError(t, os.WriteFile(path, []byte("alice 2\nbob 1 5 5\nalice 1 3 0\n"), 0o644))

	loaded, err := l.Load(path)
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, []Entry{
		{Name: "alice", Wins: 3, Correct: 3},
		{Name: "bob", Wins: 1, Correct: 5, Incorrect: 5},
	}, l.Entries())

	// A second handle on the same region, e.g. a restarted writer, must not
	// merge the file again.
	again := New(store)
	loaded, err = again.Load(path)
	require.NoError(t, err)
	assert.False(t, loaded)
	assert.Len(t, again.Entries(), 2)
	assert.Equal(t, 3, again.Entries()[0].Wins)
}

func TestLedger_loadMissingFile(t *testing.T) {
	l, _ := newLedger(t)
	loaded, err := l.Load(filepath.Join(t.TempDir(), "missing.txt"))
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Empty(t, l.Entries())
}

func TestLedger_loadOverCapacity(t *testing.T) {
	l, _ := newLedger(t)
	path := filepath.Join(t.TempDir(), "scores.txt")
	var b strings.Builder
	for i := 0; i <= constants.MaxLedgerEntries; i++ {
		fmt.Fprintf(&b, "p%03d 1 0 0\n", i)
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))

	loaded, err := l.Load(path)
	assert.ErrorIs(t, err, ErrLedgerFull)
	assert.True(t, loaded)

	entries := l.Entries()
	require.Len(t, entries, constants.MaxLedgerEntries)
	for _, e := range entries {
		assert.Equal(t, 1, e.Wins)
		assert.NotEqual(t, fmt.Sprintf("p%03d", constants.MaxLedgerEntries), e.Name)
	}
}

func TestLedger_recordAndSave(t *testing.T) {
	l, _ := newLedger(t)
	before := l.Version()

	require.NoError(t, l.Record([]Result{
		{Name: "alice", Won: true, Correct: 4, Incorrect: 1},
		{Name: "bob", Correct: 2, Incorrect: 3},
	}))
	require.NoError(t, l.Record([]Result{
		{Name: "bob", Won: true, Correct: 1},
	}))
	assert.Greater(t, l.Version(), before)

	assert.Equal(t, []Entry{
		{Name: "alice", Wins: 1, Correct: 4, Incorrect: 1},
		{Name: "bob", Wins: 1, Correct: 3, Incorrect: 3},
	}, l.Entries())

	path := filepath.Join(t.TempDir(), "scores.txt")
	require.NoError(t, l.Save(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "alice 1 4 1\nbob 1 3 3\n", string(data))

	entries, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, l.Entries(), entries)

	matches, err := filepath.Glob(path + ".*.tmp")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestLedger_full(t *testing.T) {
	l, _ := newLedger(t)
	results := make([]Result, 0, constants.MaxLedgerEntries)
	for i := 0; i < constants.MaxLedgerEntries; i++ {
		results = append(results, Result{Name: fmt.Sprintf("p%03d", i)})
	}
	require.NoError(t, l.Record(results))

	err := l.Record([]Result{
		{Name: "p000", Won: true},
		{Name: "newcomer", Won: true},
	})
	assert.ErrorIs(t, err, ErrLedgerFull)

	entries := l.Entries()
	assert.Len(t, entries, constants.MaxLedgerEntries)
	assert.Equal(t, "p000", entries[0].Name)
	assert.Equal(t, 1, entries[0].Wins)
}
