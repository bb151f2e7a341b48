package eventlog

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cbodonnell/tabletop/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	at := time.Date(2024, 3, 9, 7, 5, 2, 0, time.Local)
	got := Format(queue.Entry{At: at, Text: "alice joined in slot 0"})
	assert.Equal(t, "[2024-03-09 07:05:02] alice joined in slot 0\n", got)
}

func TestWriter_drainsBeforeExit(t *testing.T) {
	q := queue.NewInMemoryQueue(0)
	var buf bytes.Buffer
	w := NewWriter(NewWriterOptions{Queue: q, Out: &buf, IdleWait: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	for i := 0; i < 50; i++ {
		require.NoError(t, q.Enqueue(fmt.Sprintf("event %d", i), time.Now()))
	}
	cancel()
	// Still accepted after cancel; only Close ends the writer.
	require.NoError(t, q.Enqueue("final", time.Now()))
	q.Close()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("writer did not stop")
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 51)
	for i := 0; i < 50; i++ {
		assert.True(t, strings.HasSuffix(lines[i], fmt.Sprintf("] event %d", i)), lines[i])
		assert.True(t, strings.HasPrefix(lines[i], "["))
	}
	assert.True(t, strings.HasSuffix(lines[50], "] final"))
}

func TestWriter_appendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.log")
	require.NoError(t, os.WriteFile(path, []byte("existing\n"), 0o644))

	f, err := OpenFile(path)
	require.NoError(t, err)

	q := queue.NewInMemoryQueue(0)
	require.NoError(t, q.Enqueue("game started", time.Now()))
	q.Close()

	w := NewWriter(NewWriterOptions{Queue: q, Out: f})
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "existing", lines[0])
	assert.True(t, strings.HasSuffix(lines[1], "] game started"))
}
