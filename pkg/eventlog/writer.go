// Package eventlog writes the game event log. A single Writer owns the log
// file; every other process only enqueues lines.
package eventlog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/queue"
)

// TimeFormat is the timestamp layout of every log line.
const TimeFormat = "2006-01-02 15:04:05"

const defaultIdleWait = 100 * time.Millisecond

type Writer struct {
	queue    queue.Queue
	out      io.Writer
	idleWait time.Duration
}

type NewWriterOptions struct {
	Queue queue.Queue
	Out   io.Writer
	// IdleWait bounds how long the writer sleeps when it missed a wakeup.
	IdleWait time.Duration
}

func NewWriter(opts NewWriterOptions) *Writer {
	idle := opts.IdleWait
	if idle <= 0 {
		idle = defaultIdleWait
	}
	return &Writer{
		queue:    opts.Queue,
		out:      opts.Out,
		idleWait: idle,
	}
}

// OpenFile opens path for appending, creating it if needed.
func OpenFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log %s: %w", path, err)
	}
	return f, nil
}

// Format renders one log line, including the trailing newline.
func Format(e queue.Entry) string {
	return fmt.Sprintf("[%s] %s\n", e.At.Local().Format(TimeFormat), e.Text)
}

// Start writes queued entries until the queue is closed and empty. It keeps
// draining after ctx is done so no entry enqueued before Close is lost; ctx
// only cuts short the waits between drains.
func (w *Writer) Start(ctx context.Context) error {
	for {
		seen := w.queue.Seq()
		entries := w.queue.Drain()
		if len(entries) > 0 {
			if err := w.write(entries); err != nil {
				return err
			}
			continue
		}
		if w.queue.Closed() {
			// Entries may have landed between the drain and the close check.
			if rest := w.queue.Drain(); len(rest) > 0 {
				if err := w.write(rest); err != nil {
					return err
				}
			}
			log.Debug("Event log writer drained and stopped")
			return nil
		}
		if ctx.Err() != nil {
			// Shutting down but the queue is still open; keep polling on a
			// short interval until the owner closes it.
			time.Sleep(w.idleWait)
			continue
		}
		w.queue.Wait(ctx, seen, w.idleWait)
	}
}

func (w *Writer) write(entries []queue.Entry) error {
	bw := bufio.NewWriter(w.out)
	for _, e := range entries {
		if _, err := bw.WriteString(Format(e)); err != nil {
			return fmt.Errorf("failed to write event log: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write event log: %w", err)
	}
	return nil
}
