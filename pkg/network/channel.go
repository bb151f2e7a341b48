package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cbodonnell/tabletop/pkg/messages"
	"golang.org/x/sys/unix"
)

// Conn is the server side of one slot's duplex channel.
type Conn struct {
	In  *os.File
	Out *os.File
}

// Close closes both ends.
func (c *Conn) Close() error {
	return errors.Join(c.In.Close(), c.Out.Close())
}

// ErrConnectionClosed is returned when the peer closed the channel
type ErrConnectionClosed struct{}

func (e *ErrConnectionClosed) Error() string {
	return "connection closed"
}

// IsConnectionClosed reports whether err means the channel is gone.
func IsConnectionClosed(err error) bool {
	var closed *ErrConnectionClosed
	return errors.As(err, &closed)
}

// WriteMessage writes a Message to a channel
func WriteMessage(w io.Writer, msg *messages.Message) error {
	if err := messages.WriteFrame(w, msg); err != nil {
		if errors.Is(err, unix.EPIPE) || errors.Is(err, os.ErrClosed) {
			return &ErrConnectionClosed{}
		}
		return fmt.Errorf("failed to write message of type %s: %w", msg.Type, err)
	}
	return nil
}

// ReadMessage reads a Message from a channel
func ReadMessage(r io.Reader) (*messages.Message, error) {
	msg, err := messages.ReadFrame(r)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
			errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed) {
			return nil, &ErrConnectionClosed{}
		}
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	return msg, nil
}

// OpenPipe opens a named pipe, blocking until the other end is opened or ctx
// is done. On cancel the pending open is released by briefly opening the
// opposite end without blocking.
func OpenPipe(ctx context.Context, path string, flag int) (*os.File, error) {
	type result struct {
		f   *os.File
		err error
	}
	done := make(chan result, 1)
	go func() {
		f, err := os.OpenFile(path, flag, 0)
		done <- result{f, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, r.err)
		}
		return r.f, nil
	case <-ctx.Done():
	}

	opposite := unix.O_WRONLY
	if flag&(os.O_WRONLY|os.O_RDWR) != 0 {
		opposite = unix.O_RDONLY
	}
	for {
		// The open may not have reached the kernel yet, so retry until it returns.
		if fd, err := unix.Open(path, opposite|unix.O_NONBLOCK|unix.O_CLOEXEC, 0); err == nil {
			unix.Close(fd)
		}
		select {
		case r := <-done:
			if r.f != nil {
				r.f.Close()
			}
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}
