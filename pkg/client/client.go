package client

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/cbodonnell/tabletop/pkg/game/types"
	"github.com/cbodonnell/tabletop/pkg/messages"
	"github.com/cbodonnell/tabletop/pkg/network"
)

// Client is the player side of one slot's channels.
type Client struct {
	slot int

	// mu serializes request/response pairs.
	mu     sync.Mutex
	out    *os.File
	in     *os.File
	notify *os.File
}

// Dial connects to slot under base. It blocks until the coordinator accepts
// the slot or ctx is done.
func Dial(ctx context.Context, base string, slot int) (*Client, error) {
	paths := network.Paths(base, slot)

	// Opened read-write so it never blocks and the server can always find a
	// reader while this client is alive.
	notify, err := os.OpenFile(paths.Notify, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %v", paths.Notify, err)
	}
	out, err := network.OpenPipe(ctx, paths.ToServer, os.O_WRONLY)
	if err != nil {
		notify.Close()
		return nil, err
	}
	in, err := network.OpenPipe(ctx, paths.ToClient, os.O_RDONLY)
	if err != nil {
		out.Close()
		notify.Close()
		return nil, err
	}
	return &Client{
		slot:   slot,
		out:    out,
		in:     in,
		notify: notify,
	}, nil
}

func (c *Client) Slot() int {
	return c.slot
}

// Request sends one request and waits for its response.
func (c *Client) Request(messageType string, payload interface{}) (*messages.Message, error) {
	msg, err := messages.NewMessage(c.slot, messageType, payload)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := network.WriteMessage(c.out, msg); err != nil {
		return nil, err
	}
	return network.ReadMessage(c.in)
}

func (c *Client) Join(name string) (*messages.Message, error) {
	return c.Request(messages.MessageTypeJoin, &messages.JoinRequest{Name: name})
}

func (c *Client) Roll() (*messages.Message, error) {
	return c.Request(messages.MessageTypeRoll, nil)
}

func (c *Client) Place(row, col, value int) (*messages.Message, error) {
	return c.Request(messages.MessageTypePlace, &messages.PlaceRequest{Row: row, Col: col, Value: value})
}

// Status returns the current game snapshot.
func (c *Client) Status() (*types.GameSnapshot, error) {
	resp, err := c.Request(messages.MessageTypeStatus, nil)
	if err != nil {
		return nil, err
	}
	if resp.Type != messages.MessageTypeStatus {
		return nil, unexpected(resp)
	}
	status := &messages.Status{}
	if err := resp.Decode(status); err != nil {
		return nil, err
	}
	return status.State, nil
}

func (c *Client) Quit() error {
	resp, err := c.Request(messages.MessageTypeQuit, nil)
	if err != nil {
		return err
	}
	if resp.Type != messages.MessageTypeGoodbye {
		return unexpected(resp)
	}
	return nil
}

// ReadNotification blocks until the server pushes a notification. It
// returns a *network.ErrConnectionClosed once the client is closed.
func (c *Client) ReadNotification() (*messages.Message, error) {
	return network.ReadMessage(c.notify)
}

func (c *Client) Close() error {
	c.out.Close()
	c.in.Close()
	return c.notify.Close()
}

func unexpected(m *messages.Message) error {
	if m.Type == messages.MessageTypeError {
		e := &messages.Error{}
		if err := m.Decode(e); err == nil {
			return fmt.Errorf("server error: %s", e.Message)
		}
	}
	return fmt.Errorf("unexpected %s response", m.Type)
}
