package network

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ChannelPaths are the named pipes of one slot.
type ChannelPaths struct {
	// ToServer carries requests from the client.
	ToServer string
	// ToClient carries responses to the client.
	ToClient string
	// Notify carries unsolicited notifications to the client.
	Notify string
}

// Paths returns the pipe names of slot under base, e.g.
// /tmp/tabletop_pipe_0_to_server.
func Paths(base string, slot int) ChannelPaths {
	return ChannelPaths{
		ToServer: fmt.Sprintf("%s%d_to_server", base, slot),
		ToClient: fmt.Sprintf("%s%d_to_client", base, slot),
		Notify:   fmt.Sprintf("%s%d_notify", base, slot),
	}
}

func (p ChannelPaths) all() []string {
	return []string{p.ToServer, p.ToClient, p.Notify}
}

// CreateChannels creates the pipes of slots 0..slots-1. Existing pipes are
// kept; any other file in the way is an error.
func CreateChannels(base string, slots int) error {
	for slot := 0; slot < slots; slot++ {
		for _, path := range Paths(base, slot).all() {
			if err := mkfifo(path); err != nil {
				return err
			}
		}
	}
	return nil
}

func mkfifo(path string) error {
	err := unix.Mkfifo(path, 0o666)
	if err == nil {
		return nil
	}
	if !errors.Is(err, unix.EEXIST) {
		return fmt.Errorf("failed to create pipe %s: %w", path, err)
	}
	info, serr := os.Lstat(path)
	if serr != nil {
		return fmt.Errorf("failed to stat %s: %w", path, serr)
	}
	if info.Mode()&os.ModeNamedPipe == 0 {
		return fmt.Errorf("failed to create pipe %s: file exists and is not a pipe", path)
	}
	return nil
}

// RemoveChannels unlinks the pipes of slots 0..slots-1.
func RemoveChannels(base string, slots int) error {
	var errs []error
	for slot := 0; slot < slots; slot++ {
		for _, path := range Paths(base, slot).all() {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
