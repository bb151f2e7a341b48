package network

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/cbodonnell/tabletop/pkg/game"
	"github.com/cbodonnell/tabletop/pkg/log"
	"golang.org/x/sys/unix"
)

// File descriptors of the channel in a handler process.
const (
	HandlerInFD  = 3
	HandlerOutFD = 4
)

// HandlerConn returns the channel inherited by a handler process. The
// descriptors are switched to non-blocking mode so that closing In releases
// a pending read.
func HandlerConn() *Conn {
	for _, fd := range []int{HandlerInFD, HandlerOutFD} {
		if err := unix.SetNonblock(fd, true); err != nil {
			log.Warn("Failed to set fd %d non-blocking: %v", fd, err)
		}
	}
	return &Conn{
		In:  os.NewFile(HandlerInFD, "to_server"),
		Out: os.NewFile(HandlerOutFD, "to_client"),
	}
}

// Process is a running handler.
type Process interface {
	Pid() int
	Wait() error
	Kill() error
}

// Spawner starts the handler of a slot. It takes ownership of conn.
type Spawner interface {
	Spawn(slot int, conn *Conn) (Process, error)
}

// ExecSpawner runs each handler as a child process that inherits the
// channel as HandlerInFD and HandlerOutFD.
type ExecSpawner struct {
	Path string
	Args func(slot int) []string
	Env  []string
}

func (s *ExecSpawner) Spawn(slot int, conn *Conn) (Process, error) {
	defer conn.Close()

	cmd := exec.Command(s.Path, s.Args(slot)...)
	cmd.ExtraFiles = []*os.File{conn.In, conn.Out}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), s.Env...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start handler for slot %d: %w", slot, err)
	}
	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Pid() int    { return p.cmd.Process.Pid }
func (p *execProcess) Wait() error { return p.cmd.Wait() }
func (p *execProcess) Kill() error { return p.cmd.Process.Kill() }

// AcceptorObserver receives acceptor events, e.g. for metrics.
type AcceptorObserver interface {
	HandlerSpawned(slot int)
}

// Acceptor matches incoming connections to free slots. Each slot has its
// own loop: wait until the slot is available, wait for a client to open the
// slot's pipes, spawn a handler and reap it.
type Acceptor struct {
	engine        *game.Engine
	base          string
	slots         int
	spawner       Spawner
	broadcaster   game.Broadcaster
	observer      AcceptorObserver
	pollInterval  time.Duration
	shutdownGrace time.Duration
}

// NewAcceptorOptions contains options for creating a new Acceptor.
type NewAcceptorOptions struct {
	Engine      *game.Engine
	Base        string
	Slots       int
	Spawner     Spawner
	Broadcaster game.Broadcaster
	Observer    AcceptorObserver
	// PollInterval bounds how long a slot loop sleeps between availability
	// checks.
	PollInterval time.Duration
	// ShutdownGrace is how long a handler may take to exit after ctx is done
	// before it is killed.
	ShutdownGrace time.Duration
}

func NewAcceptor(opts NewAcceptorOptions) *Acceptor {
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	grace := opts.ShutdownGrace
	if grace <= 0 {
		grace = 2 * time.Second
	}
	return &Acceptor{
		engine:        opts.Engine,
		base:          opts.Base,
		slots:         opts.Slots,
		spawner:       opts.Spawner,
		broadcaster:   opts.Broadcaster,
		observer:      opts.Observer,
		pollInterval:  pollInterval,
		shutdownGrace: grace,
	}
}

// Start serves every slot until ctx is done and all handlers have exited.
func (a *Acceptor) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for slot := 0; slot < a.slots; slot++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.serve(ctx, slot)
		}()
	}
	wg.Wait()
}

func (a *Acceptor) serve(ctx context.Context, slot int) {
	paths := Paths(a.base, slot)
	seen := a.engine.Signal().Load()
	for {
		for !a.engine.SlotAvailable(slot) {
			if ctx.Err() != nil {
				return
			}
			seen = a.engine.Signal().Wait(ctx, seen, a.pollInterval)
		}
		if ctx.Err() != nil {
			return
		}

		conn, err := a.accept(ctx, paths)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("Failed to accept connection on slot %d: %v", slot, err)
			a.sleep(ctx)
			continue
		}

		proc, err := a.spawner.Spawn(slot, conn)
		if err != nil {
			log.Error("Failed to spawn handler for slot %d: %v", slot, err)
			a.sleep(ctx)
			continue
		}
		pid := proc.Pid()
		a.engine.AttachHandler(slot, pid)
		if a.observer != nil {
			a.observer.HandlerSpawned(slot)
		}
		log.Info("Spawned handler %d for slot %d", pid, slot)

		if err := a.reap(ctx, proc); err != nil {
			log.Warn("Handler %d for slot %d exited: %v", pid, slot, err)
		} else {
			log.Debug("Handler %d for slot %d exited", pid, slot)
		}
		a.engine.DetachHandler(slot, pid)

		// A handler that crashed never left the game.
		if res := a.engine.Leave(slot); res.Left {
			log.Warn("Slot %d released after its handler %d died", slot, pid)
			if a.broadcaster != nil {
				a.broadcaster.PlayerLeft(slot, res.Name, res.Snapshot)
			}
		}
	}
}

// accept opens the server ends of the slot's channel. Clients open
// ToServer first and ToClient second.
func (a *Acceptor) accept(ctx context.Context, paths ChannelPaths) (*Conn, error) {
	in, err := OpenPipe(ctx, paths.ToServer, os.O_RDONLY)
	if err != nil {
		return nil, err
	}
	out, err := OpenPipe(ctx, paths.ToClient, os.O_WRONLY)
	if err != nil {
		in.Close()
		return nil, err
	}
	return &Conn{In: in, Out: out}, nil
}

// reap waits for proc to exit, killing it when it outlives ctx by more than
// the shutdown grace period.
func (a *Acceptor) reap(ctx context.Context, proc Process) error {
	done := make(chan error, 1)
	go func() {
		done <- proc.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	select {
	case err := <-done:
		return err
	case <-time.After(a.shutdownGrace):
		log.Warn("Killing handler %d after shutdown grace period", proc.Pid())
		if err := proc.Kill(); err != nil {
			log.Error("Failed to kill handler %d: %v", proc.Pid(), err)
		}
		return <-done
	}
}

func (a *Acceptor) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(a.pollInterval):
	}
}
