package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cbodonnell/tabletop/pkg/config"
	"github.com/cbodonnell/tabletop/pkg/game"
	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/network"
	"github.com/cbodonnell/tabletop/pkg/queue"
	"github.com/cbodonnell/tabletop/pkg/shm"
)

// runHandler serves one slot over the channel inherited from the
// coordinator, until the client quits or disconnects or the server shuts
// down.
func runHandler(args []string) int {
	fs := flag.NewFlagSet(handlerCommand, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to a YAML config file")
	logLevel := fs.String("log-level", "", "Log level (overrides log.level)")
	slot := fs.Int("slot", -1, "Slot served by this handler")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := setupLogger(cfg.Log.Level, handlerCommand); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	log.SetDefaultLogger(log.With("slot", *slot, "pid", os.Getpid()))
	defer log.Sync()

	if *slot < 0 || *slot >= cfg.Game.MaxPlayers {
		log.Error("Invalid slot %d", *slot)
		return 1
	}

	store, err := shm.AttachStore(cfg.SHM.Path(), storeOptions(cfg))
	if err != nil {
		log.Error("Failed to attach shared state: %v", err)
		return 1
	}
	defer store.Close()

	engine, err := newEngine(cfg, store, queue.NewSharedQueue(store))
	if err != nil {
		log.Error("Failed to create engine: %v", err)
		return 1
	}

	conn := network.HandlerConn()
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go watchShutdown(ctx, engine, conn)

	log.Debug("Handler started")
	session := network.NewSession(network.NewSessionOptions{
		Slot:        *slot,
		Engine:      engine,
		In:          conn.In,
		Out:         conn.Out,
		Broadcaster: network.NewNotifier(cfg.Channels.Base(), cfg.Game.MaxPlayers),
	})
	err = session.Run(ctx)
	if err != nil && !network.IsConnectionClosed(err) && !errors.Is(err, context.Canceled) {
		log.Error("Session ended: %v", err)
		return 1
	}
	log.Debug("Handler stopped")
	return 0
}

// watchShutdown closes the inbound channel once the server shuts down or the
// process is signalled, which ends the pending read of the session.
func watchShutdown(ctx context.Context, engine *game.Engine, conn *network.Conn) {
	sig := engine.Signal()
	seen := sig.Load()
	for {
		if ctx.Err() != nil || engine.ShuttingDown() {
			conn.In.Close()
			return
		}
		seen = sig.Wait(ctx, seen, time.Second)
	}
}
