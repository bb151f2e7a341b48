package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cbodonnell/tabletop/pkg/api"
	"github.com/cbodonnell/tabletop/pkg/api/metrics"
	"github.com/cbodonnell/tabletop/pkg/config"
	"github.com/cbodonnell/tabletop/pkg/eventlog"
	"github.com/cbodonnell/tabletop/pkg/game"
	"github.com/cbodonnell/tabletop/pkg/game/types"
	"github.com/cbodonnell/tabletop/pkg/ledger"
	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/network"
	"github.com/cbodonnell/tabletop/pkg/queue"
	"github.com/cbodonnell/tabletop/pkg/repositories"
	"github.com/cbodonnell/tabletop/pkg/shm"
	"github.com/cbodonnell/tabletop/pkg/version"
	"github.com/cbodonnell/tabletop/pkg/workers"
	"golang.org/x/sync/errgroup"
)

const handlerCommand = "handler"

func main() {
	if len(os.Args) > 1 && os.Args[1] == handlerCommand {
		os.Exit(runHandler(os.Args[2:]))
	}
	os.Exit(runServer(os.Args[1:]))
}

func runServer(args []string) int {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to a YAML config file")
	logLevel := fs.String("log-level", "", "Log level (overrides log.level)")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := setupLogger(cfg.Log.Level, ""); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer log.Sync()

	log.Info("Starting server version %s", version.Get())

	store, err := shm.CreateStore(cfg.SHM.Path(), storeOptions(cfg))
	if err != nil {
		log.Error("Failed to create shared state: %v", err)
		return 1
	}
	defer func() {
		store.Close()
		if err := store.Remove(); err != nil {
			log.Warn("Failed to remove shared state: %v", err)
		}
	}()
	log.Info("Shared state created at %s", store.Path())

	base := cfg.Channels.Base()
	slots := cfg.Game.MaxPlayers
	if err := network.CreateChannels(base, slots); err != nil {
		log.Error("Failed to create channels: %v", err)
		return 1
	}
	defer func() {
		if err := network.RemoveChannels(base, slots); err != nil {
			log.Warn("Failed to remove channels: %v", err)
		}
	}()

	logQueue := queue.NewSharedQueue(store)
	engine, err := newEngine(cfg, store, logQueue)
	if err != nil {
		log.Error("Failed to create engine: %v", err)
		return 1
	}
	engine.Init()

	scores := ledger.New(store)
	if err := loadScores(scores, cfg.Files.Scores); err != nil {
		log.Error("%v", err)
		return 1
	}

	logFile, err := eventlog.OpenFile(cfg.Files.Log)
	if err != nil {
		log.Error("%v", err)
		return 1
	}
	defer logFile.Close()

	ctx := context.Background()
	repository, err := repositories.NewRepository(ctx, cfg.Database.URL)
	if err != nil {
		log.Error("Failed to open game history: %v", err)
		return 1
	}
	if repository != nil {
		defer repository.Close(ctx)
	} else {
		log.Info("Game history disabled")
	}

	executable, err := os.Executable()
	if err != nil {
		log.Error("Failed to find executable: %v", err)
		return 1
	}

	m := metrics.New(engine, logQueue)
	notifier := network.NewNotifier(base, slots)
	settlementChan := make(chan *types.Settlement, 16)

	acceptor := network.NewAcceptor(network.NewAcceptorOptions{
		Engine: engine,
		Base:   base,
		Slots:  slots,
		Spawner: &network.ExecSpawner{
			Path: executable,
			Args: func(slot int) []string {
				args := []string{handlerCommand, "-slot", strconv.Itoa(slot), "-log-level", cfg.Log.Level}
				if *configPath != "" {
					args = append(args, "-config", *configPath)
				}
				return args
			},
		},
		Broadcaster: notifier,
		Observer:    m,
	})
	scheduler := game.NewScheduler(game.NewSchedulerOptions{
		Engine:         engine,
		Broadcaster:    notifier,
		SettlementChan: settlementChan,
		Observer:       m,
		Interval:       cfg.Scheduler.Interval,
		ResetDelay:     cfg.Game.ResetDelay,
	})
	settlementWorker := workers.NewSettlementWorker(workers.NewSettlementWorkerOptions{
		Ledger:         scores,
		ScoresPath:     cfg.Files.Scores,
		Repository:     repository,
		SettlementChan: settlementChan,
	})
	writer := eventlog.NewWriter(eventlog.NewWriterOptions{
		Queue: logQueue,
		Out:   logFile,
	})

	var apiServer *api.APIServer
	if cfg.Admin.Addr != "" {
		apiServer = api.NewAPIServer(api.NewAPIServerOptions{
			Addr:       cfg.Admin.Addr,
			Game:       engine,
			Scores:     scores,
			Repository: repository,
			Metrics:    m.Handler(),
		})
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(sigCtx)

	acceptorCtx, stopAcceptor := context.WithCancel(context.Background())
	acceptorDone := goDone(func() { acceptor.Start(acceptorCtx) })
	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	schedulerDone := goDone(func() { scheduler.Start(schedulerCtx) })
	settlementDone := goDone(func() { settlementWorker.Start(context.Background()) })

	writerCtx, stopWriter := context.WithCancel(context.Background())
	defer stopWriter()
	g.Go(func() error {
		if err := writer.Start(writerCtx); err != nil {
			return fmt.Errorf("event log writer: %w", err)
		}
		return nil
	})
	if apiServer != nil {
		g.Go(apiServer.Start)
	}

	log.Info("Server ready: %s game, %d-%d players, channels at %s*",
		cfg.Game.Variant, cfg.Game.MinPlayers, cfg.Game.MaxPlayers, base)

	<-gctx.Done()
	log.Info("Shutting down")

	engine.Shutdown()
	stopAcceptor()
	<-acceptorDone
	stopScheduler()
	<-schedulerDone
	close(settlementChan)
	<-settlementDone

	logQueue.Close()
	stopWriter()
	if apiServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := apiServer.Stop(shutdownCtx); err != nil {
			log.Warn("Failed to stop admin API: %v", err)
		}
		cancel()
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Server stopped with error: %v", err)
		return 1
	}
	log.Info("Server stopped")
	return 0
}

// goDone runs fn in a goroutine and returns a channel closed when it returns.
func goDone(fn func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	return done
}
