package metrics

import (
	"net/http"
	"strconv"

	"github.com/cbodonnell/tabletop/pkg/game/types"
	"github.com/cbodonnell/tabletop/pkg/shm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tabletop"

// GameSource provides snapshots of the shared game.
type GameSource interface {
	Status() *types.GameSnapshot
}

// QueueSource exposes the depth of the event log queue.
type QueueSource interface {
	Size() int
	Dropped() uint64
}

// Metrics holds the coordinator counters and a collector that reads the
// shared region on every scrape. It implements game.SchedulerObserver and
// network.AcceptorObserver.
type Metrics struct {
	registry *prometheus.Registry

	handlersSpawned *prometheus.CounterVec
	turnRepairs     prometheus.Counter
	settlements     prometheus.Counter
}

func New(game GameSource, logQueue QueueSource) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		handlersSpawned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handlers_spawned_total",
				Help:      "Total handler processes spawned",
			},
			[]string{"slot"},
		),
		turnRepairs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_repairs_total",
			Help:      "Total turns moved by the scheduler after a disconnect",
		}),
		settlements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Total finished games handed to the settlement worker",
		}),
	}
	m.registry.MustRegister(
		m.handlersSpawned,
		m.turnRepairs,
		m.settlements,
		newStateCollector(game, logQueue),
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HandlerSpawned(slot int) {
	m.handlersSpawned.WithLabelValues(strconv.Itoa(slot)).Inc()
}

func (m *Metrics) TurnRepaired() {
	m.turnRepairs.Inc()
}

func (m *Metrics) GameSettled() {
	m.settlements.Inc()
}

type stateCollector struct {
	game     GameSource
	logQueue QueueSource

	connected  *prometheus.Desc
	phase      *prometheus.Desc
	turnSignal *prometheus.Desc
	queueDepth *prometheus.Desc
	dropped    *prometheus.Desc
}

func newStateCollector(game GameSource, logQueue QueueSource) *stateCollector {
	return &stateCollector{
		game:     game,
		logQueue: logQueue,
		connected: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "connected_players"),
			"Players currently holding a slot", nil, nil),
		phase: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "game", "phase"),
			"1 for the current phase of the game", []string{"phase"}, nil),
		turnSignal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "turn_signal"),
			"Turn counter of the shared game", nil, nil),
		queueDepth: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "log_queue", "depth"),
			"Entries waiting in the event log queue", nil, nil),
		dropped: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "log_queue", "dropped_total"),
			"Log entries dropped because the queue was full", nil, nil),
	}
}

func (c *stateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connected
	ch <- c.phase
	ch <- c.turnSignal
	ch <- c.queueDepth
	ch <- c.dropped
}

func (c *stateCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.game.Status()
	connected := 0
	for i := range snap.Players {
		if snap.Players[i].Connected() {
			connected++
		}
	}
	ch <- prometheus.MustNewConstMetric(c.connected, prometheus.GaugeValue, float64(connected))
	for _, p := range []shm.Phase{shm.PhaseAwaitingPlayers, shm.PhaseInProgress, shm.PhaseFinished} {
		v := 0.0
		if p.String() == snap.Phase {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(c.phase, prometheus.GaugeValue, v, p.String())
	}
	ch <- prometheus.MustNewConstMetric(c.turnSignal, prometheus.CounterValue, float64(snap.TurnSignal))

	if c.logQueue != nil {
		ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(c.logQueue.Size()))
		ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(c.logQueue.Dropped()))
	}
}
