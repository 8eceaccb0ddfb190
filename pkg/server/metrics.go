package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crystal-mush/mushgames/pkg/session"
)

// Metrics holds Prometheus metric descriptors for the game server.
// It is also a session.Observer, so session counts stay current
// without polling the manager.
type Metrics struct {
	registry  *prometheus.Registry
	startTime time.Time
	conns     func() map[TransportType]int
	dropped   func() int64

	playersConnected *prometheus.GaugeVec
	connectionsTotal *prometheus.CounterVec
	commandsTotal    prometheus.Counter
	sessionsActive   prometheus.Gauge
	sessionsCreated  *prometheus.CounterVec
	sessionsEnded    *prometheus.CounterVec
	sessionDuration  *prometheus.HistogramVec
	eventsDropped    prometheus.Gauge
	uptimeSeconds    prometheus.Gauge
	goroutines       prometheus.Gauge
}

// NewMetrics creates metrics in a private registry. conns and dropped
// are sampled on every scrape; either may be nil.
func NewMetrics(startTime time.Time, conns func() map[TransportType]int, dropped func() int64) *Metrics {
	m := &Metrics{
		registry:  prometheus.NewRegistry(),
		startTime: startTime,
		conns:     conns,
		dropped:   dropped,
		playersConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mushgames_players_connected",
			Help: "Number of currently connected players by transport.",
		}, []string{"transport"}),
		connectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mushgames_connections_total",
			Help: "Total connections since server start.",
		}, []string{"transport"}),
		commandsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mushgames_commands_processed_total",
			Help: "Total commands processed since server start.",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mushgames_sessions_active",
			Help: "Game sessions currently running.",
		}),
		sessionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mushgames_sessions_created_total",
			Help: "Game sessions started, by game.",
		}, []string{"game"}),
		sessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mushgames_sessions_ended_total",
			Help: "Game sessions finished, by game and outcome.",
		}, []string{"game", "outcome"}),
		sessionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mushgames_session_duration_seconds",
			Help:    "Wall time from invitation to teardown.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"game"}),
		eventsDropped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mushgames_events_dropped",
			Help: "Events discarded because the dispatch queue was full.",
		}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mushgames_uptime_seconds",
			Help: "Server uptime in seconds.",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mushgames_goroutines",
			Help: "Number of active goroutines.",
		}),
	}

	m.registry.MustRegister(
		m.playersConnected,
		m.connectionsTotal,
		m.commandsTotal,
		m.sessionsActive,
		m.sessionsCreated,
		m.sessionsEnded,
		m.sessionDuration,
		m.eventsDropped,
		m.uptimeSeconds,
		m.goroutines,
	)
	return m
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ConnectionOpened counts a new connection on transport t.
func (m *Metrics) ConnectionOpened(t TransportType) {
	m.connectionsTotal.WithLabelValues(t.String()).Inc()
}

// CommandProcessed counts one dispatched command.
func (m *Metrics) CommandProcessed() {
	m.commandsTotal.Inc()
}

// SessionStarted implements session.Observer.
func (m *Metrics) SessionStarted(info session.Info) {
	m.sessionsActive.Inc()
	m.sessionsCreated.WithLabelValues(info.Game).Inc()
}

// SessionEnded implements session.Observer.
func (m *Metrics) SessionEnded(info session.Info, o session.Outcome) {
	m.sessionsActive.Dec()
	m.sessionsEnded.WithLabelValues(info.Game, o.Kind.String()).Inc()
	m.sessionDuration.WithLabelValues(info.Game).Observe(time.Since(info.Started).Seconds())
}

// Update refreshes the sampled gauges.
func (m *Metrics) Update() {
	if m.conns != nil {
		for t, n := range m.conns() {
			m.playersConnected.WithLabelValues(t.String()).Set(float64(n))
		}
	}
	if m.dropped != nil {
		m.eventsDropped.Set(float64(m.dropped()))
	}
	m.uptimeSeconds.Set(time.Since(m.startTime).Seconds())
	m.goroutines.Set(float64(runtime.NumGoroutine()))
}

// Handler returns an http.Handler that updates metrics before serving them.
func (m *Metrics) Handler() http.Handler {
	inner := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Update()
		inner.ServeHTTP(w, r)
	})
}

var _ session.Observer = (*Metrics)(nil)
