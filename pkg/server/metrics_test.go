package server

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystal-mush/mushgames/pkg/session"
)

// metricValue gathers reg and returns the value of the series name whose
// labels include every key/value pair in kv. Histograms report their
// sample count.
func metricValue(t *testing.T, reg *prometheus.Registry, name string, kv ...string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, m := range mf.GetMetric() {
			for i := 0; i+1 < len(kv); i += 2 {
				found := false
				for _, lp := range m.GetLabel() {
					if lp.GetName() == kv[i] && lp.GetValue() == kv[i+1] {
						found = true
					}
				}
				if !found {
					continue series
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return 0
}

func TestMetricsObserveSessions(t *testing.T) {
	m := NewMetrics(time.Now(), func() map[TransportType]int {
		return map[TransportType]int{TransportTCP: 2, TransportWebSocket: 1}
	}, func() int64 { return 5 })
	reg := m.Registry()

	info := session.Info{ID: "abc", Game: "rps", Started: time.Now()}
	m.SessionStarted(info)
	m.SessionStarted(session.Info{ID: "def", Game: "tictactoe", Started: time.Now()})
	m.SessionEnded(info, session.Outcome{Kind: session.OutcomeDraw})
	m.ConnectionOpened(TransportWebSocket)
	m.CommandProcessed()
	m.CommandProcessed()
	m.Update()

	assert.Equal(t, 1.0, metricValue(t, reg, "mushgames_sessions_active"))
	assert.Equal(t, 1.0, metricValue(t, reg, "mushgames_sessions_created_total", "game", "rps"))
	assert.Equal(t, 1.0, metricValue(t, reg, "mushgames_sessions_ended_total", "game", "rps", "outcome", "draw"))
	assert.Equal(t, 1.0, metricValue(t, reg, "mushgames_connections_total", "transport", "websocket"))
	assert.Equal(t, 2.0, metricValue(t, reg, "mushgames_commands_processed_total"))
	assert.Equal(t, 2.0, metricValue(t, reg, "mushgames_players_connected", "transport", "tcp"))
	assert.Equal(t, 5.0, metricValue(t, reg, "mushgames_events_dropped"))
	assert.Equal(t, 1.0, metricValue(t, reg, "mushgames_session_duration_seconds", "game", "rps"))
}

func TestGameFeedsMetrics(t *testing.T) {
	tg := newTestGame(t)
	alice, _ := tg.connect(t, "Alice")
	bob, bobOut := tg.connect(t, "Bob")
	reg := tg.Metrics.Registry()

	DispatchCommand(tg.Game, alice, "rps bob")
	eventually(t, bobOut, "Accept?")
	assert.Equal(t, 1.0, metricValue(t, reg, "mushgames_sessions_active"))
	assert.Equal(t, 1, tg.SessionStats()["active"])

	DispatchCommand(tg.Game, bob, "decline")
	eventually(t, bobOut, "You have declined.")
	assert.Equal(t, 0.0, metricValue(t, reg, "mushgames_sessions_active"))
	assert.Equal(t, 1.0, metricValue(t, reg, "mushgames_sessions_ended_total", "outcome", "declined"))
	assert.Equal(t, 0, tg.SessionStats()["active"])
}
