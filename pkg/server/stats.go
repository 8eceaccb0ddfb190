package server

import (
	"runtime"
)

// ConnectionStats returns a breakdown of current connections.
func (g *Game) ConnectionStats() map[string]any {
	descs := g.Conns.AllDescriptors()

	tcp, ws := 0, 0
	loginScreen, connected := 0, 0
	cmdCount := 0
	for _, d := range descs {
		switch d.Transport {
		case TransportTCP:
			tcp++
		case TransportWebSocket:
			ws++
		}
		switch d.State {
		case ConnLogin:
			loginScreen++
		case ConnConnected:
			connected++
		}
		cmdCount += d.CmdCount
	}

	return map[string]any{
		"total":        len(descs),
		"tcp":          tcp,
		"websocket":    ws,
		"login_screen": loginScreen,
		"connected":    connected,
		"commands":     cmdCount,
	}
}

// SessionStats counts running sessions by game and by phase.
func (g *Game) SessionStats() map[string]any {
	byGame := make(map[string]int)
	byPhase := make(map[string]int)
	infos := g.Sessions.Sessions()
	for _, info := range infos {
		byGame[info.Game]++
		byPhase[info.Phase.String()]++
	}
	return map[string]any{
		"active":   len(infos),
		"by_game":  byGame,
		"by_phase": byPhase,
		"dropped":  g.Events.Dropped(),
	}
}

// MemoryStats returns Go runtime memory statistics.
func (g *Game) MemoryStats() map[string]any {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return map[string]any{
		"heap_alloc_bytes":  m.HeapAlloc,
		"heap_inuse_bytes":  m.HeapInuse,
		"heap_alloc_mb":     float64(m.HeapAlloc) / 1024 / 1024,
		"goroutines":        runtime.NumGoroutine(),
		"gc_cycles":         m.NumGC,
		"gc_pause_total_ns": m.PauseTotalNs,
	}
}
