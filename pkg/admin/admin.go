// Package admin provides the operator API: server status, live game
// sessions, backups and a graceful, announced shutdown.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"

	"github.com/crystal-mush/mushgames/pkg/archive"
	"github.com/crystal-mush/mushgames/pkg/session"
)

// Controller is what the admin API needs from the running game. It lets
// this package stay free of an import on the server package.
type Controller interface {
	Status() map[string]any
	Sessions() []session.Info
	AbortSession(id session.ID, reason string) error
	Backup() (string, error)
	Backups() ([]archive.Info, error)
	// WallAll sends msg to every connected player.
	WallAll(msg string)
	// Shutdown stops the server. It may return before the server is down.
	Shutdown()
}

// Options configures an Admin.
type Options struct {
	// DataDir holds the stored password hash. Empty keeps it in memory.
	DataDir string
	// Password, when set, always wins over the stored hash.
	Password string
	Clock    clockwork.Clock
}

// Admin is the operator API HTTP handler.
type Admin struct {
	mu         sync.Mutex
	controller Controller
	auth       *adminAuth
	clock      clockwork.Clock

	shutdownStatus atomic.Pointer[ShutdownStatus]
	shutdownCancel context.CancelFunc
}

// New creates an Admin for controller.
func New(controller Controller, opts Options) *Admin {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	a := &Admin{
		controller: controller,
		auth:       newAdminAuth(opts.DataDir, opts.Password, opts.Clock),
		clock:      opts.Clock,
	}
	a.shutdownStatus.Store(&ShutdownStatus{})
	return a
}

// Handler returns the API mounted at prefix, which should be "/admin".
func (a *Admin) Handler(prefix string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/login", a.handleAuthLogin)
	mux.HandleFunc("POST /api/auth/logout", a.handleAuthLogout)
	mux.HandleFunc("POST /api/auth/change-password", a.handleAuthChangePassword)

	mux.HandleFunc("GET /api/status", a.handleStatus)
	mux.HandleFunc("GET /api/sessions", a.handleSessions)
	mux.HandleFunc("POST /api/sessions/{id}/abort", a.handleAbort)
	mux.HandleFunc("GET /api/backups", a.handleBackups)
	mux.HandleFunc("POST /api/backups", a.handleBackupNow)
	mux.HandleFunc("GET /api/shutdown", a.handleShutdownStatus)
	mux.HandleFunc("POST /api/shutdown", a.handleServerShutdown)
	mux.HandleFunc("DELETE /api/shutdown", a.handleShutdownCancel)

	return http.StripPrefix(prefix, a.authMiddleware(mux))
}

func readJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
