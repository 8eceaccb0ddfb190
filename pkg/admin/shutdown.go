package admin

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"
)

// ShutdownStatus reports a pending graceful shutdown.
type ShutdownStatus struct {
	Active     bool      `json:"active"`
	Reason     string    `json:"reason,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	ShutdownAt time.Time `json:"shutdown_at,omitzero"`
	Remaining  int       `json:"remaining"`
	Stage      string    `json:"stage,omitempty"` // warning, countdown, archiving, disconnecting, done
}

const defaultShutdownDelay = 300

// handleServerShutdown starts a delayed shutdown with warnings to every player.
func (a *Admin) handleServerShutdown(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.shutdownStatus.Load().Active {
		writeError(w, http.StatusConflict, "shutdown already in progress")
		return
	}

	var req struct {
		Delay  int    `json:"delay"` // seconds
		Reason string `json:"reason"`
	}
	if err := readJSON(r, &req); err != nil {
		// An empty body means the defaults.
		req.Delay = defaultShutdownDelay
	}
	if req.Delay <= 0 {
		req.Delay = defaultShutdownDelay
	}
	if req.Reason == "" {
		req.Reason = "Server maintenance"
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.shutdownCancel = cancel

	now := a.clock.Now()
	shutdownAt := now.Add(time.Duration(req.Delay) * time.Second)
	a.shutdownStatus.Store(&ShutdownStatus{
		Active:     true,
		Reason:     req.Reason,
		StartedAt:  now,
		ShutdownAt: shutdownAt,
		Remaining:  req.Delay,
		Stage:      "warning",
	})
	log.Printf("admin: graceful shutdown initiated, %d seconds delay, reason: %s", req.Delay, req.Reason)

	go a.runShutdownSequence(ctx, req.Delay, req.Reason)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "shutdown_initiated",
		"delay":       req.Delay,
		"reason":      req.Reason,
		"shutdown_at": shutdownAt.Format(time.RFC3339),
	})
}

func (a *Admin) handleShutdownStatus(w http.ResponseWriter, _ *http.Request) {
	s := a.shutdownStatus.Load()
	if !s.Active {
		writeJSON(w, http.StatusOK, s)
		return
	}
	resp := *s
	resp.Remaining = max(0, int(s.ShutdownAt.Sub(a.clock.Now()).Seconds()))
	writeJSON(w, http.StatusOK, &resp)
}

func (a *Admin) handleShutdownCancel(w http.ResponseWriter, _ *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.shutdownStatus.Load()
	if !s.Active || s.Stage == "archiving" || s.Stage == "disconnecting" || s.Stage == "done" {
		writeError(w, http.StatusConflict, "no cancellable shutdown in progress")
		return
	}
	if a.shutdownCancel != nil {
		a.shutdownCancel()
		a.shutdownCancel = nil
	}
	a.shutdownStatus.Store(&ShutdownStatus{})
	a.controller.WallAll("## SHUTDOWN CANCELLED. The server will keep running.")
	log.Printf("admin: shutdown cancelled")
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// wait sleeps on the admin clock. It reports false if ctx ended first.
func (a *Admin) wait(ctx context.Context, seconds int) bool {
	select {
	case <-ctx.Done():
		log.Printf("admin: shutdown sequence cancelled")
		return false
	case <-a.clock.After(time.Duration(seconds) * time.Second):
		return true
	}
}

// runShutdownSequence warns every minute, counts down the last ten
// seconds, takes a backup and stops the server.
func (a *Admin) runShutdownSequence(ctx context.Context, delaySec int, reason string) {
	ctrl := a.controller
	remaining := delaySec

	ctrl.WallAll(fmt.Sprintf("## SHUTDOWN: Server shutting down in %s. Reason: %s", formatDuration(remaining), reason))

	for remaining > 60 {
		step := min(60, remaining-60)
		if !a.wait(ctx, step) {
			return
		}
		remaining -= step
		a.updateShutdownRemaining(remaining, "warning")
		ctrl.WallAll(fmt.Sprintf("## SHUTDOWN: Server shutting down in %s.", formatDuration(remaining)))
	}

	if remaining > 10 {
		if !a.wait(ctx, remaining-10) {
			return
		}
		remaining = 10
	}

	a.updateShutdownRemaining(remaining, "countdown")
	for remaining > 0 {
		ctrl.WallAll(fmt.Sprintf("## SHUTDOWN IN %d...", remaining))
		if !a.wait(ctx, 1) {
			return
		}
		remaining--
		a.updateShutdownRemaining(remaining, "countdown")
	}

	a.mu.Lock()
	if ctx.Err() != nil {
		a.mu.Unlock()
		return
	}
	a.updateShutdownRemaining(0, "archiving")
	a.mu.Unlock()

	ctrl.WallAll("## SERVER SHUTTING DOWN. Running games are cancelled and a backup is being taken.")
	if path, err := ctrl.Backup(); err != nil {
		log.Printf("admin: warning: pre-shutdown backup failed: %v", err)
	} else {
		log.Printf("admin: pre-shutdown backup created: %s", path)
	}

	a.updateShutdownRemaining(0, "disconnecting")
	ctrl.WallAll("## Server is going down NOW. Goodbye!")
	ctrl.Shutdown()

	a.updateShutdownRemaining(0, "done")
	log.Printf("admin: graceful shutdown complete")
}

func (a *Admin) updateShutdownRemaining(remaining int, stage string) {
	s := a.shutdownStatus.Load()
	if !s.Active {
		return
	}
	updated := *s
	updated.Remaining = remaining
	updated.Stage = stage
	a.shutdownStatus.Store(&updated)
}

func formatDuration(seconds int) string {
	if seconds >= 120 {
		return fmt.Sprintf("%d minutes", seconds/60)
	}
	if seconds >= 60 {
		return "1 minute"
	}
	return fmt.Sprintf("%d seconds", seconds)
}
