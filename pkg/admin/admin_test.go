package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystal-mush/mushgames/pkg/archive"
	"github.com/crystal-mush/mushgames/pkg/session"
)

type fakeController struct {
	mu       sync.Mutex
	infos    []session.Info
	aborted  map[session.ID]string
	walls    []string
	backups  int
	shutdown chan struct{}
}

func newFakeController() *fakeController {
	return &fakeController{
		aborted:  make(map[session.ID]string),
		shutdown: make(chan struct{}),
	}
}

func (f *fakeController) Status() map[string]any { return map[string]any{"name": "Arena"} }

func (f *fakeController) Sessions() []session.Info {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.infos
}

func (f *fakeController) AbortSession(id session.ID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, info := range f.infos {
		if info.ID == id {
			f.aborted[id] = reason
			return nil
		}
	}
	return session.ErrSessionNotFound
}

func (f *fakeController) Backup() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backups++
	return "/backups/archive.tar.gz", nil
}

func (f *fakeController) Backups() ([]archive.Info, error) {
	return []archive.Info{{Filename: "archive.tar.gz", Records: 3}}, nil
}

func (f *fakeController) WallAll(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.walls = append(f.walls, msg)
}

func (f *fakeController) Shutdown() { close(f.shutdown) }

func (f *fakeController) wallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.walls...)
}

type harness struct {
	ctrl  *fakeController
	clock *clockwork.FakeClock
	srv   *httptest.Server
	token string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{ctrl: newFakeController(), clock: clockwork.NewFakeClock()}
	a := New(h.ctrl, Options{Password: "correct horse", Clock: h.clock})
	mux := http.NewServeMux()
	mux.Handle("/admin/", a.Handler("/admin"))
	h.srv = httptest.NewServer(mux)
	t.Cleanup(h.srv.Close)

	resp := h.do(t, "POST", "/admin/api/auth/login", `{"password":"correct horse"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	h.token = body["token"]
	require.NotEmpty(t, h.token)
	return h
}

func (h *harness) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestLoginRequired(t *testing.T) {
	h := newHarness(t)
	h.token = ""

	resp := h.do(t, "GET", "/admin/api/status", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = h.do(t, "POST", "/admin/api/auth/login", `{"password":"wrong"}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginDisabledWithoutPassword(t *testing.T) {
	a := New(newFakeController(), Options{})
	assert.False(t, a.auth.checkPassword(""))
	assert.False(t, a.auth.checkPassword("anything"))
}

func TestChangePasswordStoresHash(t *testing.T) {
	dir := t.TempDir()
	a := New(newFakeController(), Options{DataDir: dir, Clock: clockwork.NewFakeClock()})
	require.NoError(t, a.auth.changePassword("a long secret"))
	assert.True(t, a.auth.checkPassword("a long secret"))

	again := New(newFakeController(), Options{DataDir: dir})
	assert.True(t, again.auth.checkPassword("a long secret"))
	assert.False(t, again.auth.checkPassword("other"))
}

func TestSessionExpires(t *testing.T) {
	h := newHarness(t)
	h.clock.Advance(sessionMaxAge + time.Minute)
	resp := h.do(t, "GET", "/admin/api/status", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSessionsAndAbort(t *testing.T) {
	h := newHarness(t)
	h.ctrl.infos = []session.Info{{
		ID:           "s-1",
		Game:         "rps",
		Phase:        session.PhaseAction,
		Initiator:    session.Participant{Ref: 3, Name: "Ann"},
		Participants: []session.Participant{{Ref: 3, Name: "Ann"}, {Ref: 4, Name: "Ben"}},
	}}

	resp := h.do(t, "GET", "/admin/api/sessions", "")
	var views []sessionView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&views))
	resp.Body.Close()
	require.Len(t, views, 1)
	assert.Equal(t, "rps", views[0].Game)
	assert.Equal(t, []string{"Ann", "Ben"}, views[0].Participants)
	assert.Equal(t, "Ann", views[0].Initiator)

	resp = h.do(t, "POST", "/admin/api/sessions/s-1/abort", `{"reason":"cheating"}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cheating", h.ctrl.aborted["s-1"])

	resp = h.do(t, "POST", "/admin/api/sessions/nope/abort", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBackups(t *testing.T) {
	h := newHarness(t)
	resp := h.do(t, "POST", "/admin/api/backups", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, h.ctrl.backups)

	resp = h.do(t, "GET", "/admin/api/backups", "")
	var list []archive.Info
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].Records)
}

func TestShutdownSequence(t *testing.T) {
	h := newHarness(t)
	resp := h.do(t, "POST", "/admin/api/shutdown", `{"delay":12,"reason":"upgrade"}`)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(t, "POST", "/admin/api/shutdown", `{}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for range 11 {
		require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
		h.clock.Advance(2 * time.Second)
	}
	select {
	case <-h.ctrl.shutdown:
	case <-ctx.Done():
		t.Fatal("shutdown was never called")
	}

	walls := h.ctrl.wallLog()
	assert.Contains(t, walls[0], "12 seconds")
	assert.Contains(t, walls[0], "upgrade")
	assert.Contains(t, walls, "## SHUTDOWN IN 10...")
	assert.Contains(t, walls, "## SHUTDOWN IN 1...")
	assert.Equal(t, "## Server is going down NOW. Goodbye!", walls[len(walls)-1])
	assert.Equal(t, 1, h.ctrl.backups)
}

func TestShutdownCancel(t *testing.T) {
	h := newHarness(t)
	resp := h.do(t, "POST", "/admin/api/shutdown", `{"delay":600}`)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(t, "GET", "/admin/api/shutdown", "")
	var st ShutdownStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	resp.Body.Close()
	assert.True(t, st.Active)
	assert.Equal(t, 600, st.Remaining)
	assert.Equal(t, "Server maintenance", st.Reason)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))

	resp = h.do(t, "DELETE", "/admin/api/shutdown", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(t, "DELETE", "/admin/api/shutdown", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	assert.Eventually(t, func() bool {
		walls := h.ctrl.wallLog()
		return len(walls) > 0 && strings.HasPrefix(walls[len(walls)-1], "## SHUTDOWN CANCELLED")
	}, time.Second, 10*time.Millisecond)
	select {
	case <-h.ctrl.shutdown:
		t.Fatal("cancelled shutdown still ran")
	default:
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "5 minutes", formatDuration(300))
	assert.Equal(t, "1 minute", formatDuration(90))
	assert.Equal(t, "30 seconds", formatDuration(30))
}
