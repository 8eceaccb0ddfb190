package server

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/crystal-mush/mushgames/pkg/boltstore"
	"github.com/crystal-mush/mushgames/pkg/gamedb"
)

// recorder collects everything sent to a descriptor.
type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) send(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, msg)
}

func (r *recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func (r *recorder) Saw(substr string) bool {
	for _, l := range r.Lines() {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func (r *recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = nil
}

type testGame struct {
	*Game
	clock *clockwork.FakeClock
	store *boltstore.Store
}

func newTestGame(t *testing.T, mutate ...func(*GameConf)) *testGame {
	t.Helper()
	store, err := boltstore.Open(filepath.Join(t.TempDir(), "test.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	gc := DefaultGameConf()
	gc.LobbyName = "Lobby"
	for _, fn := range mutate {
		fn(gc)
	}
	lobby, err := store.LoadAll(gc.LobbyName)
	require.NoError(t, err)

	clock := clockwork.NewFakeClock()
	g := NewGame(store, lobby, gc, WithClock(clock), WithIntn(func(int) int { return 0 }))
	ctx, cancel := context.WithCancel(context.Background())
	g.Start(ctx)
	t.Cleanup(func() {
		g.Shutdown()
		cancel()
	})
	return &testGame{Game: g, clock: clock, store: store}
}

// connect creates (or reuses) a player and logs a recording descriptor in.
func (tg *testGame) connect(t *testing.T, name string) (*Descriptor, *recorder) {
	t.Helper()
	ref := tg.DB.LookupPlayer(name)
	if ref == gamedb.Nothing {
		obj, err := tg.CreatePlayer(name, "secret-"+strings.ToLower(name))
		require.NoError(t, err)
		ref = obj.DBRef
	}
	rec := &recorder{}
	d := NewDescriptor(tg.Conns.NextID(), nullConn{})
	d.SendFunc = rec.send
	tg.Conns.Add(d)
	tg.Conns.Login(d, ref)
	return d, rec
}

// eventually waits for an asynchronously dispatched line.
func eventually(t *testing.T, rec *recorder, substr string) {
	t.Helper()
	require.Eventually(t, func() bool { return rec.Saw(substr) }, 2*time.Second, 5*time.Millisecond,
		"never saw %q in %q", substr, rec.Lines())
}
