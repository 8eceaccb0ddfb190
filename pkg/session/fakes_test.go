package session

import (
	"strings"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"

	"github.com/crystal-mush/mushgames/pkg/gamedb"
)

type recordingMessenger struct {
	mu      sync.Mutex
	notices map[gamedb.DBRef][]Notice
}

func (m *recordingMessenger) Send(to gamedb.DBRef, n Notice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.notices == nil {
		m.notices = make(map[gamedb.DBRef][]Notice)
	}
	m.notices[to] = append(m.notices[to], n)
}

func (m *recordingMessenger) For(ref gamedb.DBRef) []Notice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notice(nil), m.notices[ref]...)
}

func (m *recordingMessenger) Count(ref gamedb.DBRef, kind NoticeKind) int {
	n := 0
	for _, no := range m.For(ref) {
		if no.Kind == kind {
			n++
		}
	}
	return n
}

func (m *recordingMessenger) Last(ref gamedb.DBRef) Notice {
	ns := m.For(ref)
	if len(ns) == 0 {
		return Notice{}
	}
	return ns[len(ns)-1]
}

func (m *recordingMessenger) Saw(ref gamedb.DBRef, substr string) bool {
	for _, n := range m.For(ref) {
		if strings.Contains(n.Text, substr) {
			return true
		}
	}
	return false
}

type recordingRouter struct {
	mu     sync.Mutex
	grants map[gamedb.DBRef]Grant
}

func (r *recordingRouter) Grant(p gamedb.DBRef, g Grant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.grants == nil {
		r.grants = make(map[gamedb.DBRef]Grant)
	}
	r.grants[p] = g
}

func (r *recordingRouter) Revoke(p gamedb.DBRef, sid ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.grants[p].Session == sid {
		delete(r.grants, p)
	}
}

func (r *recordingRouter) Get(p gamedb.DBRef) (Grant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.grants[p]
	return g, ok
}

func (r *recordingRouter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.grants)
}

type mapLookup map[string]Participant

func (l mapLookup) Resolve(name string, _ gamedb.DBRef) (Participant, error) {
	if p, ok := l[strings.ToLower(name)]; ok {
		return p, nil
	}
	return Participant{}, ErrNotFound
}

type recordingObserver struct {
	mu       sync.Mutex
	started  []Info
	outcomes []Outcome
}

func (o *recordingObserver) SessionStarted(info Info) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, info)
}

func (o *recordingObserver) SessionEnded(_ Info, out Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, out)
}

func (o *recordingObserver) Ended() []Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Outcome(nil), o.outcomes...)
}

var (
	alice = Participant{Ref: 1, Name: "Alice"}
	bob   = Participant{Ref: 2, Name: "Bob"}
	carol = Participant{Ref: 3, Name: "Carol"}
	dave  = Participant{Ref: 4, Name: "Dave"}
)

type harness struct {
	clock    *clockwork.FakeClock
	msgr     *recordingMessenger
	router   *recordingRouter
	observer *recordingObserver
	mgr      *Manager
}

// noShuffle keeps the turn order as given: the initiator moves first.
func noShuffle(n int) int { return n - 1 }

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		clock:    clockwork.NewFakeClock(),
		msgr:     &recordingMessenger{},
		router:   &recordingRouter{},
		observer: &recordingObserver{},
	}
	opts := Options{
		Clock:     h.clock,
		Messenger: h.msgr,
		Router:    h.router,
		Lookup: mapLookup{
			"alice": alice,
			"bob":   bob,
			"carol": carol,
			"dave":  dave,
		},
		Intn:      noShuffle,
		Observers: []Observer{h.observer},
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	h.mgr = NewManager(opts)
	t.Cleanup(h.mgr.Close)
	return h
}

func (h *harness) phase(id ID) Phase {
	s, ok := h.mgr.Session(id)
	if !ok {
		return PhaseTerminated
	}
	return s.Info().Phase
}

func (h *harness) board(id ID) Board {
	s, ok := h.mgr.Session(id)
	if !ok {
		return Board{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.Board
}
