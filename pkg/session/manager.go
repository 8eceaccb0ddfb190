package session

import (
	"fmt"
	"log"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"

	"github.com/crystal-mush/mushgames/pkg/gamedb"
)

// Timeouts are the per-phase inactivity limits.
type Timeouts struct {
	Invitation time.Duration
	Action     time.Duration
	Turn       time.Duration
}

// DefaultTimeouts matches the classic two-minute game interval.
var DefaultTimeouts = Timeouts{
	Invitation: 120 * time.Second,
	Action:     120 * time.Second,
	Turn:       120 * time.Second,
}

// DefaultMaxParticipants caps open-ended games such as rps.
const DefaultMaxParticipants = 8

// Options configures a Manager. Messenger, Router and Lookup are required.
type Options struct {
	Clock           clockwork.Clock
	Messenger       Messenger
	Router          CommandRouter
	Lookup          ParticipantLookup
	Timeouts        Timeouts
	MaxParticipants int
	// Intn returns a random int in [0,n). Defaults to math/rand/v2.
	Intn      func(n int) int
	Games     []Rules
	Observers []Observer
}

// Manager owns every live session and the participant back-references.
// Lock order: a session's lock may be held while taking the manager's,
// never the reverse.
type Manager struct {
	clock     clockwork.Clock
	messenger Messenger
	router    CommandRouter
	lookup    ParticipantLookup
	intn      func(int) int
	games     map[string]Rules
	observers []Observer

	mu              sync.Mutex
	sessions        map[ID]*Session
	bindings        map[gamedb.DBRef]ID
	timeouts        Timeouts
	maxParticipants int
	closed          bool
}

// NewManager creates a manager. Unset options fall back to defaults.
func NewManager(opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Timeouts == (Timeouts{}) {
		opts.Timeouts = DefaultTimeouts
	}
	if opts.MaxParticipants <= 0 {
		opts.MaxParticipants = DefaultMaxParticipants
	}
	if opts.Intn == nil {
		opts.Intn = rand.IntN
	}
	if len(opts.Games) == 0 {
		opts.Games = []Rules{RPS{}, TicTacToe{}}
	}
	m := &Manager{
		clock:           opts.Clock,
		messenger:       opts.Messenger,
		router:          opts.Router,
		lookup:          opts.Lookup,
		intn:            opts.Intn,
		games:           make(map[string]Rules, len(opts.Games)),
		observers:       opts.Observers,
		sessions:        make(map[ID]*Session),
		bindings:        make(map[gamedb.DBRef]ID),
		timeouts:        opts.Timeouts,
		maxParticipants: opts.MaxParticipants,
	}
	for _, g := range opts.Games {
		m.games[g.Name()] = g
	}
	return m
}

// Games lists the registered games sorted by name.
func (m *Manager) Games() []Rules {
	gs := lo.Values(m.games)
	sort.Slice(gs, func(i, j int) bool { return gs[i].Name() < gs[j].Name() })
	return gs
}

// Timeouts returns the current per-phase timeouts.
func (m *Manager) Timeouts() Timeouts {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeouts
}

// SetLimits replaces the timeouts and participant cap. Running timers keep
// their deadline; the next arm uses the new values.
func (m *Manager) SetLimits(t Timeouts, maxParticipants int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeouts = t
	if maxParticipants > 0 {
		m.maxParticipants = maxParticipants
	}
}

// Create starts a new session of game between initiator and the named
// players. Names that cannot be resolved, duplicates and the initiator
// themself are skipped; the initiator is told about unresolved names.
func (m *Manager) Create(game string, initiator Participant, targets []string) (ID, error) {
	rules, ok := m.games[strings.ToLower(game)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownGame, game)
	}

	m.mu.Lock()
	closed, maxP := m.closed, m.maxParticipants
	m.mu.Unlock()
	if closed {
		return "", ErrClosed
	}

	var invited []Participant
	var missing []string
	seen := map[gamedb.DBRef]bool{initiator.Ref: true}
	for _, name := range targets {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		p, err := m.lookup.Resolve(name, initiator.Ref)
		if err != nil {
			missing = append(missing, name)
			continue
		}
		if seen[p.Ref] {
			continue
		}
		seen[p.Ref] = true
		invited = append(invited, p)
	}
	if len(invited) == 0 {
		if len(missing) > 0 {
			return "", fmt.Errorf("%w: could not find %s", ErrEmptyTarget, strings.Join(missing, ", "))
		}
		return "", ErrEmptyTarget
	}

	ps := append([]Participant{initiator}, invited...)
	least, most := rules.Players()
	if most == 0 || most > maxP {
		most = maxP
	}
	if len(ps) < least || len(ps) > most {
		return "", fmt.Errorf("%w: %s takes %d to %d players", ErrParticipantCount, rules.Title(), least, most)
	}

	s := newSession(m, rules, initiator, ps)
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrClosed
	}
	for _, p := range ps {
		if _, busy := m.bindings[p.Ref]; busy {
			m.mu.Unlock()
			return "", fmt.Errorf("%s is %w", p.Name, ErrAlreadyInSession)
		}
	}
	for _, p := range ps {
		m.bindings[p.Ref] = s.id
	}
	m.sessions[s.id] = s
	m.mu.Unlock()

	if err := s.start(missing); err != nil {
		return "", err
	}
	return s.id, nil
}

// Submit hands a player's response to a session.
func (m *Manager) Submit(id ID, p gamedb.DBRef, input string) error {
	s, ok := m.Session(id)
	if !ok {
		return ErrSessionNotFound
	}
	return s.submit(p, input)
}

// Forfeit ends whatever session p is in. Used for explicit forfeits and disconnects.
func (m *Manager) Forfeit(p gamedb.DBRef) error {
	id, ok := m.SessionOf(p)
	if !ok {
		return ErrSessionNotFound
	}
	s, ok := m.Session(id)
	if !ok {
		return ErrSessionNotFound
	}
	return s.forfeit(p)
}

// ForfeitSession ends session id on behalf of p, who must be playing in it.
func (m *Manager) ForfeitSession(id ID, p gamedb.DBRef) error {
	s, ok := m.Session(id)
	if !ok {
		return ErrSessionNotFound
	}
	return s.forfeit(p)
}

// Abort terminates a session without a result.
func (m *Manager) Abort(id ID, reason string) error {
	s, ok := m.Session(id)
	if !ok {
		return ErrSessionNotFound
	}
	s.abort(reason)
	return nil
}

// Session returns a live session by id.
func (m *Manager) Session(id ID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// SessionOf returns the session p is bound to.
func (m *Manager) SessionOf(p gamedb.DBRef) (ID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.bindings[p]
	return id, ok
}

// Sessions snapshots every live session, oldest first.
func (m *Manager) Sessions() []Info {
	m.mu.Lock()
	live := lo.Values(m.sessions)
	m.mu.Unlock()

	infos := lo.Map(live, func(s *Session, _ int) Info { return s.Info() })
	sort.Slice(infos, func(i, j int) bool { return infos[i].Started.Before(infos[j].Started) })
	return infos
}

// Close aborts every session and refuses new ones.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	live := lo.Values(m.sessions)
	m.mu.Unlock()

	for _, s := range live {
		s.abort("server shutting down")
	}
	if len(live) > 0 {
		log.Printf("sessions: aborted %d game(s) on shutdown", len(live))
	}
}

// release drops the session and its participants' back-references.
// Called with the session lock held.
func (m *Manager) release(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, s.id)
	for _, p := range s.table.Participants {
		if m.bindings[p.Ref] == s.id {
			delete(m.bindings, p.Ref)
		}
	}
}

func (m *Manager) started(info Info) {
	for _, o := range m.observers {
		o.SessionStarted(info)
	}
}

func (m *Manager) ended(info Info, out Outcome) {
	for _, o := range m.observers {
		o.SessionEnded(info, out)
	}
}
