package session

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/crystal-mush/mushgames/pkg/gamedb"
)

// Info is a point-in-time snapshot of a session.
type Info struct {
	ID           ID
	Game         string
	Phase        Phase
	Initiator    Participant
	Participants []Participant
	Started      time.Time
	Deadline     time.Time
}

type envelope struct {
	to gamedb.DBRef
	n  Notice
}

// Session is one running game. Every input (player response, timer fire,
// forfeit) is handled as a single event under mu. Notices produced by an
// event are queued in the outbox and sent after mu is released, in order.
type Session struct {
	id        ID
	rules     Rules
	initiator Participant
	mgr       *Manager
	started   time.Time

	mu       sync.Mutex
	phase    Phase
	table    *Table
	timer    *Timer
	timerGen uint64
	grants   map[gamedb.DBRef]Grant
	outcome  *Outcome
	tornDown bool
	outbox   []envelope
	after    []func()

	// flushMu keeps outbox batches in event order.
	flushMu sync.Mutex
}

func newSession(m *Manager, rules Rules, initiator Participant, ps []Participant) *Session {
	return &Session{
		id:        NewID(),
		rules:     rules,
		initiator: initiator,
		mgr:       m,
		started:   m.clock.Now(),
		table:     newTable(ps),
		timer:     NewTimer(m.clock),
		grants:    make(map[gamedb.DBRef]Grant),
	}
}

// ID returns the session id.
func (s *Session) ID() ID { return s.id }

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infoLocked()
}

func (s *Session) infoLocked() Info {
	return Info{
		ID:           s.id,
		Game:         s.rules.Name(),
		Phase:        s.phase,
		Initiator:    s.initiator,
		Participants: append([]Participant(nil), s.table.Participants...),
		Started:      s.started,
		Deadline:     s.timer.Deadline(),
	}
}

// event runs fn as one serialized session event, then flushes the
// notices it produced and runs deferred hooks outside the lock.
func (s *Session) event(fn func() error) error {
	s.mu.Lock()
	err := s.protect(fn)
	out, after := s.outbox, s.after
	s.outbox, s.after = nil, nil
	s.flushMu.Lock()
	s.mu.Unlock()

	for _, e := range out {
		s.mgr.messenger.Send(e.to, e.n)
	}
	s.flushMu.Unlock()

	for _, f := range after {
		f()
	}
	return err
}

// protect converts a panic inside an event into a forced abort.
func (s *Session) protect(fn func() error) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		log.Printf("session %s: %v; aborting", s.id.Short(), r)
		s.terminate(Outcome{Kind: OutcomeAborted, Reason: "internal error"})
		err = nil
	}()
	if len(s.table.Responses) != len(s.table.Participants) {
		s.invariant(false, "response table does not match participants")
	}
	return fn()
}

func (s *Session) invariant(cond bool, msg string) {
	if !cond {
		panic(invariantViolation{msg: msg})
	}
}

func (s *Session) notify(p Participant, kind NoticeKind, text string, verbs []string) {
	s.outbox = append(s.outbox, envelope{to: p.Ref, n: Notice{
		Kind:    kind,
		Session: s.id,
		Game:    s.rules.Title(),
		Text:    text,
		Verbs:   verbs,
	}})
}

func (s *Session) notifyOthers(except gamedb.DBRef, kind NoticeKind, text string) {
	for _, p := range s.table.Others(except) {
		s.notify(p, kind, text, nil)
	}
}

func (s *Session) grant(p Participant, verbs ...string) {
	g := Grant{Session: s.id, Phase: s.phase, Verbs: verbs}
	s.grants[p.Ref] = g
	s.mgr.router.Grant(p.Ref, g)
}

func (s *Session) revokeAll() {
	for ref := range s.grants {
		s.mgr.router.Revoke(ref, s.id)
	}
	clear(s.grants)
}

func (s *Session) arm(d time.Duration) {
	s.timerGen = s.timer.Start(d, s.onTimeout)
}

func (s *Session) disarm() {
	s.timer.Cancel()
	s.timerGen = 0
}

func (s *Session) start(missing []string) error {
	return s.event(func() error {
		s.invariant(s.phase == PhaseIdle, "session started twice")
		if len(missing) > 0 {
			s.notify(s.initiator, NoticeText, "Could not find: "+strings.Join(missing, ", ")+".", nil)
		}
		s.enterInvitation()
		info := s.infoLocked()
		s.after = append(s.after, func() { s.mgr.started(info) })
		return nil
	})
}

func (s *Session) enterInvitation() {
	s.phase = PhaseInvitation
	s.table.clearResponses()
	s.table.Responses[s.initiator.Ref] = "accept"

	title := s.rules.Title()
	others := s.table.Others(s.initiator.Ref)
	for _, p := range s.table.Participants {
		if p.Ref == s.initiator.Ref {
			s.grant(p, "decline", "forfeit")
			s.notify(p, NoticeText, fmt.Sprintf("You challenge %s to %s. Waiting for a response.", names(others), title), nil)
			continue
		}
		s.grant(p, "accept", "decline", "forfeit")
		text := fmt.Sprintf("%s challenges you to %s. Accept? (accept/decline)", s.initiator.Name, title)
		if len(others) > 1 {
			rest := lo.Filter(others, func(o Participant, _ int) bool { return o.Ref != p.Ref })
			text = fmt.Sprintf("%s challenges you and %s to %s. Accept? (accept/decline)", s.initiator.Name, names(rest), title)
		}
		s.notify(p, NoticeInvite, text, []string{"accept", "decline"})
	}
	s.arm(s.mgr.Timeouts().Invitation)
	log.Printf("session %s: %s invited %s to %s", s.id.Short(), s.initiator.Name, names(others), s.rules.Name())
}

func (s *Session) enterAction() {
	first := s.phase == PhaseInvitation
	s.revokeAll()
	s.phase = PhaseAction
	if first {
		s.rules.Setup(s.table, s.mgr.intn)
	}
	s.table.clearResponses()

	if first && len(s.table.Marks) > 0 {
		head := s.table.TurnOrder[0]
		for _, p := range s.table.Participants {
			s.notify(p, NoticeText, fmt.Sprintf("You play %s. %s moves first.", s.table.Marks[p.Ref], head.Name), nil)
		}
	}

	kind := NoticePrompt
	d := s.mgr.Timeouts().Action
	if s.rules.Sequential() {
		kind = NoticeBoard
		d = s.mgr.Timeouts().Turn
	}
	verbs := append(s.rules.ActionVerbs(), "forfeit")
	for _, p := range s.table.Participants {
		s.grant(p, verbs...)
		s.notify(p, kind, s.rules.Prompt(s.table, p), s.rules.Options(s.table, p))
	}
	s.arm(d)
}

// resolve records the final result computed by the rules and ends the session.
func (s *Session) resolve(o Outcome) {
	s.invariant(s.outcome == nil, "resolution computed twice")
	s.phase = PhaseResolution
	s.outcome = &o
	if len(o.Moves) > 0 {
		parts := lo.Map(s.table.Participants, func(p Participant, _ int) string {
			return fmt.Sprintf("%s chose %s", p.Name, o.Moves[p.Ref])
		})
		text := strings.Join(parts, ". ") + "."
		for _, p := range s.table.Participants {
			s.notify(p, NoticeText, text, nil)
		}
	}
	s.terminate(o)
}

// terminate moves to Terminated from any phase. Repeat calls are no-ops.
func (s *Session) terminate(o Outcome) {
	if s.phase == PhaseTerminated {
		return
	}
	s.phase = PhaseTerminated
	if s.outcome == nil {
		s.outcome = &o
	}
	s.disarm()
	s.teardown()
}

// teardown notifies participants, revokes grants and releases the
// participants' back-references. It runs at most once.
func (s *Session) teardown() {
	if s.tornDown {
		return
	}
	s.tornDown = true
	o := *s.outcome
	for _, p := range s.table.Participants {
		s.notify(p, NoticeOutcome, o.Message(p.Ref), nil)
	}
	s.revokeAll()
	s.mgr.release(s)

	info := s.infoLocked()
	log.Printf("session %s: %s ended: %s", s.id.Short(), s.rules.Name(), o.Kind)
	s.after = append(s.after, func() { s.mgr.ended(info, o) })
}

func (s *Session) onTimeout(gen uint64) {
	_ = s.event(func() error {
		if s.phase == PhaseTerminated || gen != s.timerGen {
			return nil
		}
		s.timerGen = 0
		log.Printf("session %s: timed out in %s", s.id.Short(), s.phase)
		s.terminate(Outcome{Kind: OutcomeTimeout})
		return nil
	})
}

// normalize maps typed input to a canonical verb. known is false when
// the input is not a verb of any phase.
func (s *Session) normalize(input string) (verb string, known bool) {
	in := strings.ToLower(strings.TrimSpace(input))
	switch in {
	case "accept", "yes", "y":
		return "accept", true
	case "decline", "no", "n":
		return "decline", true
	case "forfeit":
		return "forfeit", true
	}
	if v, ok := s.rules.Normalize(in); ok {
		return v, true
	}
	return in, false
}

func (s *Session) submit(ref gamedb.DBRef, input string) error {
	return s.event(func() error {
		if s.phase == PhaseTerminated {
			return ErrSessionNotFound
		}
		who, ok := s.table.Participant(ref)
		if !ok {
			return ErrNotParticipant
		}
		verb, known := s.normalize(input)
		if !s.grants[ref].Allows(verb) {
			if !known && s.phase == PhaseAction {
				return ErrIllegalMove
			}
			return ErrWrongPhase
		}
		if verb == "forfeit" {
			s.forfeitLocked(who)
			return nil
		}
		switch s.phase {
		case PhaseInvitation:
			return s.respondInvitation(who, verb)
		case PhaseAction:
			return s.respondAction(who, verb)
		default:
			return ErrWrongPhase
		}
	})
}

func (s *Session) respondInvitation(who Participant, verb string) error {
	if verb == "decline" {
		s.terminate(Outcome{Kind: OutcomeDeclined, By: who})
		return nil
	}
	if s.table.Responses[who.Ref] != "" {
		return ErrAlreadyResponded
	}
	s.table.Responses[who.Ref] = verb
	s.notify(who, NoticeText, "You have accepted the challenge. Waiting for opponents.", nil)
	s.notifyOthers(who.Ref, NoticeText, who.Name+" has accepted the challenge.")
	if s.table.allResponded() {
		s.disarm()
		s.enterAction()
	}
	return nil
}

func (s *Session) respondAction(who Participant, move string) error {
	if s.rules.Sequential() {
		if err := s.rules.Validate(s.table, who, move); err != nil {
			return err
		}
		s.table.Responses[who.Ref] = move
		s.disarm()
		s.rules.Apply(s.table, who, move)
		o, done := s.rules.Resolve(s.table)
		if !done {
			s.enterAction()
			return nil
		}
		final := s.table.Board.Render("GAME OVER")
		for _, p := range s.table.Participants {
			s.notify(p, NoticeBoard, final, nil)
		}
		s.resolve(o)
		return nil
	}

	if s.table.Responses[who.Ref] != "" {
		return ErrAlreadyResponded
	}
	if err := s.rules.Validate(s.table, who, move); err != nil {
		return err
	}
	s.table.Responses[who.Ref] = move
	s.notify(who, NoticeText, fmt.Sprintf("You have selected %s. Waiting for opponents.", move), nil)
	if !s.table.allResponded() {
		return nil
	}
	s.disarm()
	o, done := s.rules.Resolve(s.table)
	s.invariant(done, "round unresolved with every response in")
	s.resolve(o)
	return nil
}

func (s *Session) forfeitLocked(who Participant) {
	if s.phase == PhaseInvitation || s.phase == PhaseIdle {
		s.terminate(Outcome{Kind: OutcomeDeclined, By: who})
		return
	}
	s.terminate(Outcome{
		Kind:    OutcomeForfeit,
		By:      who,
		Winners: s.table.Others(who.Ref),
		Losers:  []Participant{who},
	})
}

func (s *Session) forfeit(ref gamedb.DBRef) error {
	return s.event(func() error {
		if s.phase == PhaseTerminated {
			return ErrSessionNotFound
		}
		who, ok := s.table.Participant(ref)
		if !ok {
			return ErrNotParticipant
		}
		s.forfeitLocked(who)
		return nil
	})
}

func (s *Session) abort(reason string) {
	_ = s.event(func() error {
		s.terminate(Outcome{Kind: OutcomeAborted, Reason: reason})
		return nil
	})
}
