package session

import (
	"slices"

	"github.com/crystal-mush/mushgames/pkg/gamedb"
)

// NoticeKind tells the messenger how a notice should be presented.
type NoticeKind int

const (
	NoticeText NoticeKind = iota
	NoticeInvite
	NoticePrompt
	NoticeBoard
	NoticeOutcome
)

// Notice is a message from a session to one participant.
type Notice struct {
	Kind    NoticeKind
	Session ID
	Game    string
	Text    string
	// Verbs lists the responses that would be legal for the recipient right now.
	Verbs []string
}

// Messenger delivers notices to players. Send must not block.
type Messenger interface {
	Send(to gamedb.DBRef, n Notice)
}

// Grant is a phase-scoped permission letting a participant direct input at a session.
type Grant struct {
	Session ID
	Phase   Phase
	Verbs   []string
}

// Allows reports whether verb is covered by the grant.
func (g Grant) Allows(verb string) bool {
	return slices.Contains(g.Verbs, verb)
}

// CommandRouter routes granted verbs from players back to their session.
type CommandRouter interface {
	Grant(p gamedb.DBRef, g Grant)
	Revoke(p gamedb.DBRef, sid ID)
}

// ParticipantLookup resolves a typed name, as seen from the searcher, to a participant.
type ParticipantLookup interface {
	Resolve(name string, searcher gamedb.DBRef) (Participant, error)
}

// Observer is told when sessions start and end. Calls happen outside session locks.
type Observer interface {
	SessionStarted(info Info)
	SessionEnded(info Info, o Outcome)
}
