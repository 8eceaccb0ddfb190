package server

import (
	"errors"

	"github.com/crystal-mush/mushgames/pkg/events"
	"github.com/crystal-mush/mushgames/pkg/gamedb"
	"github.com/crystal-mush/mushgames/pkg/session"
)

// BusMessenger turns session notices into bus events. Delivery goes
// through the dispatcher queue so a session never waits on a slow socket.
type BusMessenger struct {
	Events *events.Dispatcher
	DB     *gamedb.Database
}

var noticeTypes = map[session.NoticeKind]events.EventType{
	session.NoticeText:    events.EvNotice,
	session.NoticeInvite:  events.EvInvite,
	session.NoticePrompt:  events.EvPrompt,
	session.NoticeBoard:   events.EvBoard,
	session.NoticeOutcome: events.EvOutcome,
}

// Send implements session.Messenger.
func (m BusMessenger) Send(to gamedb.DBRef, n session.Notice) {
	room := gamedb.Nothing
	if obj, ok := m.DB.Get(to); ok {
		room = obj.Location
	}
	m.Events.Post(events.Event{
		Type:    noticeTypes[n.Kind],
		Player:  to,
		Room:    room,
		Session: string(n.Session),
		Text:    n.Text,
		Verbs:   n.Verbs,
		Data: map[string]any{
			"session": string(n.Session),
			"game":    n.Game,
			"verbs":   n.Verbs,
		},
	})
}

// RoomLookup resolves names against the players sharing the searcher's room.
type RoomLookup struct {
	DB *gamedb.Database
}

var errAmbiguous = errors.New("ambiguous name")

// Resolve implements session.ParticipantLookup.
func (l RoomLookup) Resolve(name string, searcher gamedb.DBRef) (session.Participant, error) {
	obj, ok := l.DB.Get(searcher)
	if !ok {
		return session.Participant{}, session.ErrNotFound
	}
	ref := l.DB.MatchPlayer(obj.Location, name)
	switch ref {
	case gamedb.Nothing:
		return session.Participant{}, session.ErrNotFound
	case gamedb.Ambiguous:
		return session.Participant{}, errors.Join(session.ErrNotFound, errAmbiguous)
	}
	return session.Participant{Ref: ref, Name: l.DB.Name(ref)}, nil
}
