package session

import (
	"github.com/google/uuid"

	"github.com/crystal-mush/mushgames/pkg/gamedb"
)

// Phase is the lifecycle stage of a session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseInvitation
	PhaseAction
	PhaseResolution
	PhaseTerminated
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseInvitation:
		return "invitation"
	case PhaseAction:
		return "action"
	case PhaseResolution:
		return "resolution"
	case PhaseTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ID identifies a session.
type ID string

// NewID returns a fresh random session id.
func NewID() ID {
	return ID(uuid.NewString())
}

// Short returns the first eight characters, for logs and player-facing text.
func (id ID) Short() string {
	if len(id) > 8 {
		return string(id[:8])
	}
	return string(id)
}

// Participant is a player taking part in a session.
type Participant struct {
	Ref  gamedb.DBRef
	Name string
}
