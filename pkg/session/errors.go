package session

import "errors"

var (
	ErrAlreadyInSession = errors.New("already in a game")
	ErrEmptyTarget      = errors.New("no one to play with")
	ErrNotYourTurn      = errors.New("it is not your turn yet")
	ErrIllegalMove      = errors.New("illegal move")
	ErrSessionNotFound  = errors.New("no such game")
	ErrWrongPhase       = errors.New("that response is not valid right now")
	ErrNotParticipant   = errors.New("not a participant in that game")
	ErrAlreadyResponded = errors.New("already responded")
	ErrParticipantCount = errors.New("wrong number of players")
	ErrUnknownGame      = errors.New("unknown game")
	ErrNotFound         = errors.New("player not found")
	ErrClosed           = errors.New("game manager is shut down")
)

// invariantViolation is raised inside a session event when internal state
// is inconsistent. The session recovers it and aborts.
type invariantViolation struct {
	msg string
}

func (v invariantViolation) Error() string {
	return "invariant violated: " + v.msg
}
