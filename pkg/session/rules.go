package session

import (
	"github.com/crystal-mush/mushgames/pkg/gamedb"
)

// Table is the mutable game state a session hands to its Rules.
type Table struct {
	Participants []Participant
	// Responses holds each participant's response for the current phase
	// ("" means no response yet). Keys are exactly the participants.
	Responses map[gamedb.DBRef]string
	// TurnOrder is the sequential-game rotation; the head moves next.
	TurnOrder []Participant
	Board     Board
	Marks     map[gamedb.DBRef]Mark
}

func newTable(ps []Participant) *Table {
	t := &Table{
		Participants: ps,
		Responses:    make(map[gamedb.DBRef]string, len(ps)),
		Marks:        make(map[gamedb.DBRef]Mark),
	}
	t.clearResponses()
	return t
}

func (t *Table) clearResponses() {
	for _, p := range t.Participants {
		t.Responses[p.Ref] = ""
	}
}

func (t *Table) allResponded() bool {
	for _, p := range t.Participants {
		if t.Responses[p.Ref] == "" {
			return false
		}
	}
	return true
}

// Participant returns the participant with the given ref.
func (t *Table) Participant(ref gamedb.DBRef) (Participant, bool) {
	for _, p := range t.Participants {
		if p.Ref == ref {
			return p, true
		}
	}
	return Participant{}, false
}

// Others returns every participant except ref.
func (t *Table) Others(ref gamedb.DBRef) []Participant {
	out := make([]Participant, 0, len(t.Participants))
	for _, p := range t.Participants {
		if p.Ref != ref {
			out = append(out, p)
		}
	}
	return out
}

// Rules is a game's strategy plugged into the generic session state machine.
type Rules interface {
	// Name is the canonical game name ("rps", "tictactoe").
	Name() string
	// Title is the display name.
	Title() string
	// Players bounds the participant count, initiator included. max 0 means no game limit.
	Players() (min, max int)
	// Sequential games take one move per turn from the head of TurnOrder.
	Sequential() bool
	// Setup prepares the table the first time the session enters Action.
	// intn returns a value in [0,n).
	Setup(t *Table, intn func(n int) int)
	// ActionVerbs lists every canonical action verb the game understands.
	ActionVerbs() []string
	// Normalize maps typed input to a canonical action verb.
	Normalize(input string) (string, bool)
	// Options lists the moves p could legally make right now.
	Options(t *Table, p Participant) []string
	// Validate checks a move without changing the table.
	Validate(t *Table, p Participant, move string) error
	// Apply makes a validated move on the table (sequential games only).
	Apply(t *Table, p Participant, move string)
	// Resolve computes the result. done is false when play continues.
	Resolve(t *Table) (o Outcome, done bool)
	// Prompt is the Action-phase text shown to p.
	Prompt(t *Table, p Participant) string
}
