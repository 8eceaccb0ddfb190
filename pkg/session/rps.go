package session

import (
	"strings"

	"github.com/samber/lo"

	"github.com/crystal-mush/mushgames/pkg/gamedb"
)

// rpsBeats maps each move to the move it defeats.
var rpsBeats = map[string]string{
	"rock":     "scissors",
	"paper":    "rock",
	"scissors": "paper",
}

var rpsAliases = map[string]string{
	"r": "rock",
	"p": "paper",
	"s": "scissors",
}

// Beats reports whether move a defeats move b.
func Beats(a, b string) bool {
	return rpsBeats[a] == b
}

// RPS is simultaneous rock-paper-scissors for two or more players.
type RPS struct{}

func (RPS) Name() string            { return "rps" }
func (RPS) Title() string           { return "Rock Paper Scissors" }
func (RPS) Players() (int, int)     { return 2, 0 }
func (RPS) Sequential() bool        { return false }
func (RPS) Setup(*Table, func(int) int) {}
func (RPS) Apply(*Table, Participant, string) {}

func (RPS) ActionVerbs() []string {
	return []string{"rock", "paper", "scissors"}
}

func (RPS) Normalize(input string) (string, bool) {
	input = strings.ToLower(strings.TrimSpace(input))
	if full, ok := rpsAliases[input]; ok {
		return full, true
	}
	_, ok := rpsBeats[input]
	return input, ok
}

func (r RPS) Options(t *Table, p Participant) []string {
	if t.Responses[p.Ref] != "" {
		return nil
	}
	return r.ActionVerbs()
}

func (RPS) Validate(_ *Table, _ Participant, move string) error {
	if _, ok := rpsBeats[move]; !ok {
		return ErrIllegalMove
	}
	return nil
}

func (RPS) Prompt(*Table, Participant) string {
	return "Select an action: [R]ock, [P]aper, [S]cissors?"
}

// Resolve scores the round. With exactly two distinct moves on the table
// the holders of the winning move win; one or three distinct moves is a draw.
func (RPS) Resolve(t *Table) (Outcome, bool) {
	moves := make(map[gamedb.DBRef]string, len(t.Participants))
	for _, p := range t.Participants {
		m := t.Responses[p.Ref]
		if m == "" {
			return Outcome{}, false
		}
		moves[p.Ref] = m
	}

	distinct := lo.Uniq(lo.Values(moves))
	if len(distinct) != 2 {
		return Outcome{Kind: OutcomeDraw, Moves: moves}, true
	}
	winning := distinct[0]
	if Beats(distinct[1], distinct[0]) {
		winning = distinct[1]
	}
	winners, losers := lo.FilterReject(t.Participants, func(p Participant, _ int) bool {
		return moves[p.Ref] == winning
	})
	return Outcome{Kind: OutcomeWin, Winners: winners, Losers: losers, Moves: moves}, true
}
