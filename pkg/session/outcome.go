package session

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/crystal-mush/mushgames/pkg/gamedb"
)

// OutcomeKind classifies how a session ended.
type OutcomeKind int

const (
	OutcomeWin OutcomeKind = iota
	OutcomeDraw
	OutcomeDeclined
	OutcomeForfeit
	OutcomeTimeout
	OutcomeAborted
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeWin:
		return "win"
	case OutcomeDraw:
		return "draw"
	case OutcomeDeclined:
		return "declined"
	case OutcomeForfeit:
		return "forfeit"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Outcome is the final result of a session.
type Outcome struct {
	Kind    OutcomeKind
	Winners []Participant
	Losers  []Participant
	// By is who declined or forfeited.
	By Participant
	// Moves holds the final simultaneous moves, keyed by player.
	Moves  map[gamedb.DBRef]string
	Reason string
}

// Won reports whether ref is among the winners.
func (o Outcome) Won(ref gamedb.DBRef) bool {
	return lo.ContainsBy(o.Winners, func(p Participant) bool { return p.Ref == ref })
}

// Lost reports whether ref is among the losers.
func (o Outcome) Lost(ref gamedb.DBRef) bool {
	return lo.ContainsBy(o.Losers, func(p Participant) bool { return p.Ref == ref })
}

// Message is the final text shown to viewer.
func (o Outcome) Message(viewer gamedb.DBRef) string {
	switch o.Kind {
	case OutcomeWin:
		verdict := "You have lost."
		if o.Won(viewer) {
			verdict = "You have won!"
		}
		return fmt.Sprintf("%s %s won. %s %s lost. %s",
			names(o.Winners), hasHave(o.Winners), names(o.Losers), hasHave(o.Losers), verdict)
	case OutcomeDraw:
		return "The game is a draw."
	case OutcomeDeclined:
		if o.By.Ref == viewer {
			return "You have declined. The game is cancelled."
		}
		return fmt.Sprintf("%s has declined. The game is cancelled.", o.By.Name)
	case OutcomeForfeit:
		if o.By.Ref == viewer {
			return "You have forfeited the game."
		}
		return fmt.Sprintf("%s has forfeited. You have won!", o.By.Name)
	case OutcomeTimeout:
		return "Game has ended due to inaction."
	default:
		if o.Reason != "" {
			return "Game aborted: " + o.Reason + "."
		}
		return "Game aborted."
	}
}

func names(ps []Participant) string {
	ns := lo.Map(ps, func(p Participant, _ int) string { return p.Name })
	switch len(ns) {
	case 0:
		return "No one"
	case 1:
		return ns[0]
	default:
		return strings.Join(ns[:len(ns)-1], ", ") + " and " + ns[len(ns)-1]
	}
}

func hasHave(ps []Participant) string {
	if len(ps) > 1 {
		return "have"
	}
	return "has"
}
