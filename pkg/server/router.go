package server

import (
	"strings"
	"sync"

	"github.com/crystal-mush/mushgames/pkg/gamedb"
	"github.com/crystal-mush/mushgames/pkg/session"
)

// verbAliases maps shorthand a player may type to the verb it stands for.
var verbAliases = map[string]string{
	"y":   "accept",
	"yes": "accept",
	"n":   "decline",
	"no":  "decline",
	"r":   "rock",
	"p":   "paper",
	"s":   "scissors",
}

// VerbRouter holds the verbs each player has been granted by game sessions.
// It implements session.CommandRouter; the command dispatcher consults it
// before built-in commands.
type VerbRouter struct {
	mu     sync.RWMutex
	grants map[gamedb.DBRef]map[session.ID]session.Grant
}

// NewVerbRouter creates an empty router.
func NewVerbRouter() *VerbRouter {
	return &VerbRouter{grants: make(map[gamedb.DBRef]map[session.ID]session.Grant)}
}

// Grant replaces p's verbs for g.Session.
func (r *VerbRouter) Grant(p gamedb.DBRef, g session.Grant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byID := r.grants[p]
	if byID == nil {
		byID = make(map[session.ID]session.Grant)
		r.grants[p] = byID
	}
	byID[g.Session] = g
}

// Revoke drops p's verbs for session sid.
func (r *VerbRouter) Revoke(p gamedb.DBRef, sid session.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.grants[p], sid)
	if len(r.grants[p]) == 0 {
		delete(r.grants, p)
	}
}

// Match finds the session that should receive word from p.
func (r *VerbRouter) Match(p gamedb.DBRef, word string) (session.ID, bool) {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return "", false
	}
	verb := word
	if alias, ok := verbAliases[word]; ok {
		verb = alias
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, g := range r.grants[p] {
		if g.Allows(verb) {
			return id, true
		}
	}
	return "", false
}

// Granted returns a copy of p's live grants.
func (r *VerbRouter) Granted(p gamedb.DBRef) []session.Grant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]session.Grant, 0, len(r.grants[p]))
	for _, g := range r.grants[p] {
		out = append(out, g)
	}
	return out
}

var _ session.CommandRouter = (*VerbRouter)(nil)
