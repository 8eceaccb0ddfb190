package server

import (
	"log"
	"time"

	"github.com/samber/lo"

	"github.com/crystal-mush/mushgames/pkg/boltstore"
	"github.com/crystal-mush/mushgames/pkg/session"
)

// Journal writes every finished session to the store.
type Journal struct {
	Store *boltstore.Store
	// Now stamps the end time. Defaults to time.Now.
	Now func() time.Time
}

func (j Journal) SessionStarted(session.Info) {}

// SessionEnded appends the result. Aborted sessions are logged but not tallied.
func (j Journal) SessionEnded(info session.Info, o session.Outcome) {
	if o.Kind == session.OutcomeAborted {
		log.Printf("journal: session %s aborted (%s), not recorded", info.ID.Short(), o.Reason)
		return
	}
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	rec := boltstore.Record{
		Session: string(info.ID),
		Game:    info.Game,
		Outcome: o.Kind.String(),
		Players: participantNames(info.Participants),
		Winners: participantNames(o.Winners),
		Losers:  participantNames(o.Losers),
		By:      o.By.Name,
		Started: info.Started,
		Ended:   now(),
	}
	if _, err := j.Store.AppendRecord(rec); err != nil {
		log.Printf("journal: WARNING: could not record session %s: %v", info.ID.Short(), err)
	}
}

func participantNames(ps []session.Participant) []string {
	return lo.Map(ps, func(p session.Participant, _ int) string { return p.Name })
}

var _ session.Observer = Journal{}
