package bots

import (
	"log"

	"github.com/crystal-mush/mushgames/pkg/events"
	"github.com/crystal-mush/mushgames/pkg/gamedb"
)

// Roster is the set of robot players living in the world.
type Roster struct {
	bots []*Bot
	bus  *events.Bus
}

// Spawn creates a ROBOT player in room for each name (reusing an
// existing player of that name) and subscribes a Bot for it.
func Spawn(db *gamedb.Database, bus *events.Bus, room gamedb.DBRef, games Responder, names []string, opts ...Option) *Roster {
	r := &Roster{bus: bus}
	for _, name := range names {
		ref := db.LookupPlayer(name)
		if ref == gamedb.Nothing {
			ref = db.Create(name, gamedb.TypePlayer, room, gamedb.FlagRobot).DBRef
		}
		b := New(ref, name, games, opts...)
		bus.Subscribe(ref, b)
		r.bots = append(r.bots, b)
		log.Printf("bots: %s (#%d) ready", name, ref)
	}
	return r
}

// Bots returns the spawned bots.
func (r *Roster) Bots() []*Bot {
	return r.bots
}

// Close stops every bot and drops it from the bus.
func (r *Roster) Close() {
	for _, b := range r.bots {
		b.Close()
		r.bus.Unsubscribe(b.Ref, b)
	}
}
