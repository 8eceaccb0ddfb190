package bots

import (
	"errors"
	"log"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/crystal-mush/mushgames/pkg/events"
	"github.com/crystal-mush/mushgames/pkg/gamedb"
	"github.com/crystal-mush/mushgames/pkg/session"
)

// Responder accepts game input on behalf of a player.
type Responder interface {
	Submit(id session.ID, p gamedb.DBRef, input string) error
}

// Bot is a robot player. It listens to its own game events on the bus
// and answers after a short think delay: it accepts every invitation and
// picks a random legal move whenever it is prompted.
type Bot struct {
	Ref  gamedb.DBRef
	Name string

	games  Responder
	clock  clockwork.Clock
	think  time.Duration
	intn   func(int) int
	closed atomic.Bool
}

// Option configures a Bot.
type Option func(*Bot)

// WithClock sets the clock used for think delays.
func WithClock(c clockwork.Clock) Option {
	return func(b *Bot) { b.clock = c }
}

// WithThink sets how long the bot waits before answering.
func WithThink(d time.Duration) Option {
	return func(b *Bot) { b.think = d }
}

// WithIntn sets the random source used to pick moves.
func WithIntn(fn func(int) int) Option {
	return func(b *Bot) { b.intn = fn }
}

// New creates a bot for the player ref.
func New(ref gamedb.DBRef, name string, games Responder, opts ...Option) *Bot {
	b := &Bot{
		Ref:   ref,
		Name:  name,
		games: games,
		clock: clockwork.NewRealClock(),
		think: time.Second,
		intn:  rand.IntN,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Receive implements events.Subscriber.
func (b *Bot) Receive(ev events.Event) {
	if ev.Session == "" || ev.Player != b.Ref {
		return
	}
	id := session.ID(ev.Session)
	switch ev.Type {
	case events.EvInvite:
		b.respond(id, "accept")
	case events.EvPrompt, events.EvBoard:
		if len(ev.Verbs) > 0 {
			b.respond(id, ev.Verbs[b.intn(len(ev.Verbs))])
		}
	}
}

// Closed implements events.Subscriber.
func (b *Bot) Closed() bool {
	return b.closed.Load()
}

// Close stops the bot from answering.
func (b *Bot) Close() {
	b.closed.Store(true)
}

func (b *Bot) respond(id session.ID, input string) {
	b.clock.AfterFunc(b.think, func() {
		if b.Closed() {
			return
		}
		err := b.games.Submit(id, b.Ref, input)
		if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
			log.Printf("bot %s: %s in game %s: %v", b.Name, input, id.Short(), err)
		}
	})
}
