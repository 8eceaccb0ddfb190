package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crystal-mush/mushgames/pkg/gamedb"
)

func TestDispatcherDeliversInOrder(t *testing.T) {
	r := require.New(t)
	bus := NewBus()
	sub := &mockSubscriber{}
	player := gamedb.DBRef(3)
	bus.Subscribe(player, sub)

	d := NewDispatcher(bus, 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()

	for _, text := range []string{"one", "two", "three"} {
		r.True(d.Post(Event{Type: EvNotice, Player: player, Text: text}))
	}

	r.Eventually(func() bool { return len(sub.Events()) == 3 }, time.Second, 5*time.Millisecond)
	evs := sub.Events()
	r.Equal("one", evs[0].Text)
	r.Equal("two", evs[1].Text)
	r.Equal("three", evs[2].Text)

	cancel()
	<-done
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	r := require.New(t)
	d := NewDispatcher(NewBus(), 1)

	r.True(d.Post(Event{Type: EvText, Player: 1}))
	r.False(d.Post(Event{Type: EvText, Player: 1}))
	r.Equal(int64(1), d.Dropped())
}

func TestDispatcherDrainsOnShutdown(t *testing.T) {
	r := require.New(t)
	bus := NewBus()
	sub := &mockSubscriber{}
	bus.Subscribe(1, sub)

	d := NewDispatcher(bus, 4)
	d.Post(Event{Type: EvText, Player: 1, Text: "late"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.NoError(d.Run(ctx))
	r.Len(sub.Events(), 1)
}

func TestDispatcherKeepsOutcomesWhenFull(t *testing.T) {
	r := require.New(t)
	bus := NewBus()
	sub := &mockSubscriber{}
	bus.Subscribe(1, sub)

	d := NewDispatcher(bus, 2)
	r.True(d.Post(Event{Type: EvPrompt, Player: 1, Text: "a"}))
	r.True(d.Post(Event{Type: EvPrompt, Player: 1, Text: "b"}))
	r.True(d.Post(Event{Type: EvOutcome, Player: 1, Text: "end"}))
	r.True(d.Post(Event{Type: EvNotice, Player: 1, Text: "c"}))
	r.False(d.Post(Event{Type: EvNotice, Player: 1, Text: "d"}))
	r.True(d.Post(Event{Type: EvOutcome, Player: 1, Text: "end2"}))
	r.Equal(int64(1), d.Dropped())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.NoError(d.Run(ctx))

	var got []string
	for _, ev := range sub.Events() {
		got = append(got, ev.Text)
	}
	r.Equal([]string{"a", "b", "end", "c", "end2"}, got)
}
