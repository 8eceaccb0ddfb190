package events

import (
	"sync"
	"testing"

	"github.com/crystal-mush/mushgames/pkg/gamedb"
)

// mockSubscriber implements Subscriber for testing.
type mockSubscriber struct {
	mu       sync.Mutex
	events   []Event
	isClosed bool
}

func (m *mockSubscriber) Receive(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *mockSubscriber) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isClosed
}

func (m *mockSubscriber) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Event, len(m.events))
	copy(cp, m.events)
	return cp
}

func TestBusEmitToPlayer(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{}

	player := gamedb.DBRef(1)
	bus.Subscribe(player, sub)

	ev := Event{
		Type:   EvSay,
		Player: player,
		Source: player,
		Text:   "Hello world",
	}
	bus.Emit(ev)

	events := sub.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Text != "Hello world" {
		t.Errorf("expected text %q, got %q", "Hello world", events[0].Text)
	}
	if events[0].Type != EvSay {
		t.Errorf("expected type EvSay, got %v", events[0].Type)
	}
}

func TestBusGlobalSubscriber(t *testing.T) {
	bus := NewBus()
	global := &mockSubscriber{}
	bus.SubscribeGlobal(global)

	player := gamedb.DBRef(5)
	ev := Event{Type: EvOutcome, Player: player, Session: "abc", Text: "You have won."}
	bus.Emit(ev)

	events := global.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 global event, got %d", len(events))
	}
	if events[0].Session != "abc" {
		t.Errorf("expected session %q, got %q", "abc", events[0].Session)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{}
	player := gamedb.DBRef(1)

	bus.Subscribe(player, sub)
	bus.Unsubscribe(player, sub)

	bus.Emit(Event{Type: EvText, Player: player, Text: "should not arrive"})

	if len(sub.Events()) != 0 {
		t.Error("expected no events after unsubscribe")
	}
}

func TestBusClosedSubscriberSkipped(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{isClosed: true}
	player := gamedb.DBRef(1)

	bus.Subscribe(player, sub)
	bus.Emit(Event{Type: EvText, Player: player, Text: "no delivery"})

	if len(sub.Events()) != 0 {
		t.Error("closed subscriber should not receive events")
	}
}

func TestBusEmitToRoom(t *testing.T) {
	db, room, p1, p2 := twoPlayerRoom()

	bus := NewBus()
	sub1 := &mockSubscriber{}
	sub2 := &mockSubscriber{}
	bus.Subscribe(p1, sub1)
	bus.Subscribe(p2, sub2)

	ev := Event{Type: EvSay, Source: p1, Text: "Hello room"}
	bus.EmitToRoom(db, room, ev)

	if len(sub1.Events()) != 1 {
		t.Errorf("player 1: expected 1 event, got %d", len(sub1.Events()))
	}
	if len(sub2.Events()) != 1 {
		t.Errorf("player 2: expected 1 event, got %d", len(sub2.Events()))
	}
}

func TestBusEmitToRoomExcept(t *testing.T) {
	db, room, p1, p2 := twoPlayerRoom()

	bus := NewBus()
	sub1 := &mockSubscriber{}
	sub2 := &mockSubscriber{}
	bus.Subscribe(p1, sub1)
	bus.Subscribe(p2, sub2)

	ev := Event{Type: EvSay, Source: p1, Text: "Hello others"}
	bus.EmitToRoomExcept(db, room, p1, ev)

	if len(sub1.Events()) != 0 {
		t.Errorf("player 1 (excluded): expected 0 events, got %d", len(sub1.Events()))
	}
	if len(sub2.Events()) != 1 {
		t.Errorf("player 2: expected 1 event, got %d", len(sub2.Events()))
	}
}

func TestBusCleanup(t *testing.T) {
	bus := NewBus()
	active := &mockSubscriber{}
	closed := &mockSubscriber{isClosed: true}
	player := gamedb.DBRef(1)

	bus.Subscribe(player, active)
	bus.Subscribe(player, closed)
	bus.SubscribeGlobal(&mockSubscriber{isClosed: true})

	bus.Cleanup()

	if bus.PlayerSubscribers(player) != 1 {
		t.Errorf("expected 1 active subscriber, got %d", bus.PlayerSubscribers(player))
	}
}

func TestEventTypeString(t *testing.T) {
	tests := []struct {
		t    EventType
		want string
	}{
		{EvText, "text"},
		{EvSay, "say"},
		{EvInvite, "invite"},
		{EvOutcome, "outcome"},
		{EventType(999), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.t.String(); got != tt.want {
			t.Errorf("EventType(%d).String() = %q, want %q", tt.t, got, tt.want)
		}
	}
}

func TestEventTypeIsGame(t *testing.T) {
	if EvSay.IsGame() {
		t.Error("EvSay should not be a game event")
	}
	for _, typ := range []EventType{EvInvite, EvPrompt, EvBoard, EvOutcome, EvNotice} {
		if !typ.IsGame() {
			t.Errorf("%s should be a game event", typ)
		}
	}
}

func twoPlayerRoom() (*gamedb.Database, gamedb.DBRef, gamedb.DBRef, gamedb.DBRef) {
	db := gamedb.NewDatabase()
	room := db.Create("Lobby", gamedb.TypeRoom, gamedb.Nothing, 0)
	p1 := db.Create("Alice", gamedb.TypePlayer, room.DBRef, 0)
	p2 := db.Create("Bob", gamedb.TypePlayer, room.DBRef, 0)
	return db, room.DBRef, p1.DBRef, p2.DBRef
}
