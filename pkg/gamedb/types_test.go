package gamedb

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func newWorld() (*Database, DBRef, DBRef) {
	db := NewDatabase()
	lobby := db.Create("Lobby", TypeRoom, Nothing, 0)
	garden := db.Create("Garden", TypeRoom, Nothing, 0)
	db.Create("Alice", TypePlayer, lobby.DBRef, 0)
	db.Create("Alfred", TypePlayer, lobby.DBRef, 0)
	db.Create("Bob", TypePlayer, lobby.DBRef, 0)
	db.Create("Carol", TypePlayer, garden.DBRef, FlagRobot)
	return db, lobby.DBRef, garden.DBRef
}

func TestMatchPlayer(t *testing.T) {
	db, lobby, garden := newWorld()
	tests := []struct {
		name  string
		room  DBRef
		input string
		want  string
	}{
		{"exact", lobby, "Bob", "Bob"},
		{"case insensitive", lobby, "bOB", "Bob"},
		{"unique prefix", lobby, "b", "Bob"},
		{"exact beats prefix", lobby, "alice", "Alice"},
		{"other room not visible", lobby, "Carol", ""},
		{"star searches world", lobby, "*carol", "Carol"},
		{"robot in its room", garden, "car", "Carol"},
		{"empty", lobby, "  ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := db.MatchPlayer(tt.room, tt.input)
			if tt.want == "" {
				if ref != Nothing {
					t.Fatalf("MatchPlayer(%q) = #%d, want Nothing", tt.input, ref)
				}
				return
			}
			if ref < 0 {
				t.Fatalf("MatchPlayer(%q) = %d, want %s", tt.input, ref, tt.want)
			}
			if got := db.Name(ref); got != tt.want {
				t.Errorf("MatchPlayer(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestMatchPlayerAmbiguous(t *testing.T) {
	db, lobby, _ := newWorld()
	if ref := db.MatchPlayer(lobby, "al"); ref != Ambiguous {
		t.Errorf("expected Ambiguous, got %d", ref)
	}
}

func TestMatchPlayerByRef(t *testing.T) {
	r := require.New(t)
	db, lobby, _ := newWorld()
	bob := db.LookupPlayer("Bob")
	r.NotEqual(Nothing, bob)
	r.Equal(bob, db.MatchPlayer(lobby, "#"+strconv.Itoa(int(bob))))
	r.Equal(Nothing, db.MatchPlayer(lobby, "#9999"))
	r.Equal(Nothing, db.MatchPlayer(lobby, "#x"))
}

func TestContentsAndMove(t *testing.T) {
	r := require.New(t)
	db, lobby, garden := newWorld()
	r.Len(db.Contents(lobby), 3)
	r.Len(db.Contents(garden), 1)

	bob := db.LookupPlayer("bob")
	r.True(db.Move(bob, garden))
	r.Len(db.Contents(lobby), 2)
	r.Contains(db.Contents(garden), bob)
	r.False(db.Move(DBRef(42), garden))
}

func TestPlayersAndFlags(t *testing.T) {
	r := require.New(t)
	db, _, _ := newWorld()
	players := db.Players()
	r.Len(players, 4)
	r.Equal("Alice", players[0].Name)

	carol, ok := db.Get(db.LookupPlayer("Carol"))
	r.True(ok)
	r.True(carol.IsRobot())
	r.Equal("#77", db.Name(77))
	r.Equal("PLAYER", carol.Type.String())
}

func TestPutAdvancesNext(t *testing.T) {
	r := require.New(t)
	db := NewDatabase()
	db.Put(Object{DBRef: 5, Name: "Lobby", Type: TypeRoom, Location: Nothing})
	r.Equal(1, db.Len())

	next := db.Create("Alice", TypePlayer, 5, 0)
	r.Equal(DBRef(6), next.DBRef)
	r.Equal("Lobby", db.Name(5))
}
