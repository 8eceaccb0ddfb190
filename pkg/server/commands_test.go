package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRPSThroughCommands(t *testing.T) {
	r := require.New(t)
	tg := newTestGame(t)
	alice, aliceOut := tg.connect(t, "Alice")
	bob, bobOut := tg.connect(t, "Bob")

	DispatchCommand(tg.Game, alice, "rps bob")
	eventually(t, bobOut, "Alice challenges you to Rock Paper Scissors")
	eventually(t, aliceOut, "You challenge Bob")

	DispatchCommand(tg.Game, bob, "y")
	eventually(t, aliceOut, "Select an action")
	eventually(t, bobOut, "Select an action")

	DispatchCommand(tg.Game, alice, "r")
	eventually(t, aliceOut, "You have selected rock")
	DispatchCommand(tg.Game, bob, "paper")

	eventually(t, aliceOut, "You have lost.")
	eventually(t, bobOut, "You have won!")
	eventually(t, bobOut, "Alice chose rock. Bob chose paper.")

	_, busy := tg.Sessions.SessionOf(alice.Player)
	r.False(busy)
	r.Empty(tg.Router.Granted(bob.Player))

	r.Eventually(func() bool {
		recs, err := tg.store.History("Bob", 10)
		return err == nil && len(recs) == 1
	}, 2*time.Second, 5*time.Millisecond)
	recs, err := tg.store.History("Bob", 10)
	r.NoError(err)
	r.Equal("rps", recs[0].Game)
	r.Equal("win", recs[0].Outcome)
	r.Equal([]string{"Bob"}, recs[0].Winners)
}

func TestTicTacToeThroughCommands(t *testing.T) {
	tg := newTestGame(t)
	alice, aliceOut := tg.connect(t, "Alice")
	bob, bobOut := tg.connect(t, "Bob")

	DispatchCommand(tg.Game, alice, "ttt bob")
	eventually(t, bobOut, "Alice challenges you to Tic Tac Toe")
	DispatchCommand(tg.Game, bob, "accept")

	// The fixed shuffle puts the invitee first.
	eventually(t, bobOut, "You play X. Bob moves first.")
	eventually(t, bobOut, "YOUR TURN")
	eventually(t, aliceOut, "OPP. TURN")

	aliceOut.Reset()
	DispatchCommand(tg.Game, alice, "b2")
	assert.Contains(t, aliceOut.Lines(), "It is not your turn yet.")

	for i, move := range []string{"a1", "b1", "a2", "b2", "a3"} {
		d := bob
		if i%2 == 1 {
			d = alice
		}
		DispatchCommand(tg.Game, d, move)
	}
	eventually(t, bobOut, "You have won!")
	eventually(t, aliceOut, "You have lost.")

	_, busy := tg.Sessions.SessionOf(bob.Player)
	assert.False(t, busy)
}

func TestOccupiedCellIsIllegal(t *testing.T) {
	tg := newTestGame(t)
	alice, aliceOut := tg.connect(t, "Alice")
	bob, bobOut := tg.connect(t, "Bob")

	DispatchCommand(tg.Game, alice, "tictactoe bob")
	eventually(t, bobOut, "Accept?")
	DispatchCommand(tg.Game, bob, "accept")
	eventually(t, bobOut, "YOUR TURN")

	DispatchCommand(tg.Game, bob, "b2")
	DispatchCommand(tg.Game, alice, "b2")
	assert.True(t, aliceOut.Saw("That is not a legal move."))
	_, busy := tg.Sessions.SessionOf(alice.Player)
	assert.True(t, busy)
}

func TestChallengeErrors(t *testing.T) {
	tg := newTestGame(t)
	alice, aliceOut := tg.connect(t, "Alice")
	_, bobOut := tg.connect(t, "Bob")
	carol, carolOut := tg.connect(t, "Carol")

	DispatchCommand(tg.Game, alice, "rps")
	assert.True(t, aliceOut.Saw("Challenge whom? (rps <player>)"))

	DispatchCommand(tg.Game, alice, "rps zed")
	assert.True(t, aliceOut.Saw("No one to play with: could not find zed."))

	DispatchCommand(tg.Game, alice, "tictactoe bob carol")
	assert.True(t, aliceOut.Saw("Wrong number of players"))

	DispatchCommand(tg.Game, alice, "battle bob")
	eventually(t, bobOut, "Alice challenges you")

	DispatchCommand(tg.Game, alice, "rps carol")
	assert.True(t, aliceOut.Saw("You are already in a game."))

	DispatchCommand(tg.Game, carol, "rps bob")
	assert.True(t, carolOut.Saw("Bob is already in a game."))
}

func TestForfeitCommand(t *testing.T) {
	tg := newTestGame(t)
	alice, aliceOut := tg.connect(t, "Alice")
	bob, bobOut := tg.connect(t, "Bob")

	DispatchCommand(tg.Game, alice, "forfeit")
	assert.True(t, aliceOut.Saw("You are not in a game."))

	DispatchCommand(tg.Game, alice, "rps bob")
	eventually(t, bobOut, "Accept?")
	DispatchCommand(tg.Game, bob, "accept")
	eventually(t, bobOut, "Select an action")

	DispatchCommand(tg.Game, alice, "forfeit")
	eventually(t, aliceOut, "You have forfeited the game.")
	eventually(t, bobOut, "Alice has forfeited. You have won!")

	_, busy := tg.Sessions.SessionOf(bob.Player)
	assert.False(t, busy)
}

func TestDeclineCancels(t *testing.T) {
	tg := newTestGame(t)
	alice, aliceOut := tg.connect(t, "Alice")
	bob, bobOut := tg.connect(t, "Bob")

	DispatchCommand(tg.Game, alice, "rps bob")
	eventually(t, bobOut, "Accept?")
	DispatchCommand(tg.Game, bob, "no")
	eventually(t, bobOut, "You have declined. The game is cancelled.")
	eventually(t, aliceOut, "Bob has declined. The game is cancelled.")

	// "no" is only a verb while an invitation is open.
	bobOut.Reset()
	DispatchCommand(tg.Game, bob, "no")
	assert.True(t, bobOut.Saw("Huh?"))
	_, busy := tg.Sessions.SessionOf(alice.Player)
	assert.False(t, busy)
}

func TestInvitationTimesOut(t *testing.T) {
	tg := newTestGame(t)
	alice, aliceOut := tg.connect(t, "Alice")
	_, bobOut := tg.connect(t, "Bob")

	DispatchCommand(tg.Game, alice, "rps bob")
	eventually(t, bobOut, "Accept?")

	tg.clock.Advance(121 * time.Second)
	eventually(t, aliceOut, "Game has ended due to inaction.")
	eventually(t, bobOut, "Game has ended due to inaction.")
}

func TestDisconnectForfeits(t *testing.T) {
	tg := newTestGame(t)
	alice, _ := tg.connect(t, "Alice")
	bob, bobOut := tg.connect(t, "Bob")

	DispatchCommand(tg.Game, alice, "rps bob")
	eventually(t, bobOut, "Accept?")
	DispatchCommand(tg.Game, bob, "accept")
	eventually(t, bobOut, "Select an action")

	// A second connection keeps the player in the game.
	second, _ := tg.connect(t, "Alice")
	tg.DisconnectPlayer(second)
	tg.Conns.Remove(second)
	_, busy := tg.Sessions.SessionOf(alice.Player)
	require.True(t, busy)

	tg.DisconnectPlayer(alice)
	eventually(t, bobOut, "Alice has forfeited. You have won!")
	assert.True(t, bobOut.Saw("Alice has disconnected."))
}

func TestSayAndPose(t *testing.T) {
	tg := newTestGame(t)
	alice, aliceOut := tg.connect(t, "Alice")
	_, bobOut := tg.connect(t, "Bob")

	DispatchCommand(tg.Game, alice, `"hello there`)
	eventually(t, aliceOut, `You say "hello there"`)
	eventually(t, bobOut, `Alice says "hello there"`)

	DispatchCommand(tg.Game, alice, ":waves.")
	eventually(t, bobOut, "Alice waves.")
	eventually(t, aliceOut, "Alice waves.")

	DispatchCommand(tg.Game, alice, "say")
	assert.True(t, aliceOut.Saw("Say what?"))
}

func TestLookAndWho(t *testing.T) {
	tg := newTestGame(t)
	alice, aliceOut := tg.connect(t, "Alice")
	tg.connect(t, "Bob")

	DispatchCommand(tg.Game, alice, "look")
	assert.True(t, aliceOut.Saw("Lobby(#"))
	assert.True(t, aliceOut.Saw("  Bob"))

	DispatchCommand(tg.Game, alice, "WHO")
	assert.True(t, aliceOut.Saw("2 Players logged in."))

	DispatchCommand(tg.Game, alice, "xyzzy")
	assert.True(t, aliceOut.Saw(`Huh?  (Type "help" for help.)`))
}

func TestGamesCommand(t *testing.T) {
	tg := newTestGame(t)
	alice, aliceOut := tg.connect(t, "Alice")
	_, bobOut := tg.connect(t, "Bob")

	DispatchCommand(tg.Game, alice, "games")
	assert.True(t, aliceOut.Saw("rps (Rock Paper Scissors, 2+ players)"))
	assert.True(t, aliceOut.Saw("tictactoe (Tic Tac Toe, 2 players)"))
	assert.True(t, aliceOut.Saw("You are not in a game."))

	DispatchCommand(tg.Game, alice, "rps bob")
	eventually(t, bobOut, "Accept?")
	aliceOut.Reset()
	DispatchCommand(tg.Game, alice, "games")
	assert.True(t, aliceOut.Saw("You are playing rps"))
	assert.True(t, aliceOut.Saw("Phase: invitation. Time left: 2m0s."))
	assert.True(t, aliceOut.Saw("You may: decline"))
}

func TestStatsAndTop(t *testing.T) {
	tg := newTestGame(t)
	alice, aliceOut := tg.connect(t, "Alice")
	bob, bobOut := tg.connect(t, "Bob")

	DispatchCommand(tg.Game, alice, "top")
	assert.True(t, aliceOut.Saw("Nobody has finished a game yet."))
	DispatchCommand(tg.Game, alice, "history")
	assert.True(t, aliceOut.Saw("No games on record for Alice."))

	DispatchCommand(tg.Game, alice, "rps bob")
	eventually(t, bobOut, "Accept?")
	DispatchCommand(tg.Game, bob, "accept")
	eventually(t, bobOut, "Select an action")
	DispatchCommand(tg.Game, alice, "scissors")
	DispatchCommand(tg.Game, bob, "paper")
	eventually(t, aliceOut, "You have won!")

	require.Eventually(t, func() bool {
		st, err := tg.store.Stats("Alice")
		return err == nil && st.Played == 1
	}, 2*time.Second, 5*time.Millisecond)

	aliceOut.Reset()
	DispatchCommand(tg.Game, alice, "stats")
	assert.True(t, aliceOut.Saw("Alice: 1 played, 1 won, 0 lost, 0 drawn."))
	DispatchCommand(tg.Game, alice, "stats bob")
	assert.True(t, aliceOut.Saw("Bob: 1 played, 0 won, 1 lost, 0 drawn."))
	DispatchCommand(tg.Game, alice, "stats nobody")
	assert.True(t, aliceOut.Saw("nobody: 0 played, 0 won, 0 lost, 0 drawn."))
	DispatchCommand(tg.Game, alice, "history")
	assert.True(t, aliceOut.Saw("Alice beat Bob"))
	DispatchCommand(tg.Game, alice, "history bob")
	assert.True(t, aliceOut.Saw("Last 1 game(s) for Bob:"))
	DispatchCommand(tg.Game, alice, "top")
	assert.True(t, aliceOut.Saw("Alice"))
}

func TestGameErrorText(t *testing.T) {
	assert.Equal(t, "Something broke.", sentence("something broke"))
	assert.Equal(t, "", sentence(""))
	assert.Equal(t, "Done.", sentence("done."))
}
