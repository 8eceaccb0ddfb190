package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"

	"github.com/crystal-mush/mushgames/pkg/boltstore"
	"github.com/crystal-mush/mushgames/pkg/bots"
	"github.com/crystal-mush/mushgames/pkg/events"
	"github.com/crystal-mush/mushgames/pkg/gamedb"
	"github.com/crystal-mush/mushgames/pkg/session"
)

// CommandHandler is the signature for game command implementations.
type CommandHandler func(g *Game, d *Descriptor, args string, switches []string)

// Command represents a registered game command.
type Command struct {
	Name    string
	Handler CommandHandler
	Help    string
}

// gameAliases are extra command names for starting a game.
var gameAliases = map[string][]string{
	"rps":       {"battle", "challenge"},
	"tictactoe": {"ttt"},
}

// InitCommands registers all built-in commands plus one challenge
// command (and its aliases) per game.
func InitCommands(games []session.Rules) map[string]*Command {
	cmds := make(map[string]*Command)

	register := func(name, help string, handler CommandHandler) {
		cmds[strings.ToLower(name)] = &Command{Name: name, Handler: handler, Help: help}
	}

	register("say", "say <message>", cmdSay)
	register("pose", "pose <action>", cmdPose)
	register("look", "look", cmdLook)
	register("WHO", "WHO", cmdWho)
	register("help", "help [<topic>]", cmdHelp)
	register("QUIT", "QUIT", cmdQuit)

	register("games", "games", cmdGames)
	register("forfeit", "forfeit", cmdForfeit)
	register("history", "history [<player>]", cmdHistory)
	register("stats", "stats [<player>]", cmdStats)
	register("top", "top", cmdTop)

	for _, rules := range games {
		name := rules.Name()
		help := fmt.Sprintf("%s <player> [<player> ...]", name)
		if _, most := rules.Players(); most == 2 {
			help = fmt.Sprintf("%s <player>", name)
		}
		register(name, help, cmdChallenge(name))
		for _, alias := range gameAliases[name] {
			cmds[alias] = &Command{Name: alias, Handler: cmdChallenge(name)}
		}
	}
	return cmds
}

// Game holds the complete game state.
type Game struct {
	DB       *gamedb.Database
	Conns    *ConnManager
	Commands map[string]*Command
	Store    *boltstore.Store
	Conf     *GameConf
	ConfPath string
	Lobby    gamedb.DBRef
	EventBus *events.Bus
	Events   *events.Dispatcher
	Router   *VerbRouter
	Sessions *session.Manager
	Metrics  *Metrics
	Help     *HelpFile
	Bots     *bots.Roster
	clock    clockwork.Clock
}

// GameOption adjusts how NewGame wires the session manager.
type GameOption func(*gameOptions)

type gameOptions struct {
	clock clockwork.Clock
	intn  func(int) int
}

// WithClock sets the clock for session timers and bot think delays.
func WithClock(c clockwork.Clock) GameOption {
	return func(o *gameOptions) { o.clock = c }
}

// WithIntn sets the random source for turn order.
func WithIntn(fn func(int) int) GameOption {
	return func(o *gameOptions) { o.intn = fn }
}

// NewGame creates a Game over store's world, with players arriving in lobby.
func NewGame(store *boltstore.Store, lobby gamedb.DBRef, conf *GameConf, opts ...GameOption) *Game {
	o := gameOptions{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}

	bus := events.NewBus()
	conns := NewConnManager()
	conns.EventBus = bus
	g := &Game{
		DB:       store.DB(),
		Conns:    conns,
		Store:    store,
		Conf:     conf,
		Lobby:    lobby,
		EventBus: bus,
		Events:   events.NewDispatcher(bus, conf.EventQueue),
		Router:   NewVerbRouter(),
		Help:     mustBuiltinHelp(),
		clock:    o.clock,
	}
	g.Metrics = NewMetrics(time.Now(), conns.CountByTransport, g.Events.Dropped)
	g.Sessions = session.NewManager(session.Options{
		Clock:           o.clock,
		Messenger:       BusMessenger{Events: g.Events, DB: g.DB},
		Router:          g.Router,
		Lookup:          RoomLookup{DB: g.DB},
		Timeouts:        conf.Timeouts(),
		MaxParticipants: conf.MaxParticipants,
		Intn:            o.intn,
		Observers:       []session.Observer{Journal{Store: store}, g.Metrics},
	})
	g.Commands = InitCommands(g.Sessions.Games())
	return g
}

// Start runs the event dispatcher and the backup loop until ctx is cancelled.
func (g *Game) Start(ctx context.Context) {
	go g.Events.Run(ctx)
	go g.runBackups(ctx)
}

// SpawnBots puts a robot player for each name in the lobby.
func (g *Game) SpawnBots(names []string) {
	if len(names) == 0 {
		return
	}
	g.Bots = bots.Spawn(g.DB, g.EventBus, g.Lobby, g.Sessions, names,
		bots.WithClock(g.clock), bots.WithThink(g.Conf.BotThink()))
}

// Shutdown aborts every running game and stops the bots.
func (g *Game) Shutdown() {
	g.Sessions.Close()
	if g.Bots != nil {
		g.Bots.Close()
	}
}

// Post queues an event for ev.Player.
func (g *Game) Post(ev events.Event) {
	g.Events.Post(ev)
}

// PostRoomExcept queues a copy of ev for everyone in room except one player.
func (g *Game) PostRoomExcept(room, except gamedb.DBRef, ev events.Event) {
	ev.Room = room
	for _, ref := range g.DB.Contents(room) {
		if ref == except {
			continue
		}
		ev.Player = ref
		g.Events.Post(ev)
	}
}

// PlayerName returns a player's name.
func (g *Game) PlayerName(player gamedb.DBRef) string {
	return g.DB.Name(player)
}

// PlayerLocation returns the room a player is in.
func (g *Game) PlayerLocation(player gamedb.DBRef) gamedb.DBRef {
	if obj, ok := g.DB.Get(player); ok {
		return obj.Location
	}
	return gamedb.Nothing
}

// DispatchCommand parses and executes one line of player input. Verbs
// granted by a running game take precedence over built-in commands.
func DispatchCommand(g *Game, d *Descriptor, input string) {
	input = strings.TrimSpace(input)
	if input == "" {
		return
	}
	g.Metrics.CommandProcessed()

	switch input[0] {
	case '"':
		cmdSay(g, d, input[1:], nil)
		return
	case ':':
		cmdPose(g, d, input[1:], nil)
		return
	}

	var cmdName, args string
	if spaceIdx := strings.IndexByte(input, ' '); spaceIdx >= 0 {
		cmdName = input[:spaceIdx]
		args = strings.TrimSpace(input[spaceIdx+1:])
	} else {
		cmdName = input
	}

	if id, ok := g.Router.Match(d.Player, cmdName); ok {
		if err := g.Sessions.Submit(id, d.Player, cmdName); err != nil {
			d.Send(gameErrorText(err))
		}
		return
	}

	var switches []string
	if slashIdx := strings.IndexByte(cmdName, '/'); slashIdx >= 0 {
		parts := strings.Split(cmdName, "/")
		cmdName = parts[0]
		switches = parts[1:]
	}

	if cmd, ok := g.Commands[strings.ToLower(cmdName)]; ok {
		cmd.Handler(g, d, args, switches)
		return
	}
	d.Send("Huh?  (Type \"help\" for help.)")
}

// gameErrorText turns a session error into something to show the player.
func gameErrorText(err error) string {
	switch {
	case errors.Is(err, session.ErrNotYourTurn):
		return "It is not your turn yet."
	case errors.Is(err, session.ErrIllegalMove):
		return "That is not a legal move."
	case errors.Is(err, session.ErrWrongPhase):
		return "You can't do that right now."
	case errors.Is(err, session.ErrAlreadyResponded):
		return "You have already responded."
	case errors.Is(err, session.ErrSessionNotFound):
		return "That game is already over."
	case errors.Is(err, session.ErrNotParticipant):
		return "You are not playing that game."
	}
	return sentence(err.Error())
}

// sentence capitalizes msg and ends it with a period.
func sentence(msg string) string {
	if msg == "" {
		return msg
	}
	r := []rune(msg)
	r[0] = unicode.ToUpper(r[0])
	msg = string(r)
	if !strings.HasSuffix(msg, ".") {
		msg += "."
	}
	return msg
}

// --- Communication ---

func cmdSay(g *Game, d *Descriptor, args string, _ []string) {
	args = strings.TrimSpace(args)
	if args == "" {
		d.Send("Say what?")
		return
	}
	name := g.PlayerName(d.Player)
	loc := g.PlayerLocation(d.Player)
	data := map[string]any{"message": args, "speaker": name}

	g.Post(events.Event{
		Type:   events.EvSay,
		Player: d.Player,
		Source: d.Player,
		Room:   loc,
		Text:   fmt.Sprintf("You say \"%s\"", args),
		Data:   data,
	})
	g.PostRoomExcept(loc, d.Player, events.Event{
		Type:   events.EvSay,
		Source: d.Player,
		Text:   fmt.Sprintf("%s says \"%s\"", name, args),
		Data:   data,
	})
}

func cmdPose(g *Game, d *Descriptor, args string, _ []string) {
	args = strings.TrimSpace(args)
	if args == "" {
		d.Send("Pose what?")
		return
	}
	loc := g.PlayerLocation(d.Player)
	text := fmt.Sprintf("%s %s", g.PlayerName(d.Player), args)
	g.PostRoomExcept(loc, gamedb.Nothing, events.Event{Type: events.EvText, Source: d.Player, Text: text})
}

// --- Information ---

func cmdLook(g *Game, d *Descriptor, _ string, _ []string) {
	g.ShowRoom(d, g.PlayerLocation(d.Player))
}

// ShowRoom describes a room and who is in it.
func (g *Game) ShowRoom(d *Descriptor, room gamedb.DBRef) {
	obj, ok := g.DB.Get(room)
	if !ok {
		d.Send("You are nowhere.")
		return
	}
	d.Send(fmt.Sprintf("%s(#%d)", obj.Name, obj.DBRef))

	var lines []string
	for _, ref := range g.DB.Contents(room) {
		if ref == d.Player {
			continue
		}
		p, ok := g.DB.Get(ref)
		if !ok || p.Type != gamedb.TypePlayer {
			continue
		}
		if !p.IsRobot() && !g.Conns.IsConnected(ref) {
			continue
		}
		line := "  " + p.Name
		if p.IsRobot() {
			line += " (bot)"
		}
		if _, busy := g.Sessions.SessionOf(ref); busy {
			line += " [playing]"
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		d.Send("You are alone here.")
		return
	}
	d.Send("Players:")
	for _, l := range lines {
		d.Send(l)
	}
}

func cmdWho(g *Game, d *Descriptor, _ string, _ []string) {
	g.ShowWho(d)
}

// ShowWho displays the WHO list.
func (g *Game) ShowWho(d *Descriptor) {
	now := time.Now()
	d.Send(fmt.Sprintf("%-16s%9s %4s  %s", "Player Name", "On For", "Idle", "Game"))

	type whoEntry struct {
		name  string
		onFor string
		idle  string
		game  string
	}
	var entries []whoEntry
	for _, dd := range g.Conns.AllDescriptors() {
		if dd.State != ConnConnected {
			continue
		}
		game := ""
		if id, ok := g.Sessions.SessionOf(dd.Player); ok {
			if s, ok := g.Sessions.Session(id); ok {
				game = s.Info().Game
			}
		}
		entries = append(entries, whoEntry{
			name:  g.PlayerName(dd.Player),
			onFor: FormatConnTime(now.Sub(dd.ConnTime)),
			idle:  FormatIdleTime(now.Sub(dd.LastCmd)),
			game:  game,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	for _, e := range entries {
		d.Send(fmt.Sprintf("%-16s%9s %4s  %s", e.name, e.onFor, e.idle, e.game))
	}
	d.Send(fmt.Sprintf("%d Players logged in.", len(entries)))
}

func cmdQuit(_ *Game, d *Descriptor, _ string, _ []string) {
	d.Send("Goodbye!")
	d.Close()
}

// --- Games ---

// cmdChallenge starts game against the named players.
func cmdChallenge(game string) CommandHandler {
	return func(g *Game, d *Descriptor, args string, _ []string) {
		targets := strings.Fields(strings.ReplaceAll(args, ",", " "))
		if len(targets) == 0 {
			d.Send(fmt.Sprintf("Challenge whom? (%s <player>)", game))
			return
		}
		if _, busy := g.Sessions.SessionOf(d.Player); busy {
			d.Send("You are already in a game.")
			return
		}
		me := session.Participant{Ref: d.Player, Name: g.PlayerName(d.Player)}
		if _, err := g.Sessions.Create(game, me, targets); err != nil {
			d.Send(sentence(err.Error()))
		}
	}
}

func cmdForfeit(g *Game, d *Descriptor, _ string, _ []string) {
	if err := g.Sessions.Forfeit(d.Player); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			d.Send("You are not in a game.")
			return
		}
		d.Send(gameErrorText(err))
	}
}

func cmdGames(g *Game, d *Descriptor, _ string, _ []string) {
	list := lo.Map(g.Sessions.Games(), func(r session.Rules, _ int) string {
		least, most := r.Players()
		if most == least {
			return fmt.Sprintf("%s (%s, %d players)", r.Name(), r.Title(), least)
		}
		return fmt.Sprintf("%s (%s, %d+ players)", r.Name(), r.Title(), least)
	})
	d.Send("Games: " + strings.Join(list, ", ") + ".")

	id, ok := g.Sessions.SessionOf(d.Player)
	if !ok {
		d.Send("You are not in a game.")
		return
	}
	s, ok := g.Sessions.Session(id)
	if !ok {
		d.Send("You are not in a game.")
		return
	}
	info := s.Info()
	names := lo.Map(info.Participants, func(p session.Participant, _ int) string { return p.Name })
	d.Send(fmt.Sprintf("You are playing %s [%s] with %s.", info.Game, id.Short(), strings.Join(names, ", ")))
	line := fmt.Sprintf("Phase: %s.", info.Phase)
	if !info.Deadline.IsZero() {
		left := info.Deadline.Sub(g.clock.Now()).Round(time.Second)
		line += fmt.Sprintf(" Time left: %s.", left)
	}
	d.Send(line)
	for _, gr := range g.Router.Granted(d.Player) {
		if gr.Session == id {
			d.Send("You may: " + strings.Join(gr.Verbs, ", ") + ".")
		}
	}
}

func cmdHistory(g *Game, d *Descriptor, args string, _ []string) {
	name := strings.TrimSpace(args)
	if name == "" {
		name = g.PlayerName(d.Player)
	}
	recs, err := g.Store.History(name, g.Conf.HistoryLimit)
	if err != nil {
		log.Printf("[%d] history %s: %v", d.ID, name, err)
		d.Send("History is unavailable right now.")
		return
	}
	if len(recs) == 0 {
		d.Send(fmt.Sprintf("No games on record for %s.", name))
		return
	}
	if stored, ok := lo.Find(recs[0].Players, func(n string) bool { return strings.EqualFold(n, name) }); ok {
		name = stored
	}
	d.Send(fmt.Sprintf("Last %d game(s) for %s:", len(recs), name))
	for _, rec := range recs {
		d.Send(fmt.Sprintf("  %s  %-10s %-9s %s", rec.Ended.Format("2006-01-02 15:04"), rec.Game, rec.Outcome, summarize(rec)))
	}
}

// summarize describes who did what in a journal record.
func summarize(rec boltstore.Record) string {
	switch rec.Outcome {
	case "win", "forfeit":
		s := strings.Join(rec.Winners, ", ") + " beat " + strings.Join(rec.Losers, ", ")
		if rec.By != "" {
			s += " (" + rec.By + " forfeited)"
		}
		return s
	case "declined":
		return rec.By + " declined"
	}
	return strings.Join(rec.Players, ", ")
}

func cmdStats(g *Game, d *Descriptor, args string, _ []string) {
	name := strings.TrimSpace(args)
	if name == "" {
		name = g.PlayerName(d.Player)
	}
	st, err := g.Store.Stats(name)
	if err != nil {
		log.Printf("[%d] stats %s: %v", d.ID, name, err)
		d.Send("Stats are unavailable right now.")
		return
	}
	if st.Played > 0 && st.Name != "" {
		name = st.Name
	}
	d.Send(fmt.Sprintf("%s: %d played, %d won, %d lost, %d drawn.", name, st.Played, st.Wins, st.Losses, st.Draws))
}

func cmdTop(g *Game, d *Descriptor, _ string, _ []string) {
	board, err := g.Store.Leaderboard(10)
	if err != nil {
		log.Printf("[%d] leaderboard: %v", d.ID, err)
		d.Send("The leaderboard is unavailable right now.")
		return
	}
	if len(board) == 0 {
		d.Send("Nobody has finished a game yet.")
		return
	}
	d.Send(fmt.Sprintf("%-4s%-16s%6s%6s%6s", "#", "Player", "Won", "Lost", "Drew"))
	for i, st := range board {
		d.Send(fmt.Sprintf("%-4d%-16s%6d%6d%6d", i+1, st.Name, st.Wins, st.Losses, st.Draws))
	}
}

// DisconnectPlayer handles a player's connection going away. When it was
// their last connection, any game they are in is forfeited.
func (g *Game) DisconnectPlayer(d *Descriptor) {
	if d.State != ConnConnected {
		return
	}
	if len(g.Conns.GetByPlayer(d.Player)) > 1 {
		return
	}
	name := g.PlayerName(d.Player)
	if err := g.Sessions.Forfeit(d.Player); err == nil {
		log.Printf("[%d] %s(#%d) forfeited by disconnecting", d.ID, name, d.Player)
	}
	g.Conns.SendToRoomExcept(g.DB, g.PlayerLocation(d.Player), d.Player,
		fmt.Sprintf("%s has disconnected.", name))
}
