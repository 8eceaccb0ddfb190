package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/crystal-mush/mushgames/pkg/admin"
	"github.com/crystal-mush/mushgames/pkg/gamedb"
	"github.com/crystal-mush/mushgames/pkg/oob"
)

// Config holds server configuration.
type Config struct {
	Port        int
	IdleTimeout time.Duration
	MaxRetries  int
	WelcomeText string
	// NegotiateTimeout bounds the wait for a GMCP answer. Zero skips it.
	NegotiateTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:        6250,
		IdleTimeout: 3600 * time.Second,
		MaxRetries:  3,
		WelcomeText: WelcomeText,

		NegotiateTimeout: 500 * time.Millisecond,
	}
}

// Server is the main TCP game server.
type Server struct {
	Config    Config
	Game      *Game
	mu        sync.Mutex
	listener  net.Listener
	webServer *WebServer
}

// NewServer creates a new server instance.
func NewServer(game *Game, cfg Config) *Server {
	return &Server{
		Config: cfg,
		Game:   game,
	}
}

// Addr returns the telnet listener's address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start begins listening for connections. It blocks until Stop.
func (s *Server) Start() error {
	log.Printf("Database: %d objects, %d players", s.Game.DB.Len(), len(s.Game.DB.Players()))

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.Config.Port))
	if err != nil {
		return fmt.Errorf("listener: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	log.Printf("Listening on port %d", ln.Addr().(*net.TCPAddr).Port)

	var wg sync.WaitGroup

	if conf := s.Game.Conf; conf.WebEnabled {
		cfg := WebConfig{
			Port:        conf.WebPort,
			Host:        conf.WebHost,
			CORSOrigins: conf.WebCORSOrigins,
			RateLimit:   conf.WebRateLimit,
			JWTSecret:   conf.JWTSecret,
			JWTExpiry:   conf.JWTExpiry,
		}
		if conf.AdminEnabled {
			ctrl := &adminController{game: s.Game, started: time.Now(), stop: s.Stop}
			cfg.Admin = admin.New(ctrl, admin.Options{
				DataDir:  conf.AdminDataDir,
				Password: conf.AdminPassword,
				Clock:    s.Game.clock,
			}).Handler("/admin")
		}
		web := NewWebServer(s.Game, cfg)
		s.mu.Lock()
		s.webServer = web
		s.mu.Unlock()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := web.Start(); err != nil {
				log.Printf("WARNING: web server stopped: %v", err)
			}
		}()
	}

	s.acceptLoop(ln)
	wg.Wait()
	return nil
}

// acceptLoop accepts connections on the given listener until it is closed.
func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("Accept error: %v", err)
			continue
		}
		go s.handleConnection(conn)
	}
}

// Stop closes all active listeners.
func (s *Server) Stop() {
	s.mu.Lock()
	ln, web := s.listener, s.webServer
	s.mu.Unlock()
	if ln != nil {
		ln.Close()
	}
	if web != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		web.Stop(ctx)
	}
}

// handleConnection manages a single client connection lifecycle.
func (s *Server) handleConnection(conn net.Conn) {
	id := s.Game.Conns.NextID()
	d := NewDescriptor(id, conn)
	if s.Config.MaxRetries > 0 {
		d.Retries = s.Config.MaxRetries
	}
	s.Game.Conns.Add(d)
	s.Game.Metrics.ConnectionOpened(TransportTCP)

	log.Printf("[%d] New connection from %s", d.ID, d.Addr)

	if s.Config.NegotiateTimeout > 0 {
		d.Caps = oob.Negotiate(conn, s.Config.NegotiateTimeout)
		if d.Caps.GMCP {
			log.Printf("[%d] client supports GMCP", d.ID)
		}
	}

	defer func() {
		s.Game.DisconnectPlayer(d)
		s.Game.Conns.Remove(d)
		d.Close()
		log.Printf("[%d] Connection closed from %s", d.ID, d.Addr)
	}()

	d.SendNoNewline(s.Config.WelcomeText)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 8192), 8192)

	for {
		if s.Config.IdleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.Config.IdleTimeout))
		}
		if !scanner.Scan() {
			var ne net.Error
			if errors.As(scanner.Err(), &ne) && ne.Timeout() {
				d.Send("You have been idle too long. Goodbye!")
			}
			return
		}
		if d.IsClosed() {
			return
		}

		line, gmcp := oob.StripIAC(scanner.Text())
		for _, msg := range gmcp {
			if d.Caps != nil {
				oob.ApplyClientMessage(d.Caps, msg)
			}
		}
		d.LastCmd = time.Now()

		if d.State == ConnLogin {
			s.handleLoginCommand(d, line)
		} else {
			d.CmdCount++
			DispatchCommand(s.Game, d, line)
		}

		if d.IsClosed() {
			return
		}
	}
}

// handleLoginCommand processes pre-login commands.
func (s *Server) handleLoginCommand(d *Descriptor, input string) {
	input = strings.TrimSpace(input)
	if input == "" {
		return
	}

	switch strings.ToUpper(input) {
	case "QUIT":
		d.Send("Goodbye!")
		d.Close()
		return
	case "WHO":
		s.Game.ShowWho(d)
		return
	}

	command, user, password := ParseConnect(input)

	switch {
	case strings.HasPrefix(command, "co"):
		s.handleConnect(d, user, password)
	case strings.HasPrefix(command, "cr"):
		s.handleCreate(d, user, password)
	default:
		d.Send(fmt.Sprintf("Welcome to %s. Commands: connect, create, WHO, QUIT", s.Game.Conf.MudName))
	}
}

// handleConnect authenticates and logs in a player.
func (s *Server) handleConnect(d *Descriptor, user, password string) {
	if user == "" {
		d.Send("Usage: connect <name> <password>")
		return
	}

	player, err := s.Game.Authenticate(user, password)
	if err != nil {
		if !errors.Is(err, ErrInvalidCredentials) {
			log.Printf("[%d] login %s: %v", d.ID, user, err)
		}
		d.Send("Either that player does not exist, or has a different password.")
		d.Retries--
		if d.Retries <= 0 {
			d.Send("Too many failed attempts. Disconnecting.")
			d.Close()
		}
		return
	}

	s.Game.Conns.Login(d, player)
	name := s.Game.PlayerName(player)
	log.Printf("[%d] Player %s(#%d) connected from %s", d.ID, name, player, d.Addr)

	d.Send(fmt.Sprintf("Welcome back, %s!", name))
	s.enterWorld(d, player, name)
}

// handleCreate creates a new player and logs them in.
func (s *Server) handleCreate(d *Descriptor, user, password string) {
	if user == "" || password == "" {
		d.Send("Usage: create <name> <password>")
		return
	}

	obj, err := s.Game.CreatePlayer(user, password)
	switch {
	case errors.Is(err, ErrNameTaken):
		d.Send("That name is already taken.")
		return
	case errors.Is(err, ErrBadName):
		d.Send("That name is not allowed.")
		return
	case err != nil:
		log.Printf("[%d] create %s: %v", d.ID, user, err)
		d.Send("Could not create that character right now.")
		return
	}

	log.Printf("[%d] New player %s(#%d) created from %s", d.ID, obj.Name, obj.DBRef, d.Addr)
	s.Game.Conns.Login(d, obj.DBRef)
	d.Send(fmt.Sprintf("Welcome to %s, %s! Your character has been created as #%d.", s.Game.Conf.MudName, obj.Name, obj.DBRef))
	s.enterWorld(d, obj.DBRef, obj.Name)
}

func (s *Server) enterWorld(d *Descriptor, player gamedb.DBRef, name string) {
	loc := s.Game.PlayerLocation(player)
	if len(s.Game.Conns.GetByPlayer(player)) == 1 {
		s.Game.Conns.SendToRoomExcept(s.Game.DB, loc, player, fmt.Sprintf("%s has connected.", name))
	}
	s.Game.ShowRoom(d, loc)
}
