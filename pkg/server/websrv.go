package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/crystal-mush/mushgames/pkg/events"
	"github.com/crystal-mush/mushgames/pkg/gamedb"
	"github.com/crystal-mush/mushgames/pkg/session"
)

// WebConfig holds web server configuration.
type WebConfig struct {
	Port        int
	Host        string
	CORSOrigins []string
	RateLimit   int
	JWTSecret   string
	JWTExpiry   int
	// Admin is mounted under /admin/ when set.
	Admin http.Handler
}

// WebServer serves the WebSocket transport, a small REST API, health
// and metrics.
type WebServer struct {
	game      *Game
	httpSrv   *http.Server
	mux       *http.ServeMux
	auth      *AuthService
	rl        *rateLimiter
	upgrader  websocket.Upgrader
	startTime time.Time
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewWebServer creates a web server for game.
func NewWebServer(game *Game, cfg WebConfig) *WebServer {
	ws := &WebServer{
		game:      game,
		mux:       http.NewServeMux(),
		auth:      NewAuthService(game, cfg.JWTSecret, cfg.JWTExpiry),
		rl:        newRateLimiter(cfg.RateLimit),
		startTime: time.Now(),
		stop:      make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || originAllowed(cfg.CORSOrigins, origin)
			},
		},
	}

	ws.mux.HandleFunc("GET /ws", ws.handleWebSocket)
	ws.mux.HandleFunc("POST /api/v1/auth/login", ws.handleAuthLogin)
	ws.mux.HandleFunc("POST /api/v1/auth/refresh", ws.handleAuthRefresh)
	ws.mux.HandleFunc("GET /api/v1/who", ws.handleWho)
	ws.mux.HandleFunc("GET /api/v1/games", ws.handleGames)
	ws.mux.HandleFunc("GET /api/v1/leaderboard", ws.handleLeaderboard)
	ws.mux.Handle("GET /api/v1/history", requireAuth(ws.auth, ws.handleHistory))
	ws.mux.HandleFunc("GET /health", ws.handleHealth)
	ws.mux.Handle("GET /metrics", game.Metrics.Handler())
	if cfg.Admin != nil {
		ws.mux.Handle("/admin/", cfg.Admin)
	}

	handler := rateLimitMiddleware(ws.rl, ws.mux)
	handler = corsMiddleware(cfg.CORSOrigins, handler)
	ws.httpSrv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: handler,
	}
	return ws
}

// Auth returns the server's token service.
func (ws *WebServer) Auth() *AuthService {
	return ws.auth
}

// Handler returns the full middleware-wrapped handler.
func (ws *WebServer) Handler() http.Handler {
	return ws.httpSrv.Handler
}

// Start serves HTTP until Stop.
func (ws *WebServer) Start() error {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ws.rl.sweep()
			case <-ws.stop:
				return
			}
		}
	}()

	log.Printf("Web server listening on %s", ws.httpSrv.Addr)
	err := ws.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the server down gracefully.
func (ws *WebServer) Stop(ctx context.Context) error {
	ws.stopOnce.Do(func() { close(ws.stop) })
	return ws.httpSrv.Shutdown(ctx)
}

// --- WebSocket transport ---

// WSMessage is the JSON envelope used in both directions on /ws.
type WSMessage struct {
	Type    string         `json:"type"`
	Text    string         `json:"text,omitempty"`
	Session string         `json:"session,omitempty"`
	Verbs   []string       `json:"verbs,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Command string         `json:"command,omitempty"`
}

type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (wc *wsConn) sendJSON(msg WSMessage) {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	wc.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	wc.conn.WriteJSON(msg)
}

// wsNetConn lets Descriptor.Close end the WebSocket.
type wsNetConn struct {
	nullConn
	wc *wsConn
}

func (c wsNetConn) Close() error {
	return c.wc.conn.Close()
}

func (ws *WebServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var claims *Claims
	if token := bearerToken(r); token != "" {
		var err error
		if claims, err = ws.auth.ValidateToken(token); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
	}

	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	remoteAddr := r.RemoteAddr
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		remoteAddr, _, _ = strings.Cut(xff, ",")
		remoteAddr = strings.TrimSpace(remoteAddr)
	}
	d, wc := newWSDescriptor(ws.game, conn, remoteAddr)
	ws.game.Conns.Add(d)
	ws.game.Metrics.ConnectionOpened(TransportWebSocket)
	log.Printf("[ws:%d] WebSocket opened from %s", d.ID, d.Addr)

	if claims != nil {
		ws.login(d, wc, claims.PlayerRef)
	} else {
		wc.sendJSON(WSMessage{Type: "welcome", Text: "Connected. Send {\"type\":\"login\",\"command\":\"connect name password\"} to authenticate."})
	}

	go wsReadLoop(ws, d, wc)
}

func newWSDescriptor(game *Game, conn *websocket.Conn, addr string) (*Descriptor, *wsConn) {
	wc := &wsConn{conn: conn}
	now := time.Now()
	d := &Descriptor{
		ID:        game.Conns.NextID(),
		Conn:      wsNetConn{wc: wc},
		State:     ConnLogin,
		Player:    gamedb.Nothing,
		Addr:      addr,
		ConnTime:  now,
		LastCmd:   now,
		Retries:   3,
		Transport: TransportWebSocket,
	}
	d.SendFunc = func(msg string) {
		wc.sendJSON(WSMessage{Type: "text", Text: msg})
	}
	d.ReceiveFunc = func(ev events.Event) {
		wc.sendJSON(WSMessage{
			Type:    ev.Type.String(),
			Text:    ev.Text,
			Session: ev.Session,
			Verbs:   ev.Verbs,
			Data:    ev.Data,
		})
	}
	return d, wc
}

func wsReadLoop(ws *WebServer, d *Descriptor, wc *wsConn) {
	defer func() {
		ws.game.DisconnectPlayer(d)
		ws.game.Conns.Remove(d)
		wc.conn.Close()
		log.Printf("[ws:%d] WebSocket closed from %s", d.ID, d.Addr)
	}()

	for {
		_, raw, err := wc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws:%d] read error: %v", d.ID, err)
			}
			return
		}
		d.LastCmd = time.Now()

		var msg WSMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			wc.sendJSON(WSMessage{Type: "error", Text: "Invalid JSON message"})
			continue
		}

		switch msg.Type {
		case "login":
			ws.handleWSLogin(d, wc, msg.Command)
		case "command":
			if d.State == ConnLogin {
				ws.handleWSLogin(d, wc, msg.Command)
				continue
			}
			d.CmdCount++
			DispatchCommand(ws.game, d, msg.Command)
		default:
			wc.sendJSON(WSMessage{Type: "error", Text: fmt.Sprintf("Unknown message type: %s", msg.Type)})
		}
		if d.IsClosed() {
			return
		}
	}
}

func (ws *WebServer) handleWSLogin(d *Descriptor, wc *wsConn, input string) {
	if d.State == ConnConnected {
		wc.sendJSON(WSMessage{Type: "error", Text: "Already logged in"})
		return
	}
	command, user, password := ParseConnect(input)
	switch {
	case strings.HasPrefix(command, "co"):
		player, err := ws.game.Authenticate(user, password)
		if err != nil {
			wc.sendJSON(WSMessage{Type: "error", Text: "Invalid credentials"})
			return
		}
		ws.login(d, wc, player)
	case strings.HasPrefix(command, "cr"):
		obj, err := ws.game.CreatePlayer(user, password)
		if err != nil {
			wc.sendJSON(WSMessage{Type: "error", Text: sentence(err.Error())})
			return
		}
		ws.login(d, wc, obj.DBRef)
	default:
		wc.sendJSON(WSMessage{Type: "error", Text: "Use: connect <name> <password>"})
	}
}

func (ws *WebServer) login(d *Descriptor, wc *wsConn, player gamedb.DBRef) {
	ws.game.Conns.Login(d, player)
	name := ws.game.PlayerName(player)
	log.Printf("[ws:%d] Player %s(#%d) connected from %s", d.ID, name, player, d.Addr)
	wc.sendJSON(WSMessage{
		Type: "login",
		Data: map[string]any{"player_ref": int(player), "player_name": name},
	})
	ws.game.ShowRoom(d, ws.game.PlayerLocation(player))
}

// --- REST ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (ws *WebServer) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token, err := ws.auth.Login(req.Name, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (ws *WebServer) handleAuthRefresh(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "authorization required")
		return
	}
	fresh, err := ws.auth.RefreshToken(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": fresh})
}

func (ws *WebServer) handleWho(w http.ResponseWriter, _ *http.Request) {
	type whoEntry struct {
		Name  string `json:"name"`
		Ref   int    `json:"ref"`
		OnFor string `json:"on_for"`
		Idle  string `json:"idle"`
	}
	now := time.Now()
	entries := []whoEntry{}
	for _, dd := range ws.game.Conns.AllDescriptors() {
		if dd.State != ConnConnected {
			continue
		}
		entries = append(entries, whoEntry{
			Name:  ws.game.PlayerName(dd.Player),
			Ref:   int(dd.Player),
			OnFor: FormatConnTime(now.Sub(dd.ConnTime)),
			Idle:  FormatIdleTime(now.Sub(dd.LastCmd)),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	writeJSON(w, http.StatusOK, entries)
}

type sessionView struct {
	ID       string    `json:"id"`
	Game     string    `json:"game"`
	Phase    string    `json:"phase"`
	Players  []string  `json:"players"`
	Started  time.Time `json:"started"`
	Deadline time.Time `json:"deadline,omitzero"`
}

func (ws *WebServer) handleGames(w http.ResponseWriter, _ *http.Request) {
	views := lo.Map(ws.game.Sessions.Sessions(), func(info session.Info, _ int) sessionView {
		return sessionView{
			ID:       string(info.ID),
			Game:     info.Game,
			Phase:    info.Phase.String(),
			Players:  participantNames(info.Participants),
			Started:  info.Started,
			Deadline: info.Deadline,
		}
	})
	writeJSON(w, http.StatusOK, views)
}

func (ws *WebServer) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := atoi(r.URL.Query().Get("limit"), 10)
	board, err := ws.game.Store.Leaderboard(limit)
	if err != nil {
		log.Printf("web: leaderboard: %v", err)
		writeError(w, http.StatusInternalServerError, "leaderboard unavailable")
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (ws *WebServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	limit := ws.game.Conf.HistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	recs, err := ws.game.Store.History(claims.PlayerName, limit)
	if err != nil {
		log.Printf("web: history %s: %v", claims.PlayerName, err)
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        Version,
		"uptime_seconds": time.Since(ws.startTime).Seconds(),
		"connections":    ws.game.ConnectionStats(),
		"sessions":       ws.game.SessionStats(),
		"memory":         ws.game.MemoryStats(),
	})
}
