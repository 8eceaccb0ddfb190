package server

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/crystal-mush/mushgames/pkg/events"
	"github.com/crystal-mush/mushgames/pkg/gamedb"
	"github.com/crystal-mush/mushgames/pkg/oob"
)

// TransportType identifies the kind of transport a Descriptor uses.
type TransportType int

const (
	TransportTCP       TransportType = iota // Telnet-style line protocol
	TransportWebSocket                      // WebSocket (JSON events)
)

func (t TransportType) String() string {
	if t == TransportWebSocket {
		return "websocket"
	}
	return "tcp"
}

// ConnState tracks the state of a connection.
type ConnState int

const (
	ConnLogin     ConnState = iota // Pre-login: awaiting connect/create
	ConnConnected                  // Logged in as a player
)

// Descriptor represents a single client connection.
// It implements events.Subscriber so it can receive events from the bus.
type Descriptor struct {
	ID        int
	Conn      net.Conn
	State     ConnState
	Player    gamedb.DBRef
	Addr      string
	ConnTime  time.Time
	LastCmd   time.Time
	Retries   int
	CmdCount  int
	Transport TransportType
	// Caps is what the telnet client negotiated; nil for other transports.
	Caps *oob.Capabilities

	// SendFunc overrides the default Send behavior (used by WebSocket transport).
	SendFunc func(msg string)
	// ReceiveFunc overrides the default path of sending ev.Text.
	ReceiveFunc func(ev events.Event)

	mu     sync.Mutex
	closed bool
}

// NewDescriptor wraps a net.Conn into a Descriptor.
func NewDescriptor(id int, conn net.Conn) *Descriptor {
	now := time.Now()
	return &Descriptor{
		ID:       id,
		Conn:     conn,
		State:    ConnLogin,
		Player:   gamedb.Nothing,
		Addr:     conn.RemoteAddr().String(),
		ConnTime: now,
		LastCmd:  now,
		Retries:  3,
	}
}

// Send writes a line to the client. Embedded newlines are sent as CRLF.
func (d *Descriptor) Send(msg string) {
	if d.SendFunc != nil {
		d.SendFunc(msg)
		return
	}
	msg = strings.ReplaceAll(strings.TrimRight(msg, "\r\n"), "\n", "\r\n") + "\r\n"
	d.write(msg)
}

// SendNoNewline writes a string without appending a newline.
func (d *Descriptor) SendNoNewline(msg string) {
	if d.SendFunc != nil {
		d.SendFunc(msg)
		return
	}
	d.write(msg)
}

func (d *Descriptor) write(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.Conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	d.Conn.Write([]byte(msg))
}

// Close shuts down the connection.
func (d *Descriptor) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		d.Conn.Close()
	}
}

// IsClosed returns whether the connection has been closed.
func (d *Descriptor) IsClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Receive implements events.Subscriber.
func (d *Descriptor) Receive(ev events.Event) {
	if d.ReceiveFunc != nil {
		d.ReceiveFunc(ev)
		return
	}
	if ev.Text != "" {
		d.Send(ev.Text)
	}
	if d.Caps.Wants(oob.GMCPPackage(ev.Type)) {
		if frame := oob.EncodeGMCP(ev); frame != nil {
			d.write(string(frame))
		}
	}
}

// Closed implements events.Subscriber.
func (d *Descriptor) Closed() bool {
	return d.IsClosed()
}

var _ events.Subscriber = (*Descriptor)(nil)

// nullConn is a no-op net.Conn for descriptors that have no socket.
type nullConn struct{}

func (nullConn) Read([]byte) (int, error)         { return 0, errors.New("no connection") }
func (nullConn) Write(b []byte) (int, error)      { return len(b), nil }
func (nullConn) Close() error                     { return nil }
func (nullConn) LocalAddr() net.Addr              { return nil }
func (nullConn) RemoteAddr() net.Addr             { return &net.TCPAddr{} }
func (nullConn) SetDeadline(time.Time) error      { return nil }
func (nullConn) SetReadDeadline(time.Time) error  { return nil }
func (nullConn) SetWriteDeadline(time.Time) error { return nil }

// ConnManager tracks all active connections.
type ConnManager struct {
	mu          sync.RWMutex
	descriptors map[int]*Descriptor
	nextID      int
	byPlayer    map[gamedb.DBRef][]*Descriptor // player -> connections (multi-login)
	EventBus    *events.Bus
}

// NewConnManager creates a new connection manager.
func NewConnManager() *ConnManager {
	return &ConnManager{
		descriptors: make(map[int]*Descriptor),
		byPlayer:    make(map[gamedb.DBRef][]*Descriptor),
		nextID:      1,
	}
}

// Add registers a new descriptor.
func (cm *ConnManager) Add(d *Descriptor) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.descriptors[d.ID] = d
}

// Remove unregisters a descriptor and unsubscribes it from the event bus.
func (cm *ConnManager) Remove(d *Descriptor) {
	if cm.EventBus != nil && d.Player != gamedb.Nothing {
		cm.EventBus.Unsubscribe(d.Player, d)
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.descriptors, d.ID)
	if d.Player != gamedb.Nothing {
		descs := cm.byPlayer[d.Player]
		for i, dd := range descs {
			if dd.ID == d.ID {
				cm.byPlayer[d.Player] = append(descs[:i], descs[i+1:]...)
				break
			}
		}
		if len(cm.byPlayer[d.Player]) == 0 {
			delete(cm.byPlayer, d.Player)
		}
	}
}

// Login associates a descriptor with a player and subscribes it to the event bus.
func (cm *ConnManager) Login(d *Descriptor, player gamedb.DBRef) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	d.State = ConnConnected
	d.Player = player
	cm.byPlayer[player] = append(cm.byPlayer[player], d)
	if cm.EventBus != nil {
		cm.EventBus.Subscribe(player, d)
	}
}

// NextID returns the next descriptor ID.
func (cm *ConnManager) NextID() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	id := cm.nextID
	cm.nextID++
	return id
}

// GetByPlayer returns all descriptors for a given player.
func (cm *ConnManager) GetByPlayer(player gamedb.DBRef) []*Descriptor {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return append([]*Descriptor(nil), cm.byPlayer[player]...)
}

// IsConnected returns true if the player has at least one active connection.
func (cm *ConnManager) IsConnected(player gamedb.DBRef) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.byPlayer[player]) > 0
}

// AllDescriptors returns a snapshot of all active descriptors.
func (cm *ConnManager) AllDescriptors() []*Descriptor {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	descs := make([]*Descriptor, 0, len(cm.descriptors))
	for _, d := range cm.descriptors {
		descs = append(descs, d)
	}
	return descs
}

// CountByTransport returns the number of logged-in descriptors per transport.
func (cm *ConnManager) CountByTransport() map[TransportType]int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	counts := map[TransportType]int{TransportTCP: 0, TransportWebSocket: 0}
	for _, d := range cm.descriptors {
		if d.State == ConnConnected {
			counts[d.Transport]++
		}
	}
	return counts
}

// SendToRoomExcept sends a message to all connected players in a room except one.
func (cm *ConnManager) SendToRoomExcept(db *gamedb.Database, room gamedb.DBRef, except gamedb.DBRef, msg string) {
	for _, ref := range db.Contents(room) {
		if ref == except {
			continue
		}
		for _, d := range cm.GetByPlayer(ref) {
			d.Send(msg)
		}
	}
}

// FormatIdleTime formats a duration as a human-readable idle time.
func FormatIdleTime(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	if secs < 3600 {
		return fmt.Sprintf("%dm", secs/60)
	}
	if secs < 86400 {
		return fmt.Sprintf("%dh", secs/3600)
	}
	return fmt.Sprintf("%dd", secs/86400)
}

// FormatConnTime formats a duration as connection time.
func FormatConnTime(d time.Duration) string {
	secs := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d", secs/3600, (secs%3600)/60)
}
