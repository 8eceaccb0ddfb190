package events

import "github.com/crystal-mush/mushgames/pkg/gamedb"

// EventType classifies events for transport-specific encoding.
type EventType int

const (
	EvText       EventType = iota // Raw text (universal fallback)
	EvSay                         // Speech
	EvConnect                     // Player connected
	EvDisconnect                  // Player disconnected
	EvWho                         // WHO data
	EvInvite                      // Game invitation
	EvPrompt                      // Request for a game action
	EvBoard                       // Board rendering
	EvOutcome                     // Final game result
	EvNotice                      // Other game status text
)

// String returns a human-readable name for the event type.
func (t EventType) String() string {
	switch t {
	case EvText:
		return "text"
	case EvSay:
		return "say"
	case EvConnect:
		return "connect"
	case EvDisconnect:
		return "disconnect"
	case EvWho:
		return "who"
	case EvInvite:
		return "invite"
	case EvPrompt:
		return "prompt"
	case EvBoard:
		return "board"
	case EvOutcome:
		return "outcome"
	case EvNotice:
		return "notice"
	default:
		return "unknown"
	}
}

// IsGame reports whether the event was produced by a game session.
func (t EventType) IsGame() bool {
	return t >= EvInvite && t <= EvNotice
}

// Event is a structured game event that flows through the event bus.
// Transports decide how to encode each event: telnet uses Text,
// WebSocket clients get the full structured data.
type Event struct {
	Type    EventType
	Player  gamedb.DBRef   // Recipient (Nothing for broadcast)
	Source  gamedb.DBRef   // Who generated the event
	Room    gamedb.DBRef   // Room context
	Session string         // Game session id, empty for non-game events
	Text    string         // Pre-formatted text (telnet uses this)
	Verbs   []string       // Responses the recipient may send right now
	Data    map[string]any // Structured data for JSON clients
}
