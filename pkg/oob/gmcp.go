package oob

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/crystal-mush/mushgames/pkg/events"
)

// GMCPPackage maps event types to GMCP package names.
func GMCPPackage(evType events.EventType) string {
	switch evType {
	case events.EvSay:
		return "Comm.Room.Text"
	case events.EvConnect:
		return "Char.Login"
	case events.EvDisconnect:
		return "Char.Logout"
	case events.EvWho:
		return "Char.Group"
	case events.EvInvite:
		return "Game.Invite"
	case events.EvPrompt:
		return "Game.Prompt"
	case events.EvBoard:
		return "Game.Board"
	case events.EvOutcome:
		return "Game.Outcome"
	case events.EvNotice:
		return "Game.Notice"
	default:
		return ""
	}
}

// gmcpPayload builds the JSON body for ev. Game events always carry
// their session, text and verbs.
func gmcpPayload(ev events.Event) map[string]any {
	if !ev.Type.IsGame() {
		return ev.Data
	}
	data := make(map[string]any, len(ev.Data)+3)
	for k, v := range ev.Data {
		data[k] = v
	}
	data["session"] = ev.Session
	data["text"] = ev.Text
	if ev.Verbs != nil {
		data["verbs"] = ev.Verbs
	}
	return data
}

// EncodeGMCP encodes an event as a GMCP telnet subnegotiation sequence.
// Format: IAC SB 201 <package> <space> <json> IAC SE
// Returns nil if the event has no GMCP mapping or no structured data.
func EncodeGMCP(ev events.Event) []byte {
	pkg := GMCPPackage(ev.Type)
	if pkg == "" {
		return nil
	}
	data := gmcpPayload(ev)
	if data == nil {
		return nil
	}
	return Frame(pkg, data)
}

// Frame wraps pkg and its JSON-encoded data in a GMCP subnegotiation.
func Frame(pkg string, data any) []byte {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	payload := fmt.Sprintf("%s %s", pkg, jsonData)
	buf := make([]byte, 0, len(payload)+5)
	buf = append(buf, IAC, SB, TeloptGMCP)
	buf = append(buf, payload...)
	buf = append(buf, IAC, SE)
	return buf
}

// ParseGMCPMessage splits the bytes between SB 201 and IAC SE into the
// package name and its JSON data.
func ParseGMCPMessage(data []byte) (pkg string, jsonData []byte) {
	for i, b := range data {
		if b == ' ' {
			return string(data[:i]), data[i+1:]
		}
	}
	return string(data), nil
}

// ApplyClientMessage updates caps from a client GMCP message. Only
// Core.Supports.Set/Add/Remove are understood; entries look like
// "Game 1".
func ApplyClientMessage(caps *Capabilities, data []byte) {
	pkg, body := ParseGMCPMessage(data)
	var mods []string
	caps.mu.Lock()
	defer caps.mu.Unlock()
	switch strings.ToLower(pkg) {
	case "core.supports.set":
		clear(caps.GMCPPackages)
		fallthrough
	case "core.supports.add":
		if json.Unmarshal(body, &mods) == nil {
			for _, m := range mods {
				name, _, _ := strings.Cut(m, " ")
				caps.GMCPPackages[name] = true
			}
		}
	case "core.supports.remove":
		if json.Unmarshal(body, &mods) == nil {
			for _, m := range mods {
				name, _, _ := strings.Cut(m, " ")
				delete(caps.GMCPPackages, name)
			}
		}
	}
}
