// Package oob implements GMCP (Generic MUD Communication Protocol) for
// telnet clients, so game state can be sent as structured data alongside
// normal text output.
package oob

import (
	"strings"
	"sync"
)

// Capabilities tracks what a telnet connection has negotiated.
type Capabilities struct {
	GMCP bool // telopt 201 accepted

	mu sync.Mutex
	// GMCP package subscriptions from Core.Supports.Set
	GMCPPackages map[string]bool
}

// NewCapabilities returns a zero-value Capabilities (nothing negotiated).
func NewCapabilities() *Capabilities {
	return &Capabilities{
		GMCPPackages: make(map[string]bool),
	}
}

// Wants reports whether pkg should be sent. A client that never sent
// Core.Supports gets everything.
func (c *Capabilities) Wants(pkg string) bool {
	if c == nil || !c.GMCP {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.GMCPPackages) == 0 {
		return true
	}
	for p := range c.GMCPPackages {
		if p == pkg || strings.HasPrefix(pkg, p+".") {
			return true
		}
	}
	return false
}
