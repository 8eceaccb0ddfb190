package session

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Timer is a single-shot cancellable timer. Every arm gets a new
// generation number; a fire whose generation is no longer current is
// dropped, so a callback runs at most once per arm and never after Cancel.
type Timer struct {
	clock clockwork.Clock

	mu       sync.Mutex
	t        clockwork.Timer
	gen      uint64
	armed    bool
	deadline time.Time
}

// NewTimer creates an unarmed timer on clock.
func NewTimer(clock clockwork.Clock) *Timer {
	return &Timer{clock: clock}
}

// Start arms the timer, replacing any previous arm, and returns the new generation.
// fn is called with that generation when the duration elapses.
func (t *Timer) Start(d time.Duration, fn func(gen uint64)) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.gen++
	gen := t.gen
	t.armed = true
	t.deadline = t.clock.Now().Add(d)
	t.t = t.clock.AfterFunc(d, func() {
		t.mu.Lock()
		live := t.armed && t.gen == gen
		if live {
			t.armed = false
		}
		t.mu.Unlock()
		if live {
			fn(gen)
		}
	})
	return gen
}

// Cancel disarms the timer. Safe to call when not armed.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// Reset is Cancel followed by Start.
func (t *Timer) Reset(d time.Duration, fn func(gen uint64)) uint64 {
	return t.Start(d, fn)
}

// Armed reports whether a fire is pending.
func (t *Timer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

// Deadline returns when the pending arm fires, or the zero time if not armed.
func (t *Timer) Deadline() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.armed {
		return time.Time{}
	}
	return t.deadline
}

func (t *Timer) stopLocked() {
	if t.t != nil {
		t.t.Stop()
		t.t = nil
	}
	t.armed = false
	t.gen++
}
