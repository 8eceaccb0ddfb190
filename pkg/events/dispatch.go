package events

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize is the dispatcher buffer used when none is given.
const DefaultQueueSize = 1024

// Dispatcher delivers events to a Bus from a single worker goroutine.
// Post never blocks: producers holding locks (game sessions) hand events
// off here, and delivery to slow subscribers happens on the worker.
// Events are delivered in the order they were posted.
//
// Outcome events are never dropped. When the queue is full they go to an
// overflow list. While that list is non-empty later events queue behind
// them; other events are still dropped once it holds a queue's worth.
type Dispatcher struct {
	bus     *Bus
	queue   chan Event
	kick    chan struct{}
	dropped atomic.Int64

	mu       sync.Mutex
	overflow []Event
}

// NewDispatcher creates a dispatcher in front of bus.
func NewDispatcher(bus *Bus, size int) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Dispatcher{bus: bus, queue: make(chan Event, size), kick: make(chan struct{}, 1)}
}

// Post queues an event for delivery. If the queue is full the event is
// dropped, unless it is an outcome.
func (d *Dispatcher) Post(ev Event) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.overflow) == 0 {
		select {
		case d.queue <- ev:
			return true
		default:
		}
	}
	if ev.Type == EvOutcome || (len(d.overflow) > 0 && len(d.overflow) < cap(d.queue)) {
		d.overflow = append(d.overflow, ev)
		select {
		case d.kick <- struct{}{}:
		default:
		}
		return true
	}
	n := d.dropped.Add(1)
	log.Printf("WARNING: event queue full, dropped %s event for #%d (%d dropped total)", ev.Type, ev.Player, n)
	return false
}

// Dropped returns how many events were discarded because the queue was full.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Run delivers queued events until ctx is cancelled, then drains what is left.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-d.queue:
			d.bus.Emit(ev)
			continue
		default:
		}
		if d.flushOverflow() {
			continue
		}
		select {
		case ev := <-d.queue:
			d.bus.Emit(ev)
		case <-d.kick:
		case <-ctx.Done():
			d.drain()
			return nil
		}
	}
}

// flushOverflow delivers the overflow list once the queue has emptied.
// Post does not touch the queue while overflow is non-empty, so the queue
// cannot refill between the check and the swap.
func (d *Dispatcher) flushOverflow() bool {
	d.mu.Lock()
	if len(d.queue) > 0 {
		d.mu.Unlock()
		return false
	}
	pending := d.overflow
	d.overflow = nil
	d.mu.Unlock()
	for _, ev := range pending {
		d.bus.Emit(ev)
	}
	return len(pending) > 0
}

func (d *Dispatcher) drain() {
	for {
		select {
		case ev := <-d.queue:
			d.bus.Emit(ev)
			continue
		default:
		}
		if !d.flushOverflow() && len(d.queue) == 0 {
			return
		}
	}
}
