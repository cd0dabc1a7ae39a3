// Package queue implements the bounded handoff between the capture loop and the delivery loop.
package queue

import (
	"sync/atomic"

	"firestige.xyz/pktstream/internal/core"
)

const DefaultCapacity = 512

// Handoff is a bounded single-producer/single-consumer queue of capture
// events. When full, the incoming event is dropped (drop-newest); the
// producer never blocks.
type Handoff struct {
	ch       chan core.CaptureEvent
	pushed   atomic.Uint64
	dropped  atomic.Uint64
	popped   atomic.Uint64
	capacity int
}

// New returns a Handoff holding at most capacity events. Non-positive
// capacities fall back to DefaultCapacity.
func New(capacity int) *Handoff {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Handoff{
		ch:       make(chan core.CaptureEvent, capacity),
		capacity: capacity,
	}
}

// TryPush enqueues ev, reporting false when the queue was full and ev was dropped.
func (h *Handoff) TryPush(ev core.CaptureEvent) bool {
	select {
	case h.ch <- ev:
		h.pushed.Add(1)
		return true
	default:
		h.dropped.Add(1)
		return false
	}
}

// TryPop dequeues the oldest event without blocking.
func (h *Handoff) TryPop() (core.CaptureEvent, bool) {
	select {
	case ev := <-h.ch:
		h.popped.Add(1)
		return ev, true
	default:
		return core.CaptureEvent{}, false
	}
}

// Drain discards every queued event and returns how many were discarded.
func (h *Handoff) Drain() int {
	n := 0
	for {
		select {
		case <-h.ch:
			n++
		default:
			return n
		}
	}
}

func (h *Handoff) Len() int { return len(h.ch) }

func (h *Handoff) Cap() int { return h.capacity }

// Stats reports lifetime totals.
func (h *Handoff) Stats() Stats {
	return Stats{
		Pushed:  h.pushed.Load(),
		Popped:  h.popped.Load(),
		Dropped: h.dropped.Load(),
	}
}

type Stats struct {
	Pushed  uint64
	Popped  uint64
	Dropped uint64
}
