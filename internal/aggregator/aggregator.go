// Package aggregator owns the running per-protocol counts of one capture session.
package aggregator

import (
	"sync"

	"firestige.xyz/pktstream/internal/core"
)

// Aggregator is written only by the capture loop. Snapshot may be called from
// any goroutine and always sees a complete set of counts.
type Aggregator struct {
	mu     sync.RWMutex
	counts core.Counters
}

// New returns an Aggregator with every count at zero.
func New() *Aggregator {
	return &Aggregator{}
}

// Record counts one frame under p and returns the counts including it.
// Invalid categories are counted as Other.
func (a *Aggregator) Record(p core.Protocol) core.Counters {
	if !p.Valid() {
		p = core.Other
	}
	a.mu.Lock()
	a.counts[p]++
	snapshot := a.counts
	a.mu.Unlock()
	return snapshot
}

// Snapshot returns a copy of the current counts.
func (a *Aggregator) Snapshot() core.Counters {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.counts
}
