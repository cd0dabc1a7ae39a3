// Package source defines the capture facility contract and the registry of
// concrete capture sources.
package source

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/gopacket"

	"firestige.xyz/pktstream/internal/config"
	"firestige.xyz/pktstream/internal/core"
)

// Handler receives one frame. A Source never calls it concurrently.
type Handler func(pkt gopacket.Packet)

// Source is a capture facility.
//
// Run blocks, calling handle once per captured frame, until ctx is cancelled
// (returns nil), the source reaches end-of-stream (returns nil), or capture
// fails. Failures to open the underlying device wrap core.ErrCaptureStart.
// Cancellation is observed between reads, so shutdown latency is bounded by
// the source's poll timeout.
type Source interface {
	Interfaces() ([]core.Interface, error)
	Run(ctx context.Context, handle Handler) error
}

// Constructor builds a Source from capture configuration.
type Constructor func(cfg config.CaptureConfig) (Source, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]Constructor)
)

// Register makes a source available under name. It panics on duplicates.
func Register(name string, fn Constructor) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := registry[name]; dup {
		panic("source: Register called twice for " + name)
	}
	registry[name] = fn
}

// New builds the source selected by cfg.Source.
func New(cfg config.CaptureConfig) (Source, error) {
	mu.RLock()
	fn, ok := registry[cfg.Source]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", core.ErrUnknownSource, cfg.Source, Names())
	}
	return fn(cfg)
}

// Names lists the registered sources.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
