package aggregator

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"firestige.xyz/pktstream/internal/core"
)

func TestNewStartsAtZero(t *testing.T) {
	a := New()
	assert.Equal(t, core.Counters{}, a.Snapshot())
}

func TestRecordCountsExactly(t *testing.T) {
	a := New()
	input := []core.Protocol{core.TCP, core.UDP, core.TCP, core.ICMP, core.Other, core.TCP, core.UDP}

	var prev core.Counters
	for _, p := range input {
		got := a.Record(p)
		// Monotonic: nothing ever goes down, exactly one category goes up by one.
		for _, q := range core.Protocols() {
			if q == p {
				assert.Equal(t, prev.Get(q)+1, got.Get(q))
			} else {
				assert.Equal(t, prev.Get(q), got.Get(q))
			}
		}
		prev = got
	}

	snap := a.Snapshot()
	assert.Equal(t, uint64(3), snap.Get(core.TCP))
	assert.Equal(t, uint64(2), snap.Get(core.UDP))
	assert.Equal(t, uint64(1), snap.Get(core.ICMP))
	assert.Equal(t, uint64(1), snap.Get(core.Other))
	assert.Equal(t, uint64(len(input)), snap.Total())
}

func TestRecordInvalidCountsAsOther(t *testing.T) {
	a := New()
	got := a.Record(core.Protocol(200))
	assert.Equal(t, uint64(1), got.Get(core.Other))
}

func TestSnapshotIdempotent(t *testing.T) {
	a := New()
	a.Record(core.UDP)
	assert.Equal(t, a.Snapshot(), a.Snapshot())
}

func TestSnapshotIsDetached(t *testing.T) {
	a := New()
	before := a.Record(core.TCP)
	a.Record(core.TCP)
	assert.Equal(t, uint64(1), before.Get(core.TCP))
	assert.Equal(t, uint64(2), a.Snapshot().Get(core.TCP))
}

func TestSnapshotNeverTorn(t *testing.T) {
	a := New()
	const n = 10000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			// TCP and UDP always move together, so a consistent snapshot has them equal or TCP one ahead.
			a.Record(core.TCP)
			a.Record(core.UDP)
		}
	}()

	for i := 0; i < n; i++ {
		s := a.Snapshot()
		diff := int64(s.Get(core.TCP)) - int64(s.Get(core.UDP))
		if diff != 0 && diff != 1 {
			t.Fatalf("torn snapshot: %v", s)
		}
	}
	wg.Wait()
	assert.Equal(t, uint64(2*n), a.Snapshot().Total())
}
