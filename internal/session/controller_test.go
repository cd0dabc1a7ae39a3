package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pktstream/internal/core"
	"firestige.xyz/pktstream/internal/sink"
	"firestige.xyz/pktstream/internal/source/sourcetest"
)

type recordingSink struct {
	mu        sync.Mutex
	msgs      []sink.Message
	failAfter int // fail every send once this many messages were accepted; 0 disables
	gate      <-chan struct{}
	closed    bool
}

func (s *recordingSink) Send(ctx context.Context, msg sink.Message) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter > 0 && len(s.msgs) >= s.failAfter {
		return errors.New("connection reset by peer")
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) messages() []sink.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sink.Message(nil), s.msgs...)
}

func packets(msgs []sink.Message) []sink.PacketMessage {
	var out []sink.PacketMessage
	for _, m := range msgs {
		if p, ok := m.(sink.PacketMessage); ok {
			out = append(out, p)
		}
	}
	return out
}

func fastOptions() Options {
	return Options{QueueCapacity: 64, PollInterval: 5 * time.Millisecond}
}

func TestRunStreamsMixedTraffic(t *testing.T) {
	snk := &recordingSink{}
	c := NewController(sourcetest.New(sourcetest.Mixed()...), snk, fastOptions())

	require.NoError(t, c.Run(context.Background()))

	msgs := snk.messages()
	require.Len(t, msgs, 7, "one message per IP frame")
	pkts := packets(msgs)
	require.Len(t, pkts, 7)

	var want core.Counters
	want[core.TCP], want[core.UDP], want[core.ICMP], want[core.Other] = 3, 2, 1, 1
	assert.Equal(t, want, pkts[6].ProtocolCounts)
	for i, p := range pkts {
		assert.Equal(t, uint64(i+1), p.ProtocolCounts.Total())
		assert.True(t, strings.HasPrefix(p.Log, "Packet: "), p.Log)
	}

	stats := c.Stats()
	assert.Equal(t, StateClosed, stats.State)
	assert.Equal(t, want, stats.Counts)
	assert.Equal(t, uint64(7), stats.Delivered)
	assert.Equal(t, uint64(1), stats.Filtered)
	assert.False(t, snk.closed, "the controller does not close a borrowed sink")
}

func TestRunStartupFailure(t *testing.T) {
	src := sourcetest.New(sourcetest.TCP())
	src.StartErr = errors.New("permission denied")
	snk := &recordingSink{}

	err := NewController(src, snk, fastOptions()).Run(context.Background())

	var serr *core.SessionError
	require.ErrorAs(t, err, &serr)
	assert.True(t, serr.Startup())

	msgs := snk.messages()
	require.Len(t, msgs, 1)
	em, ok := msgs[0].(sink.ErrorMessage)
	require.True(t, ok, "only an error message is sent")
	assert.True(t, strings.HasSuffix(em.Error, "permission denied"), em.Error)
}

func TestRunCaptureFailureEndsWithError(t *testing.T) {
	src := sourcetest.New(sourcetest.TCP(), sourcetest.UDP())
	src.RunErr = errors.New("interface went down")
	snk := &recordingSink{}

	err := NewController(src, snk, fastOptions()).Run(context.Background())
	var serr *core.SessionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, core.OpCapture, serr.Op)

	msgs := snk.messages()
	require.Len(t, msgs, 3)
	assert.Len(t, packets(msgs), 2)
	em, ok := msgs[2].(sink.ErrorMessage)
	require.True(t, ok, "the error message is last")
	assert.Contains(t, em.Error, "interface went down")
}

func TestRunCapturePanic(t *testing.T) {
	src := sourcetest.New(sourcetest.ICMP())
	src.Panic = true
	snk := &recordingSink{}

	err := NewController(src, snk, fastOptions()).Run(context.Background())
	require.Error(t, err)

	msgs := snk.messages()
	require.NotEmpty(t, msgs)
	_, ok := msgs[len(msgs)-1].(sink.ErrorMessage)
	assert.True(t, ok)
}

func TestRunStopsOnDisconnect(t *testing.T) {
	src := sourcetest.New(sourcetest.TCP(), sourcetest.UDP())
	src.Loop = true
	src.Interval = time.Millisecond
	snk := &recordingSink{}
	c := NewController(src, snk, fastOptions())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return len(snk.messages()) >= 5 }, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end after disconnect")
	}

	select {
	case <-src.Done():
	default:
		t.Fatal("capture still running after Run returned")
	}

	sent := len(snk.messages())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, sent, len(snk.messages()), "nothing is sent after disconnect")
	for _, m := range snk.messages() {
		_, isErr := m.(sink.ErrorMessage)
		assert.False(t, isErr)
	}
	assert.Equal(t, StateClosed, c.State())
}

func TestRunSinkFailure(t *testing.T) {
	src := sourcetest.New(sourcetest.TCP())
	src.Loop = true
	src.Interval = time.Millisecond
	snk := &recordingSink{failAfter: 2}

	err := NewController(src, snk, fastOptions()).Run(context.Background())
	assert.ErrorIs(t, err, core.ErrSinkClosed)
	assert.Contains(t, err.Error(), "connection reset by peer")

	select {
	case <-src.Done():
	case <-time.After(time.Second):
		t.Fatal("capture still running after sink failure")
	}
	assert.Len(t, snk.messages(), 2)
}

func TestRunDropsNewestWhenConsumerIsSlow(t *testing.T) {
	frames := make([][]byte, 50)
	for i := range frames {
		frames[i] = sourcetest.UDP()
	}
	src := sourcetest.New(frames...)
	snk := &recordingSink{gate: src.Done()}
	c := NewController(src, snk, Options{QueueCapacity: 4, PollInterval: time.Millisecond})

	require.NoError(t, c.Run(context.Background()))

	stats := c.Stats()
	assert.Equal(t, uint64(50), stats.Counts.Get(core.UDP), "counts include dropped events")
	assert.Positive(t, stats.Dropped)
	assert.Equal(t, uint64(50), stats.Delivered+stats.Dropped)

	// survivors arrive in capture order and the first frame is never dropped
	pkts := packets(snk.messages())
	require.NotEmpty(t, pkts)
	assert.Equal(t, uint64(1), pkts[0].ProtocolCounts.Get(core.UDP))
	for i := 1; i < len(pkts); i++ {
		assert.Greater(t, pkts[i].ProtocolCounts.Get(core.UDP), pkts[i-1].ProtocolCounts.Get(core.UDP))
	}
}

func TestRunOnlyOnce(t *testing.T) {
	c := NewController(sourcetest.New(), &recordingSink{}, fastOptions())
	assert.Equal(t, StateIdle, c.State())
	require.NoError(t, c.Run(context.Background()))
	assert.ErrorIs(t, c.Run(context.Background()), core.ErrSessionClosed)
}

func TestNewControllerDefaults(t *testing.T) {
	c := NewController(sourcetest.New(), &recordingSink{}, Options{})
	assert.Equal(t, DefaultPollInterval, c.opts.PollInterval)
	assert.Positive(t, c.opts.QueueCapacity)
}
