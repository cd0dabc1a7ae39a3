// Package capture runs the producer side of a session: it drives a Source,
// classifies each frame, updates the counts and hands events to the delivery side.
package capture

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"

	"firestige.xyz/pktstream/internal/aggregator"
	"firestige.xyz/pktstream/internal/classifier"
	"firestige.xyz/pktstream/internal/core"
	"firestige.xyz/pktstream/internal/log"
	"firestige.xyz/pktstream/internal/metrics"
	"firestige.xyz/pktstream/internal/queue"
	"firestige.xyz/pktstream/internal/source"
)

// Loop is single use: Run may be called once.
type Loop struct {
	src   source.Source
	agg   *aggregator.Aggregator
	queue *queue.Handoff

	filtered  atomic.Uint64
	malformed atomic.Uint64
}

func NewLoop(src source.Source, agg *aggregator.Aggregator, q *queue.Handoff) *Loop {
	return &Loop{
		src:   src,
		agg:   agg,
		queue: q,
	}
}

// Run captures until ctx is cancelled or the source stops. It returns nil on
// cancellation or end of stream, and the terminal failure otherwise.
func (l *Loop) Run(ctx context.Context) (serr *core.SessionError) {
	defer func() {
		if r := recover(); r != nil {
			log.GetLogger().WithField("stack", string(debug.Stack())).Errorf("capture loop panic: %v", r)
			serr = &core.SessionError{Op: core.OpCapture, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	err := l.src.Run(ctx, l.handle)
	if err == nil || ctx.Err() != nil && !errors.Is(err, core.ErrCaptureStart) {
		return nil
	}

	op := core.OpCapture
	if errors.Is(err, core.ErrCaptureStart) {
		op = core.OpStart
	}
	return &core.SessionError{Op: op, Err: err}
}

// handle must never take down the loop for one bad frame.
func (l *Loop) handle(pkt gopacket.Packet) {
	defer func() {
		if r := recover(); r != nil {
			l.malformed.Add(1)
			log.GetLogger().Debugf("dropping frame that could not be classified: %v", r)
		}
	}()

	res, ok := classifier.Classify(pkt)
	if !ok {
		l.filtered.Add(1)
		metrics.FramesFilteredTotal.Inc()
		return
	}

	counts := l.agg.Record(res.Protocol)
	metrics.FramesTotal.WithLabelValues(res.Protocol.String()).Inc()

	ev := core.CaptureEvent{
		Counts:    counts,
		Protocol:  res.Protocol,
		Summary:   res.Summary,
		Timestamp: timestamp(pkt),
	}
	if !l.queue.TryPush(ev) {
		metrics.EventsDroppedTotal.Inc()
	}
}

// Filtered is the number of frames discarded for lacking an IP layer.
func (l *Loop) Filtered() uint64 {
	return l.filtered.Load()
}

// Malformed is the number of frames whose decoding panicked.
func (l *Loop) Malformed() uint64 {
	return l.malformed.Load()
}

func timestamp(pkt gopacket.Packet) time.Time {
	if md := pkt.Metadata(); md != nil && !md.Timestamp.IsZero() {
		return md.Timestamp
	}
	return time.Now()
}
