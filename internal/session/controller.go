// Package session runs one capture session: it starts capture on its own
// goroutine and delivers events to a sink from the caller's goroutine until
// the consumer goes away, the sink fails, or capture ends.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/looplab/fsm"

	"firestige.xyz/pktstream/internal/aggregator"
	"firestige.xyz/pktstream/internal/capture"
	"firestige.xyz/pktstream/internal/core"
	"firestige.xyz/pktstream/internal/log"
	"firestige.xyz/pktstream/internal/metrics"
	"firestige.xyz/pktstream/internal/queue"
	"firestige.xyz/pktstream/internal/sink"
	"firestige.xyz/pktstream/internal/source"
)

const DefaultPollInterval = 100 * time.Millisecond

type Options struct {
	QueueCapacity int
	PollInterval  time.Duration
}

// Stats is a point-in-time view of a session.
type Stats struct {
	State     string
	Counts    core.Counters
	Delivered uint64
	Dropped   uint64
	Filtered  uint64
	Malformed uint64
}

var sessionSeq atomic.Uint64

// Controller owns one session. The sink is borrowed: closing it is up to the caller.
type Controller struct {
	id   uint64
	src  source.Source
	sink sink.Sink
	opts Options
	fsm  *fsm.FSM

	mu    sync.Mutex
	agg   *aggregator.Aggregator
	queue *queue.Handoff
	loop  *capture.Loop

	delivered atomic.Uint64
}

func NewController(src source.Source, snk sink.Sink, opts Options) *Controller {
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = queue.DefaultCapacity
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	id := sessionSeq.Add(1)
	return &Controller{
		id:   id,
		src:  src,
		sink: snk,
		opts: opts,
		fsm:  newFSM(id),
	}
}

// Run blocks until the session is over. It returns nil when the consumer
// disconnected or capture reached end of stream, the *core.SessionError when
// capture failed, and an error wrapping core.ErrSinkClosed when delivery
// failed. Run may be called once.
func (c *Controller) Run(ctx context.Context) error {
	fsmCtx := context.WithoutCancel(ctx)
	if err := c.fsm.Event(fsmCtx, eventConnect); err != nil {
		return fmt.Errorf("%w: state %s", core.ErrSessionClosed, c.fsm.Current())
	}

	c.mu.Lock()
	c.agg = aggregator.New()
	c.queue = queue.New(c.opts.QueueCapacity)
	c.loop = capture.NewLoop(c.src, c.agg, c.queue)
	c.mu.Unlock()

	metrics.SessionsActive.Inc()
	defer metrics.SessionsActive.Dec()

	logger := log.GetLogger().WithField("session", c.id)
	logger.Info("capture session started")

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	result := make(chan *core.SessionError, 1)
	go func() {
		result <- c.loop.Run(sessCtx)
	}()

	captureDone, err := c.deliver(sessCtx, result)

	c.transition(fsmCtx, eventTerminate)
	cancel()
	if !captureDone {
		<-result
	}
	discarded := c.queue.Drain()
	c.transition(fsmCtx, eventClose)

	stats := c.Stats()
	logger.
		WithField("counts", stats.Counts.String()).
		WithField("delivered", stats.Delivered).
		WithField("dropped", stats.Dropped).
		WithField("discarded", discarded).
		Info("capture session closed")
	return err
}

func (c *Controller) transition(ctx context.Context, event string) {
	if err := c.fsm.Event(ctx, event); err != nil {
		log.GetLogger().WithField("session", c.id).WithError(err).Warnf("session event %s rejected", event)
	}
}

// deliver sends queued events until the session ends. captureDone reports
// whether the capture result was consumed.
func (c *Controller) deliver(ctx context.Context, result <-chan *core.SessionError) (captureDone bool, err error) {
	timer := time.NewTimer(c.opts.PollInterval)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			return false, nil
		}
		if ev, ok := c.queue.TryPop(); ok {
			if err := c.send(ctx, sink.NewPacketMessage(ev)); err != nil {
				return false, c.transmissionFailure(ctx, err)
			}
			metrics.EventsDeliveredTotal.Inc()
			c.delivered.Add(1)
			continue
		}

		timer.Reset(c.opts.PollInterval)
		select {
		case <-ctx.Done():
			return false, nil
		case serr := <-result:
			return true, c.finish(ctx, serr)
		case <-timer.C:
		}
	}
}

// finish flushes what capture left in the queue and reports its outcome.
// The error message, if any, is always the last message sent.
func (c *Controller) finish(ctx context.Context, serr *core.SessionError) error {
	for {
		ev, ok := c.queue.TryPop()
		if !ok {
			break
		}
		if err := c.send(ctx, sink.NewPacketMessage(ev)); err != nil {
			return c.transmissionFailure(ctx, err)
		}
		metrics.EventsDeliveredTotal.Inc()
		c.delivered.Add(1)
	}
	if serr == nil {
		return nil
	}

	kind := metrics.KindCapture
	if serr.Startup() {
		kind = metrics.KindStartup
	}
	metrics.SessionErrorsTotal.WithLabelValues(kind).Inc()
	log.GetLogger().WithField("session", c.id).WithError(serr).Error("capture failed")

	if err := c.send(ctx, sink.NewErrorMessage(serr)); err != nil && ctx.Err() == nil {
		log.GetLogger().WithField("session", c.id).WithError(err).Warn("could not deliver error message")
	}
	return serr
}

func (c *Controller) send(ctx context.Context, msg sink.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.sink.Send(ctx, msg)
}

// transmissionFailure maps a send error to the session result. A send that
// failed because the consumer already left is a clean end.
func (c *Controller) transmissionFailure(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	metrics.SessionErrorsTotal.WithLabelValues(metrics.KindTransmission).Inc()
	log.GetLogger().WithField("session", c.id).WithError(err).Warn("delivery failed, ending session")
	if !errors.Is(err, core.ErrSinkClosed) {
		err = fmt.Errorf("%w: %w", core.ErrSinkClosed, err)
	}
	return err
}

// State is the current lifecycle state.
func (c *Controller) State() string {
	return c.fsm.Current()
}

// Stats may be called from any goroutine.
func (c *Controller) Stats() Stats {
	stats := Stats{
		State:     c.fsm.Current(),
		Delivered: c.delivered.Load(),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.agg != nil {
		stats.Counts = c.agg.Snapshot()
	}
	if c.queue != nil {
		stats.Dropped = c.queue.Stats().Dropped
	}
	if c.loop != nil {
		stats.Filtered = c.loop.Filtered()
		stats.Malformed = c.loop.Malformed()
	}
	return stats
}
