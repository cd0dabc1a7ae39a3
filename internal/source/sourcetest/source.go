package sourcetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"firestige.xyz/pktstream/internal/core"
	"firestige.xyz/pktstream/internal/source"
)

var _ source.Source = (*Source)(nil)

// Source replays in-memory frames.
type Source struct {
	frames [][]byte

	// StartErr makes Run fail before the first frame, wrapped in core.ErrCaptureStart.
	StartErr error
	// RunErr is returned after every frame has been delivered.
	RunErr error
	// Loop replays the frames until ctx is cancelled.
	Loop bool
	// Interval is the pause between frames.
	Interval time.Duration
	// Hold keeps Run blocked after the last frame until ctx is cancelled.
	Hold bool
	// Panic makes Run panic after the frames.
	Panic bool

	delivered atomic.Int64
	started   chan struct{}
	done      chan struct{}
	startOnce sync.Once
	doneOnce  sync.Once
}

func New(frames ...[]byte) *Source {
	return &Source{
		frames:  frames,
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (s *Source) Interfaces() ([]core.Interface, error) {
	return []core.Interface{{Name: "test0", Description: "in-memory frames"}}, nil
}

func (s *Source) Run(ctx context.Context, handle source.Handler) error {
	s.startOnce.Do(func() { close(s.started) })
	defer s.doneOnce.Do(func() { close(s.done) })

	if s.StartErr != nil {
		return fmt.Errorf("%w: %v", core.ErrCaptureStart, s.StartErr)
	}

	for {
		if len(s.frames) == 0 && s.Loop {
			<-ctx.Done()
			return nil
		}
		for _, f := range s.frames {
			if ctx.Err() != nil {
				return nil
			}
			handle(Packet(f))
			s.delivered.Add(1)
			if s.Interval > 0 {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(s.Interval):
				}
			}
		}
		if !s.Loop {
			break
		}
	}

	if s.Panic {
		panic("sourcetest: injected panic")
	}
	if s.RunErr != nil {
		return s.RunErr
	}
	if s.Hold {
		<-ctx.Done()
	}
	return nil
}

// Delivered is the number of frames handed to the handler so far.
func (s *Source) Delivered() int64 {
	return s.delivered.Load()
}

// Started is closed when Run is entered.
func (s *Source) Started() <-chan struct{} {
	return s.started
}

// Done is closed when Run returns.
func (s *Source) Done() <-chan struct{} {
	return s.done
}
