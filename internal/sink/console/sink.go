// Package console prints session messages to a terminal or any io.Writer.
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"firestige.xyz/pktstream/internal/core"
	"firestige.xyz/pktstream/internal/sink"
)

const Name = "console"

const (
	FormatText = "text"
	FormatJSON = "json"
)

type Sink struct {
	mu     sync.Mutex
	w      io.Writer
	format string
	closed bool
}

// NewSink writes to w in the given format; unknown formats fall back to text.
func NewSink(w io.Writer, format string) *Sink {
	if format != FormatJSON {
		format = FormatText
	}
	return &Sink{w: w, format: format}
}

func (s *Sink) Send(ctx context.Context, msg sink.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrSinkClosed
	}

	var err error
	if s.format == FormatJSON {
		err = json.NewEncoder(s.w).Encode(msg)
	} else {
		_, err = fmt.Fprintln(s.w, render(msg))
	}
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrSinkClosed, err)
	}
	return nil
}

func (s *Sink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func render(msg sink.Message) string {
	switch m := msg.(type) {
	case sink.PacketMessage:
		return fmt.Sprintf("[%s] %s", m.ProtocolCounts, m.Log)
	case sink.ErrorMessage:
		return "error: " + m.Error
	default:
		return fmt.Sprintf("%v", msg)
	}
}
