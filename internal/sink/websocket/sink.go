// Package websocket delivers session messages as JSON text frames.
package websocket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"firestige.xyz/pktstream/internal/core"
	"firestige.xyz/pktstream/internal/sink"
)

const Name = "websocket"

const defaultWriteTimeout = 5 * time.Second

// Sink owns the write side of conn. Close sends a normal close frame and
// closes the connection.
type Sink struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func NewSink(conn *websocket.Conn, writeTimeout time.Duration) *Sink {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &Sink{conn: conn, writeTimeout: writeTimeout}
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

	deadline := time.Now().Add(s.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %w", core.ErrSinkClosed, err)
	}
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("%w: %w", core.ErrSinkClosed, err)
	}
	return nil
}

func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	// The peer may already be gone; the close frame is best effort.
	_ = s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return s.conn.Close()
}
