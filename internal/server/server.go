// Package server exposes capture sessions over websocket. Every accepted
// connection gets its own capture source and session; the session ends when
// either side goes away.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"firestige.xyz/pktstream/internal/config"
	"firestige.xyz/pktstream/internal/core"
	"firestige.xyz/pktstream/internal/log"
	"firestige.xyz/pktstream/internal/session"
	"firestige.xyz/pktstream/internal/sink"
	wssink "firestige.xyz/pktstream/internal/sink/websocket"
	"firestige.xyz/pktstream/internal/source"
)

const HealthPath = "/healthz"

// SourceFactory builds a fresh capture source for one connection.
type SourceFactory func() (source.Source, error)

type Server struct {
	cfg      config.ServerConfig
	sessCfg  config.SessionConfig
	factory  SourceFactory
	upgrader websocket.Upgrader

	server *http.Server
	ln     net.Listener

	// sessions outlive the handler's request context once hijacked
	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	closing  bool
	sessions sync.WaitGroup
}

func New(cfg config.ServerConfig, sessCfg config.SessionConfig, factory SourceFactory) *Server {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		sessCfg: sessCfg,
		factory: factory,
		baseCtx: ctx,
		cancel:  cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// checkOrigin accepts requests without an Origin header (non-browser
// clients) and, when an allow-list is configured, only the listed origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	log.GetLogger().WithField("origin", origin).Warn("rejecting websocket connection from origin")
	return false
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.serveWS)
	mux.HandleFunc(HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	if !s.track() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.sessions.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.GetLogger().WithError(err).Debug("websocket upgrade failed")
		return
	}

	logger := log.GetLogger().WithField("remote", conn.RemoteAddr().String())
	logger.Info("consumer connected")

	ctx, cancel := context.WithCancel(s.baseCtx)
	defer cancel()

	snk := wssink.NewSink(conn, s.cfg.WriteTimeout)
	defer snk.Close()

	go readPump(conn, cancel)

	src, err := s.factory()
	if err != nil {
		serr := &core.SessionError{Op: core.OpStart, Err: err}
		logger.WithError(err).Error("could not create capture source")
		if err := snk.Send(ctx, sink.NewErrorMessage(serr)); err != nil {
			logger.WithError(err).Debug("could not deliver error message")
		}
		return
	}

	ctrl := session.NewController(src, snk, session.Options{
		QueueCapacity: s.sessCfg.QueueCapacity,
		PollInterval:  s.sessCfg.PollInterval,
	})
	if err := ctrl.Run(ctx); err != nil {
		logger.WithError(err).Warn("capture session ended with error")
	}
	logger.WithField("counts", ctrl.Stats().Counts.String()).Info("consumer disconnected")
}

// readPump discards inbound frames and cancels the session when the
// consumer closes the connection or the read fails.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.sessions.Add(1)
	return true
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("websocket server listen on %s: %w", s.cfg.Listen, err)
	}
	s.ln = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
	}

	log.GetLogger().WithField("addr", ln.Addr().String()).WithField("path", s.cfg.Path).Info("starting websocket server")

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.GetLogger().WithError(err).Error("websocket server error")
		}
	}()
	return nil
}

// Addr is the bound address, valid after Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.cfg.Listen
	}
	return s.ln.Addr().String()
}

// Stop refuses new connections, ends every live session and waits for them
// until ctx is done.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	s.cancel()

	var shutdownErr error
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("websocket server shutdown failed: %w", err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(shutdownErr, fmt.Errorf("sessions still running: %w", ctx.Err()))
	}

	log.GetLogger().Info("websocket server stopped")
	return shutdownErr
}

// Run serves until ctx is cancelled, then stops within the configured grace period.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	grace := s.cfg.ShutdownGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return s.Stop(stopCtx)
}
