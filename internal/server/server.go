// Package server implements the flo broadcaster: a WebSocket hub that fans
// resource records out to every connected live-update client.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/koltyakov/flo/internal/debughttp"
	"github.com/koltyakov/flo/internal/domain"
	"github.com/koltyakov/flo/internal/floproto"
	"github.com/koltyakov/flo/internal/log"
)

const (
	wsWriteTimeout      = 10 * time.Second
	wsReadLimit         = 64 * 1024
	defaultPingTimeout  = 90 * time.Second
	shutdownTimeout     = 5 * time.Second
	sessionDrainTimeout = 5 * time.Second
	controlQueueSize    = 8
	dataQueueSize       = 64
)

type Options struct {
	Host        string
	Port        int
	PingTimeout time.Duration
	Version     string
	// Pprof mounts the runtime profiles under /debug/pprof/.
	Pprof  bool
	Logger *slog.Logger
}

type Server struct {
	opts    Options
	log     *slog.Logger
	hub     *hub
	httpSrv *http.Server
	ln      net.Listener

	stopJanitor context.CancelFunc
	closed      atomic.Bool
	closeOnce   sync.Once
	closeErr    error
}

type hub struct {
	mu       sync.RWMutex
	sessions map[string]*session
	wg       sync.WaitGroup
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// New creates a broadcaster. Call Start to listen, or mount Handler on an
// existing server.
func New(opts Options) *Server {
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = defaultPingTimeout
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	s := &Server{
		opts: opts,
		log:  log.Component(opts.Logger, "server"),
		hub:  &hub{sessions: map[string]*session{}},
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.stopJanitor = cancel
	go s.runJanitor(ctx)
	return s
}

// Handler returns the HTTP routes served by the broadcaster.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(floproto.ConnectPath, s.handleConnect)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.opts.Pprof {
		debughttp.Mount(mux)
	}
	return mux
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	if s.closed.Load() {
		return fmt.Errorf("start: %w", domain.ErrServerClosed)
	}
	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.ln = ln
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("serve failed", "err", err)
		}
	}()
	s.log.Info("listening", "addr", ln.Addr().String())
	return nil
}

// Addr reports the bound address after Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Clients returns the number of connected sessions.
func (s *Server) Clients() int {
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	return len(s.hub.sessions)
}

// Close tells every client the server is going away, drops the sessions and
// shuts down the listener. Broadcasts after Close fail with ErrServerClosed.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.stopJanitor()
		s.closeAllSessions()
		if s.httpSrv != nil {
			s.closeErr = shutdownServer(s.httpSrv, shutdownTimeout)
		}
		if !waitGroupWait(&s.hub.wg, sessionDrainTimeout) {
			s.log.Warn("timed out waiting for sessions to exit")
		}
		s.log.Info("closed")
	})
	return s.closeErr
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.Clients(),
		"version": s.opts.Version,
	})
}

func (s *Server) snapshot() []*session {
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	sessions := make([]*session, 0, len(s.hub.sessions))
	for _, sess := range s.hub.sessions {
		sessions = append(sessions, sess)
	}
	return sessions
}

func (s *Server) closeAllSessions() {
	for _, sess := range s.snapshot() {
		_ = sess.out.WriteControl(floproto.Message{Kind: floproto.KindClose})
		sess.close()
	}
}
