// Package client implements the flo live-update client: a reconnecting
// session to the broadcaster and the controller that decides, per host,
// whether a session should run at all.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/koltyakov/flo/internal/domain"
	"github.com/koltyakov/flo/internal/floproto"
	"github.com/koltyakov/flo/internal/log"
)

const (
	defaultPingInterval   = 30 * time.Second
	clientWSWriteTimeout  = 10 * time.Second
	clientWSReadLimit     = 16 * 1024 * 1024
	wsHandshakeTimeout    = 10 * time.Second
	wsMessageBufferSize   = 16
	closeFrameWriteBudget = time.Second
)

var errServerGoingAway = errors.New("server closed the connection")

// StatusUpdate is reported by a Session on every state change.
type StatusUpdate struct {
	Status Status
	// Delay is the wait before the next attempt; set for StatusRetry.
	Delay time.Duration
	Err   error
}

// SessionOptions configures a Session.
type SessionOptions struct {
	Host string
	Port int

	// OnStatus and OnResource are called from the session goroutine, one at
	// a time. Neither is called after Destroy returns.
	OnStatus   func(StatusUpdate)
	OnResource func(ctx context.Context, res domain.Resource)

	PingInterval time.Duration
	// RetryLimit is the number of consecutive failed attempts retried before
	// the session gives up with StatusError.
	RetryLimit int
	Backoff    Backoff
	Dialer     *websocket.Dialer
	Logger     *slog.Logger
}

// LiveSession is the part of a Session the controller depends on.
type LiveSession interface {
	Start() error
	Destroy()
}

// Session is one client connection lifecycle:
// connecting → connected → started, with retry and a terminal error state.
// A destroyed session cannot be restarted.
type Session struct {
	opts SessionOptions
	log  *slog.Logger
	url  string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	started   bool
	destroyed bool
}

func NewSession(opts SessionOptions) *Session {
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.RetryLimit <= 0 {
		opts.RetryLimit = defaultRetryLimit
	}
	if opts.Backoff.Initial <= 0 {
		opts.Backoff = DefaultBackoff()
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	}
	ctx, cancel := context.WithCancel(context.Background())
	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		Path:   floproto.ConnectPath,
	}
	return &Session{
		opts:   opts,
		log:    log.Component(opts.Logger, "session").With("server", u.Host),
		url:    u.String(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start launches the connection goroutine. A second call does nothing; a
// call after Destroy returns [domain.ErrSessionDestroyed].
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return domain.ErrSessionDestroyed
	}
	if s.started {
		return nil
	}
	s.started = true
	go s.run()
	return nil
}

// Destroy cancels any pending retry timer and open connection and waits for
// the session goroutine to exit. It is valid in every state.
func (s *Session) Destroy() {
	s.cancel()

	s.mu.Lock()
	s.destroyed = true
	started := s.started
	s.mu.Unlock()

	if started {
		<-s.done
	}
}

func (s *Session) emit(u StatusUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return false
	}
	if s.opts.OnStatus != nil {
		s.opts.OnStatus(u)
	}
	return true
}

func (s *Session) deliver(res domain.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed || s.opts.OnResource == nil {
		return
	}
	s.opts.OnResource(s.ctx, res)
}

func (s *Session) run() {
	defer close(s.done)

	failures := 0
	for {
		if !s.emit(StatusUpdate{Status: StatusConnecting}) {
			return
		}
		err := s.connect(s.ctx, func() { failures = 0 })
		if s.ctx.Err() != nil {
			return
		}
		if isNonRetriableDialError(err) {
			s.log.Warn("connection rejected", "err", err)
			s.emit(StatusUpdate{Status: StatusError, Err: err})
			return
		}
		failures++
		if failures > s.opts.RetryLimit {
			s.log.Warn("giving up", "failures", failures, "err", err)
			s.emit(StatusUpdate{Status: StatusError, Err: err})
			return
		}
		delay := s.opts.Backoff.Delay(failures)
		s.log.Debug("connection failed; retrying", "err", err, "retry_in", delay.String())
		if !s.emit(StatusUpdate{Status: StatusRetry, Delay: delay, Err: err}) {
			return
		}

		timer := time.NewTimer(delay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// connect runs one connection until it drops. onStarted fires when the
// server greets the session.
func (s *Session) connect(ctx context.Context, onStarted func()) error {
	conn, resp, err := s.opts.Dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		de := &dialError{Err: err}
		if resp != nil {
			de.StatusCode = resp.StatusCode
			_ = resp.Body.Close()
		}
		return de
	}
	conn.SetReadLimit(clientWSReadLimit)

	connCtx, cancelConn := context.WithCancel(ctx)
	stopClose := make(chan struct{})
	go func() {
		select {
		case <-connCtx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(closeFrameWriteBudget))
			_ = conn.Close()
		case <-stopClose:
		}
	}()
	defer func() {
		cancelConn()
		close(stopClose)
		_ = conn.Close()
	}()

	if !s.emit(StatusUpdate{Status: StatusConnected}) {
		return ctx.Err()
	}

	var writeMu sync.Mutex
	writeJSON := func(msg floproto.Message) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.SetWriteDeadline(time.Now().Add(clientWSWriteTimeout)); err != nil {
			_ = conn.Close()
			return err
		}
		defer func() { _ = conn.SetWriteDeadline(time.Time{}) }()
		err := conn.WriteJSON(msg)
		if err != nil {
			_ = conn.Close()
		}
		return err
	}

	keepaliveErr := make(chan error, 1)
	go func() {
		ticker := time.NewTicker(s.opts.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-connCtx.Done():
				return
			case <-ticker.C:
				if err := writeJSON(floproto.Message{Kind: floproto.KindPing}); err != nil {
					select {
					case keepaliveErr <- err:
					default:
					}
					return
				}
			}
		}
	}()

	msgCh := make(chan floproto.Message, wsMessageBufferSize)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				select {
				case readErr <- err:
				default:
				}
				return
			}
			msg, err := floproto.Decode(raw)
			if err != nil {
				s.log.Debug("ignoring server frame", "err", err)
				continue
			}
			select {
			case msgCh <- msg:
			case <-connCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-connCtx.Done():
			return connCtx.Err()
		case err := <-keepaliveErr:
			return fmt.Errorf("keepalive: %w", err)
		case err := <-readErr:
			return fmt.Errorf("read: %w", err)
		case msg := <-msgCh:
			switch msg.Kind {
			case floproto.KindHello:
				onStarted()
				sessionID := ""
				if msg.Hello != nil {
					sessionID = msg.Hello.SessionID
				}
				s.log.Info("session started", "session_id", sessionID)
				if !s.emit(StatusUpdate{Status: StatusStarted}) {
					return ctx.Err()
				}
			case floproto.KindResource:
				s.deliver(*msg.Resource)
			case floproto.KindClose:
				return errServerGoingAway
			}
		}
	}
}
