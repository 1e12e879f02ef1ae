package server

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/koltyakov/flo/internal/floproto"
)

type session struct {
	id               string
	conn             *websocket.Conn
	out              *floproto.Writer
	lastSeenUnixNano atomic.Int64
	closing          atomic.Bool
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if s.closed.Load() {
		http.Error(w, "server closed", http.StatusServiceUnavailable)
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "err", err)
		return
	}
	conn.SetReadLimit(wsReadLimit)

	sess := &session{
		id:   ulid.Make().String(),
		conn: conn,
		out:  floproto.NewWriter(conn, wsWriteTimeout, controlQueueSize, dataQueueSize),
	}
	sess.touch(time.Now())

	hello := floproto.Message{Kind: floproto.KindHello, Hello: &floproto.Hello{
		SessionID:     sess.id,
		ServerVersion: s.opts.Version,
	}}
	if err := sess.out.WriteControl(hello); err != nil {
		s.log.Warn("hello failed", "session_id", sess.id, "err", err)
		sess.close()
		return
	}

	s.hub.mu.Lock()
	if s.closed.Load() {
		s.hub.mu.Unlock()
		sess.close()
		return
	}
	s.hub.sessions[sess.id] = sess
	s.hub.wg.Add(1)
	s.hub.mu.Unlock()
	s.log.Info("client connected", "session_id", sess.id, "remote", r.RemoteAddr)

	go func() {
		defer s.hub.wg.Done()
		s.readLoop(sess)
	}()
}

func (s *Server) readLoop(sess *session) {
	defer func() {
		sess.close()
		s.hub.mu.Lock()
		delete(s.hub.sessions, sess.id)
		s.hub.mu.Unlock()
		s.log.Info("client disconnected", "session_id", sess.id)
	}()

	for {
		_, raw, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.Warn("client read error", "session_id", sess.id, "err", err)
			}
			return
		}
		sess.touch(time.Now())

		msg, err := floproto.Decode(raw)
		if err != nil {
			s.log.Debug("ignoring client frame", "session_id", sess.id, "err", err)
			continue
		}
		switch msg.Kind {
		case floproto.KindPing:
			_ = sess.out.WriteControl(floproto.Message{Kind: floproto.KindPong})
		case floproto.KindClose:
			return
		}
	}
}

func (s *session) close() {
	s.closing.Store(true)
	s.out.Close()
	_ = s.conn.Close()
}

func (s *session) touch(t time.Time) {
	s.lastSeenUnixNano.Store(t.UnixNano())
}

func (s *session) lastSeen() time.Time {
	n := s.lastSeenUnixNano.Load()
	if n == 0 {
		return time.Unix(0, 0)
	}
	return time.Unix(0, n)
}
