package server

import (
	"context"
	"time"
)

const minJanitorInterval = time.Second

func (s *Server) runJanitor(ctx context.Context) {
	interval := s.opts.PingTimeout / 3
	if interval < minJanitorInterval {
		interval = minJanitorInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.expireStaleSessions(time.Now())
		}
	}
}

// expireStaleSessions drops clients that have not pinged within the ping
// timeout.
func (s *Server) expireStaleSessions(now time.Time) int {
	expired := 0
	for _, sess := range s.snapshot() {
		lastSeen := sess.lastSeen()
		if now.Sub(lastSeen) <= s.opts.PingTimeout {
			continue
		}
		if !sess.closing.CompareAndSwap(false, true) {
			continue
		}
		s.log.Warn("client heartbeat timeout", "session_id", sess.id, "last_seen", lastSeen.UTC().Format(time.RFC3339))
		sess.close()
		expired++
	}
	return expired
}
