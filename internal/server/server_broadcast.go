package server

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/koltyakov/flo/internal/domain"
	"github.com/koltyakov/flo/internal/floproto"
)

// Broadcast sends res to every connected client concurrently and returns
// how many writes succeeded. Clients whose write fails are dropped. No
// ordering is guaranteed across clients.
func (s *Server) Broadcast(ctx context.Context, res domain.Resource) (int, error) {
	if s.closed.Load() {
		return 0, domain.ErrServerClosed
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg := floproto.ResourceMessage(res)

	var delivered atomic.Int64
	var wg sync.WaitGroup
	for _, sess := range s.snapshot() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sess.out.WriteData(msg); err != nil {
				if !sess.closing.Load() {
					s.log.Warn("dropping client after failed write", "session_id", sess.id, "err", err)
				}
				sess.close()
				return
			}
			delivered.Add(1)
		}()
	}
	wg.Wait()

	if s.closed.Load() {
		return int(delivered.Load()), domain.ErrServerClosed
	}
	return int(delivered.Load()), nil
}
