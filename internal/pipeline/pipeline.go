// Package pipeline connects a change detector to a resolver and a
// broadcaster: every detected change is resolved into a resource record,
// validated and fanned out to connected clients.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/koltyakov/flo/internal/domain"
	"github.com/koltyakov/flo/internal/log"
	"github.com/koltyakov/flo/internal/resolver"
)

// Detector reports changed files by absolute path.
type Detector interface {
	Ready() <-chan struct{}
	Events() <-chan string
	Errors() <-chan error
	Close() error
}

// Broadcaster delivers a record to every connected client and reports how
// many received it.
type Broadcaster interface {
	Broadcast(ctx context.Context, res domain.Resource) (int, error)
	Close() error
}

// Recorder persists a summary of each delivery.
type Recorder interface {
	RecordDelivery(ctx context.Context, d domain.Delivery) error
}

type Options struct {
	OnReady  func()
	Recorder Recorder
	Logger   *slog.Logger
}

// Pipeline owns the detector and broadcaster for its lifetime.
type Pipeline struct {
	root string
	det  Detector
	res  resolver.Resolver
	bc   Broadcaster
	opts Options
	log  *slog.Logger

	ready     chan struct{}
	stop      chan struct{}
	fatal     chan error
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	inflight  sync.WaitGroup
}

func New(root string, det Detector, res resolver.Resolver, bc Broadcaster, opts Options) *Pipeline {
	return &Pipeline{
		root:  root,
		det:   det,
		res:   res,
		bc:    bc,
		opts:  opts,
		log:   log.Component(opts.Logger, "flo"),
		ready: make(chan struct{}),
		stop:  make(chan struct{}),
		fatal: make(chan error, 1),
	}
}

// Ready closes once the detector has finished its initial scan.
func (p *Pipeline) Ready() <-chan struct{} { return p.ready }

// Run consumes detector events until ctx is done, Close is called, or a
// fatal error occurs. Resolver failures and invalid records are fatal and
// returned after the pipeline has been closed.
func (p *Pipeline) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		p.inflight.Wait()
	}()

	readyCh := p.det.Ready()
	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-p.stop:
			break loop
		case <-readyCh:
			readyCh = nil
			close(p.ready)
			p.log.Info("ready")
			if p.opts.OnReady != nil {
				p.opts.OnReady()
			}
		case path := <-p.det.Events():
			p.inflight.Add(1)
			go func() {
				defer p.inflight.Done()
				p.handle(ctx, path)
			}()
		case err := <-p.det.Errors():
			runErr = fmt.Errorf("detector: %w", err)
			break loop
		case err := <-p.fatal:
			runErr = err
			break loop
		}
	}
	if err := p.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Close stops the detector and the broadcaster. It is safe to call more
// than once; results of changes still in flight are discarded.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.stop)
		p.closeErr = errors.Join(p.det.Close(), p.bc.Close())
	})
	return p.closeErr
}

func (p *Pipeline) handle(ctx context.Context, abs string) {
	rel, err := filepath.Rel(p.root, abs)
	if err != nil {
		rel = abs
	}
	rel = filepath.ToSlash(rel)
	p.log.Info("changed", "path", rel)

	res, err := p.res.Resolve(ctx, rel)
	if p.closed.Load() {
		return
	}
	if err != nil {
		p.fail(fmt.Errorf("resolve %s: %w", rel, err))
		return
	}
	if err := res.Validate(); err != nil {
		p.fail(fmt.Errorf("resolve %s: %w", rel, err))
		return
	}

	n, err := p.bc.Broadcast(ctx, *res)
	if err != nil {
		if p.closed.Load() || errors.Is(err, domain.ErrServerClosed) {
			return
		}
		p.log.Warn("broadcast failed", "url", res.URL, "err", err)
		return
	}
	p.log.Debug("broadcast", "url", res.URL, "clients", n)

	if p.opts.Recorder == nil {
		return
	}
	d := domain.Delivery{
		ID:          ulid.Make().String(),
		ResourceURL: res.URL,
		Bytes:       len(res.Contents),
		Clients:     n,
		DeliveredAt: time.Now(),
	}
	if err := p.opts.Recorder.RecordDelivery(ctx, d); err != nil {
		p.log.Warn("record delivery", "url", res.URL, "err", err)
	}
}

func (p *Pipeline) fail(err error) {
	select {
	case p.fatal <- err:
	default:
	}
}
