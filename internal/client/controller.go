package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/koltyakov/flo/internal/domain"
	"github.com/koltyakov/flo/internal/hostmatch"
	"github.com/koltyakov/flo/internal/log"
	"github.com/koltyakov/flo/internal/settings"
)

// ControllerOptions wires a Controller to its collaborators. Store and Hosts
// are required.
type ControllerOptions struct {
	Store   settings.Store
	Hosts   HostResolver
	Applier Applier

	// NewSession builds the live session; defaults to NewSession.
	NewSession   func(SessionOptions) LiveSession
	PingInterval time.Duration
	RetryLimit   int
	Logger       *slog.Logger
}

// Controller owns the configuration and at most one live session. Lifecycle
// operations are serialized; panel events are delivered in the order they
// were produced.
type Controller struct {
	opts ControllerOptions
	log  *slog.Logger

	mu      sync.Mutex
	cfg     settings.Configuration
	session LiveSession
	stopped bool

	panelMu sync.Mutex
	panel   Panel
	pending []Event
	flushed bool
}

func NewController(opts ControllerOptions) *Controller {
	if opts.NewSession == nil {
		opts.NewSession = func(o SessionOptions) LiveSession { return NewSession(o) }
	}
	return &Controller{
		opts: opts,
		log:  log.Component(opts.Logger, "flo"),
		cfg:  settings.Default(),
	}
}

// Start loads the persisted configuration, reports StatusStarting and opens
// the first session.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cfg, err := settings.Load(ctx, c.opts.Store)
	if err != nil {
		c.log.Warn("load configuration; using defaults", "err", err)
	}
	c.cfg = cfg
	c.emitStatus(StatusStarting, 0)
	c.startNewSessionLocked(ctx)
}

// StartNewSession destroys the current session, then opens a new one if the
// current host matches a rule. Otherwise it reports StatusDisabled.
func (c *Controller) StartNewSession(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startNewSessionLocked(ctx)
}

// Retry is StartNewSession under the name the panel uses.
func (c *Controller) Retry(ctx context.Context) {
	c.StartNewSession(ctx)
}

// EnableForHost adds the current host as a literal rule, saves the
// configuration, reloads the panel and restarts. It does nothing when a rule
// already accepts the host.
func (c *Controller) EnableForHost(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return nil
	}

	host, err := c.opts.Hosts.CurrentHostname(ctx)
	if err != nil {
		return fmt.Errorf("enable for host: %w", err)
	}
	if host == "" {
		return fmt.Errorf("enable for host: %w", errNoHostname)
	}
	if _, ok := hostmatch.Match(c.cfg.HostRules, host); ok {
		return nil
	}
	c.cfg = c.cfg.WithRule(hostmatch.Literal(host).WithTarget(host, 0))
	if err := settings.Save(ctx, c.opts.Store, c.cfg); err != nil {
		c.log.Error("save configuration", "err", err)
	}
	c.emit(Event{Kind: EventLoad, Config: c.cfg.Clone()})
	c.startNewSessionLocked(ctx)
	return nil
}

// ConfigurationChanged replaces the configuration wholesale, saves it and
// restarts.
func (c *Controller) ConfigurationChanged(ctx context.Context, cfg settings.Configuration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return nil
	}

	c.cfg = cfg.Clone()
	var saveErr error
	if err := settings.Save(ctx, c.opts.Store, c.cfg); err != nil {
		saveErr = fmt.Errorf("save configuration: %w", err)
	}
	c.startNewSessionLocked(ctx)
	return saveErr
}

// Handle dispatches a panel command.
func (c *Controller) Handle(ctx context.Context, cmd Command) error {
	switch cmd.Kind {
	case CommandConfigurationChanged:
		return c.ConfigurationChanged(ctx, cmd.Config)
	case CommandRetry:
		c.Retry(ctx)
		return nil
	case CommandEnableForHost:
		return c.EnableForHost(ctx)
	}
	return fmt.Errorf("unknown command %q", cmd.Kind)
}

// Stop destroys the live session. The controller ignores further commands.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	c.destroySessionLocked()
}

// Configuration returns a copy of the current configuration.
func (c *Controller) Configuration() settings.Configuration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Clone()
}

// AttachPanel connects p. Events produced before the first attach are
// delivered to it once, in order. Every attach is followed by a load event.
func (c *Controller) AttachPanel(p Panel) {
	c.mu.Lock()
	cfg := c.cfg.Clone()
	c.panelMu.Lock()
	c.mu.Unlock()
	defer c.panelMu.Unlock()

	c.panel = p
	if !c.flushed {
		for _, ev := range c.pending {
			p.Deliver(ev)
		}
		c.pending = nil
		c.flushed = true
	}
	p.Deliver(Event{Kind: EventLoad, Config: cfg})
}

func (c *Controller) startNewSessionLocked(ctx context.Context) {
	if c.stopped {
		return
	}
	c.destroySessionLocked()

	host, err := c.opts.Hosts.CurrentHostname(ctx)
	if err != nil || host == "" {
		c.log.Info("disabled: hostname unavailable", "err", err)
		c.emitStatus(StatusDisabled, 0)
		return
	}
	rule, ok := hostmatch.Match(c.cfg.HostRules, host)
	if !ok {
		c.log.Info("disabled for host", "host", host)
		c.emitStatus(StatusDisabled, 0)
		return
	}

	server := rule.Server
	if server == "" {
		server = host
	}
	port := rule.Port
	if port == 0 {
		port = c.cfg.Port
	}
	c.log.Info("starting session", "host", host, "rule", rule.String(), "server", server, "port", port)
	sess := c.opts.NewSession(SessionOptions{
		Host:         server,
		Port:         port,
		OnStatus:     c.onSessionStatus,
		OnResource:   c.onResource,
		PingInterval: c.opts.PingInterval,
		RetryLimit:   c.opts.RetryLimit,
		Logger:       c.opts.Logger,
	})
	c.session = sess
	if err := sess.Start(); err != nil {
		c.log.Error("start session", "err", err)
	}
}

func (c *Controller) destroySessionLocked() {
	if c.session == nil {
		return
	}
	c.session.Destroy()
	c.session = nil
}

func (c *Controller) onSessionStatus(u StatusUpdate) {
	if u.Err != nil {
		c.log.Debug("session status", "status", string(u.Status), "err", u.Err)
	}
	c.emitStatus(u.Status, u.Delay)
}

func (c *Controller) onResource(ctx context.Context, res domain.Resource) {
	c.log.Info("resource", "url", res.URL, "bytes", len(res.Contents))
	if c.opts.Applier != nil {
		if err := c.opts.Applier.Apply(ctx, res); err != nil {
			c.log.Warn("apply resource", "url", res.URL, "err", err)
		}
	}
	c.emit(Event{Kind: EventResource, Resource: res})
}

func (c *Controller) emitStatus(st Status, delay time.Duration) {
	c.emit(Event{Kind: EventStatusChange, Status: DescribeStatus(st, delay)})
}

func (c *Controller) emit(ev Event) {
	c.panelMu.Lock()
	defer c.panelMu.Unlock()
	if c.panel == nil {
		c.pending = append(c.pending, ev)
		return
	}
	c.panel.Deliver(ev)
}
