// Package devtools attaches the flo client to a browser page over the Chrome
// DevTools Protocol. It reports the page hostname used for host matching and
// hands delivered resources to the page as a "flo-reload" DOM event.
package devtools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/rpcc"
	"github.com/tidwall/gjson"

	"github.com/koltyakov/flo/internal/domain"
	"github.com/koltyakov/flo/internal/log"
	"github.com/koltyakov/flo/internal/netutil"
)

// ReloadEvent is the CustomEvent type dispatched on window for each resource.
const ReloadEvent = "flo-reload"

var ErrNoTarget = errors.New("no matching page target")

// Page is an attached browser tab.
type Page struct {
	target *devtool.Target
	conn   *rpcc.Conn
	client *cdp.Client
	log    *slog.Logger
}

// Attach connects to the first page target whose URL contains match (any
// page when match is empty).
func Attach(ctx context.Context, devtoolsURL, match string, logger *slog.Logger) (*Page, error) {
	targets, err := devtool.New(devtoolsURL).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	target, err := selectTarget(targets, match)
	if err != nil {
		return nil, err
	}
	conn, err := rpcc.DialContext(ctx, target.WebSocketDebuggerURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target.WebSocketDebuggerURL, err)
	}
	p := &Page{
		target: target,
		conn:   conn,
		client: cdp.NewClient(conn),
		log:    log.Component(logger, "devtools"),
	}
	p.log.Info("attached", "target", target.ID, "host", netutil.HostFromURL(target.URL))
	return p, nil
}

func selectTarget(targets []*devtool.Target, match string) (*devtool.Target, error) {
	for _, t := range targets {
		if t == nil || t.Type != devtool.Page || t.WebSocketDebuggerURL == "" {
			continue
		}
		if match == "" || strings.Contains(t.URL, match) {
			return t, nil
		}
	}
	if match != "" {
		return nil, fmt.Errorf("%w: %q", ErrNoTarget, match)
	}
	return nil, ErrNoTarget
}

// URL is the page URL at attach time.
func (p *Page) URL() string { return p.target.URL }

// CurrentHostname evaluates location.hostname in the page.
func (p *Page) CurrentHostname(ctx context.Context) (string, error) {
	v, err := p.evaluate(ctx, "location.hostname")
	if err != nil {
		return "", err
	}
	return netutil.NormalizeHost(v.String()), nil
}

// Apply dispatches a flo-reload CustomEvent whose detail is the resource.
func (p *Page) Apply(ctx context.Context, res domain.Resource) error {
	script, err := reloadScript(res)
	if err != nil {
		return err
	}
	_, err = p.evaluate(ctx, script)
	return err
}

// Close detaches from the page.
func (p *Page) Close() error {
	return p.conn.Close()
}

func (p *Page) evaluate(ctx context.Context, expr string) (gjson.Result, error) {
	reply, err := p.client.Runtime.Evaluate(ctx, runtime.NewEvaluateArgs(expr).SetReturnByValue(true))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("evaluate: %w", err)
	}
	if reply.ExceptionDetails != nil {
		return gjson.Result{}, fmt.Errorf("evaluate: %s", reply.ExceptionDetails.Text)
	}
	return gjson.ParseBytes(reply.Result.Value), nil
}

func reloadScript(res domain.Resource) (string, error) {
	detail, err := json.Marshal(map[string]string{
		"url":      res.URL,
		"contents": res.Contents,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("window.dispatchEvent(new CustomEvent(%q, {detail: %s}))", ReloadEvent, detail), nil
}
