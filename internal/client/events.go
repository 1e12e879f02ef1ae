package client

import (
	"context"
	"errors"
	"strings"

	"github.com/koltyakov/flo/internal/domain"
	"github.com/koltyakov/flo/internal/netutil"
	"github.com/koltyakov/flo/internal/settings"
)

// EventKind tags an Event sent to the panel.
type EventKind string

const (
	EventStatusChange EventKind = "status_change"
	EventLoad         EventKind = "load"
	EventResource     EventKind = "resource"
)

// Event is a notification for the panel. Exactly one payload field is set,
// matching Kind.
type Event struct {
	Kind     EventKind
	Status   StatusEvent
	Config   settings.Configuration
	Resource domain.Resource
}

// CommandKind tags a Command sent by the panel.
type CommandKind string

const (
	CommandConfigurationChanged CommandKind = "configuration_changed"
	CommandRetry                CommandKind = "retry"
	CommandEnableForHost        CommandKind = "enable_for_host"
)

// Command is a request from the panel. Config is only read for
// CommandConfigurationChanged.
type Command struct {
	Kind   CommandKind
	Config settings.Configuration
}

// Panel receives controller events in production order. Deliver must not
// call back into the controller.
type Panel interface {
	Deliver(Event)
}

// PanelFunc adapts a function to a Panel.
type PanelFunc func(Event)

func (f PanelFunc) Deliver(ev Event) { f(ev) }

// HostResolver reports the hostname of the page the client serves.
type HostResolver interface {
	CurrentHostname(ctx context.Context) (string, error)
}

// Applier pushes a delivered resource into the host page.
type Applier interface {
	Apply(ctx context.Context, res domain.Resource) error
}

var errNoHostname = errors.New("no hostname")

// StaticHost is a HostResolver with a fixed hostname. A page URL is
// accepted too; only its hostname is used.
type StaticHost string

func (h StaticHost) CurrentHostname(context.Context) (string, error) {
	raw := string(h)
	var host string
	if strings.Contains(raw, "://") {
		host = netutil.HostFromURL(raw)
	} else {
		host = netutil.NormalizeHost(raw)
	}
	if host == "" {
		return "", errNoHostname
	}
	return host, nil
}
