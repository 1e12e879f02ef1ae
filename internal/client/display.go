package client

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/koltyakov/flo/internal/settings"
)

const (
	ansiClearDown = "\033[J"
	ansiHome      = "\033[H"
	ansiHideCur   = "\033[?25l"
	ansiShowCur   = "\033[?25h"
)

// maxDisplayResources is the number of delivered resources kept visible.
const maxDisplayResources = 8

// displayFieldWidth is the column width for header field labels.
const displayFieldWidth = 14

type resourceEntry struct {
	ts    time.Time
	url   string
	bytes int
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	labelStyle    = lipgloss.NewStyle().Faint(true)
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	failStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	disabledStyle = lipgloss.NewStyle().Faint(true)
	hintStyle     = lipgloss.NewStyle().Faint(true).Italic(true)
)

// Display is the terminal Panel. With color it redraws the whole screen on
// every event; without color it prints one line per event. Safe for
// concurrent use.
type Display struct {
	out   io.Writer
	mu    sync.Mutex
	color bool

	version   string
	status    StatusEvent
	cfg       settings.Configuration
	resources []resourceEntry

	// nowFunc returns the current time; override in tests.
	nowFunc func() time.Time
}

// NewDisplay creates a Display that writes to stdout.
func NewDisplay(color bool) *Display {
	return newDisplayTo(os.Stdout, color)
}

func newDisplayTo(out io.Writer, color bool) *Display {
	return &Display{
		out:       out,
		color:     color,
		cfg:       settings.Default(),
		resources: make([]resourceEntry, 0, maxDisplayResources),
		nowFunc:   time.Now,
	}
}

// ShowBanner sets the version string and draws the initial screen.
func (d *Display) ShowBanner(version string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.version = version
	if d.color {
		_, _ = fmt.Fprint(d.out, ansiHideCur)
		d.redraw()
		return
	}
	_, _ = fmt.Fprintf(d.out, "flo %s\n", version)
}

// Cleanup restores the terminal cursor. Call on shutdown.
func (d *Display) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.color {
		_, _ = fmt.Fprint(d.out, ansiShowCur)
	}
}

// Deliver implements Panel.
func (d *Display) Deliver(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch ev.Kind {
	case EventStatusChange:
		d.status = ev.Status
		if !d.color {
			line := "status: " + ev.Status.Text
			if hint := actionHint(ev.Status.Action); hint != "" {
				line += " (" + hint + ")"
			}
			_, _ = fmt.Fprintln(d.out, line)
		}
	case EventLoad:
		d.cfg = ev.Config.Clone()
		if !d.color {
			_, _ = fmt.Fprintf(d.out, "config: port %d, %s\n", d.cfg.Port, describeRules(d.cfg))
		}
	case EventResource:
		entry := resourceEntry{ts: d.now(), url: ev.Resource.URL, bytes: len(ev.Resource.Contents)}
		d.resources = append(d.resources, entry)
		if len(d.resources) > maxDisplayResources {
			d.resources = d.resources[len(d.resources)-maxDisplayResources:]
		}
		if !d.color {
			_, _ = fmt.Fprintf(d.out, "%s updated %s (%s)\n", entry.ts.Format("15:04:05"), entry.url, formatBytes(entry.bytes))
		}
	}
	if d.color {
		d.redraw()
	}
}

func (d *Display) now() time.Time {
	if d.nowFunc != nil {
		return d.nowFunc()
	}
	return time.Now()
}

func (d *Display) redraw() {
	var b strings.Builder
	b.WriteString(ansiHome)
	b.WriteString(ansiClearDown)
	b.WriteString(titleStyle.Render("flo"))
	if d.version != "" {
		b.WriteString(" " + labelStyle.Render(d.version))
	}
	b.WriteString("\n\n")

	d.field(&b, "Status", d.statusStyle().Render(orDash(d.status.Text)))
	d.field(&b, "Port", strconv.Itoa(d.cfg.Port))
	d.field(&b, "Hosts", describeRules(d.cfg))
	b.WriteString("\n")

	if len(d.resources) == 0 {
		b.WriteString(labelStyle.Render("Waiting for changes...") + "\n")
	} else {
		b.WriteString(labelStyle.Render("Recent updates") + "\n")
		for i := len(d.resources) - 1; i >= 0; i-- {
			r := d.resources[i]
			fmt.Fprintf(&b, "  %s  %s  %s\n", labelStyle.Render(r.ts.Format("15:04:05")), r.url, labelStyle.Render(formatBytes(r.bytes)))
		}
	}

	b.WriteString("\n")
	keys := "q quit"
	if hint := actionHint(d.status.Action); hint != "" {
		keys = hint + " · " + keys
	}
	b.WriteString(hintStyle.Render(keys) + "\n")
	// stdin may be in raw mode for hotkeys, so line feeds need explicit returns.
	_, _ = io.WriteString(d.out, strings.ReplaceAll(b.String(), "\n", "\r\n"))
}

func (d *Display) field(b *strings.Builder, label, value string) {
	b.WriteString(labelStyle.Render(fmt.Sprintf("%-*s", displayFieldWidth, label)))
	b.WriteString(value)
	b.WriteString("\n")
}

func (d *Display) statusStyle() lipgloss.Style {
	switch d.status.Type {
	case StatusStarted, StatusConnected:
		return okStyle
	case StatusStarting, StatusConnecting, StatusRetry:
		return pendingStyle
	case StatusError:
		return failStyle
	default:
		return disabledStyle
	}
}

func actionHint(a Action) string {
	switch a {
	case ActionEnable:
		return "press e to enable for this site"
	case ActionRetry:
		return "press r to retry"
	}
	return ""
}

func describeRules(cfg settings.Configuration) string {
	if len(cfg.HostRules) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(cfg.HostRules))
	for _, r := range cfg.HostRules {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, ", ")
}

func formatBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
