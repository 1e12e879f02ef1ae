package client

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/koltyakov/flo/internal/domain"
	"github.com/koltyakov/flo/internal/hostmatch"
	"github.com/koltyakov/flo/internal/settings"
)

func TestPlainDisplayPrintsOneLinePerEvent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	d := newDisplayTo(&buf, false)
	d.nowFunc = func() time.Time { return time.Date(2026, 1, 1, 12, 30, 0, 0, time.UTC) }

	d.Deliver(Event{Kind: EventStatusChange, Status: DescribeStatus(StatusDisabled, 0)})
	d.Deliver(Event{Kind: EventLoad, Config: settings.Configuration{
		Port:      8888,
		HostRules: []hostmatch.Rule{hostmatch.Literal("example.test"), hostmatch.Parse("/dev$/")},
	}})
	d.Deliver(Event{Kind: EventResource, Resource: domain.Resource{URL: "a.css", Contents: strings.Repeat("x", 2048)}})

	want := "status: Disabled for this site (press e to enable for this site)\n" +
		"config: port 8888, example.test, /dev$/\n" +
		"12:30:00 updated a.css (2.0 KB)\n"
	if got := buf.String(); got != want {
		t.Fatalf("unexpected output:\n%s\nwant:\n%s", got, want)
	}
}

func TestColorDisplayRedrawsWithStatusAndResources(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	d := newDisplayTo(&buf, true)
	d.ShowBanner("v1.0.0")
	for i := range maxDisplayResources + 3 {
		d.Deliver(Event{Kind: EventResource, Resource: domain.Resource{URL: "f" + string(rune('a'+i)) + ".js"}})
	}
	buf.Reset()
	d.Deliver(Event{Kind: EventStatusChange, Status: DescribeStatus(StatusError, 0)})

	out := buf.String()
	if !strings.HasPrefix(out, ansiHome+ansiClearDown) {
		t.Fatal("expected full-screen redraw")
	}
	for _, want := range []string{"Error connecting", "press r to retry", "v1.0.0", "fk.js"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "fa.js") {
		t.Fatalf("expected oldest entries trimmed:\n%s", out)
	}
}

func TestFormatBytes(t *testing.T) {
	t.Parallel()

	for n, want := range map[int]string{0: "0 B", 512: "512 B", 1536: "1.5 KB", 3 << 20: "3.0 MB"} {
		if got := formatBytes(n); got != want {
			t.Fatalf("formatBytes(%d) = %q, want %q", n, got, want)
		}
	}
}
