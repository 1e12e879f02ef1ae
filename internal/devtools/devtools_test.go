package devtools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mafredri/cdp/devtool"
	"github.com/tidwall/gjson"

	"github.com/koltyakov/flo/internal/domain"
)

func TestSelectTarget(t *testing.T) {
	t.Parallel()

	var targets []*devtool.Target
	err := json.Unmarshal([]byte(`[
		{"id":"sw","type":"service_worker","url":"https://app.test/sw.js","webSocketDebuggerUrl":"ws://x/sw"},
		{"id":"one","type":"page","url":"https://docs.test/","webSocketDebuggerUrl":"ws://x/one"},
		{"id":"two","type":"page","url":"https://app.test/home","webSocketDebuggerUrl":"ws://x/two"}
	]`), &targets)
	if err != nil {
		t.Fatal(err)
	}

	got, err := selectTarget(targets, "")
	if err != nil || got.ID != "one" {
		t.Fatalf("expected first page, got %v, %v", got, err)
	}
	got, err = selectTarget(targets, "app.test")
	if err != nil || got.ID != "two" {
		t.Fatalf("expected matching page, got %v, %v", got, err)
	}
	if _, err := selectTarget(targets, "missing"); !errors.Is(err, ErrNoTarget) {
		t.Fatalf("expected ErrNoTarget, got %v", err)
	}
}

func TestReloadScriptEscapesContents(t *testing.T) {
	t.Parallel()

	script, err := reloadScript(domain.Resource{URL: "a.css", Contents: "body{content:\"</script>\"}\n"})
	if err != nil {
		t.Fatal(err)
	}
	const prefix = `window.dispatchEvent(new CustomEvent("flo-reload", {detail: `
	if !strings.HasPrefix(script, prefix) || !strings.HasSuffix(script, "}))") {
		t.Fatalf("unexpected script shape: %s", script)
	}
	detail := strings.TrimSuffix(strings.TrimPrefix(script, prefix), "}))")
	if !gjson.Valid(detail) {
		t.Fatalf("detail is not valid JSON: %s", detail)
	}
	if got := gjson.Get(detail, "contents").String(); got != "body{content:\"</script>\"}\n" {
		t.Fatalf("contents not preserved: %q", got)
	}
	if got := gjson.Get(detail, "url").String(); got != "a.css" {
		t.Fatalf("url not preserved: %q", got)
	}
}

// fakeBrowser serves /json/list and a CDP websocket that answers
// Runtime.evaluate with a fixed hostname.
type fakeBrowser struct {
	mu          sync.Mutex
	expressions []string
}

func (b *fakeBrowser) serve(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	mux := http.NewServeMux()
	var ts *httptest.Server
	list := func(w http.ResponseWriter, _ *http.Request) {
		wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/devtools/page/1"
		_ = json.NewEncoder(w).Encode([]map[string]string{{
			"id":                   "1",
			"type":                 "page",
			"url":                  "https://app.test/",
			"webSocketDebuggerUrl": wsURL,
		}})
	}
	mux.HandleFunc("/json/list", list)
	mux.HandleFunc("/json", list)
	mux.HandleFunc("/devtools/page/1", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req struct {
				ID     int64           `json:"id"`
				Method string          `json:"method"`
				Params json.RawMessage `json:"params"`
			}
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			expr := gjson.GetBytes(req.Params, "expression").String()
			b.mu.Lock()
			b.expressions = append(b.expressions, expr)
			b.mu.Unlock()

			value := json.RawMessage(`true`)
			if expr == "location.hostname" {
				value = json.RawMessage(`"app.test"`)
			}
			resp := map[string]any{
				"id":     req.ID,
				"result": map[string]any{"result": map[string]any{"type": "string", "value": value}},
			}
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	})
	ts = httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestAttachEvaluatesInPage(t *testing.T) {
	t.Parallel()

	b := &fakeBrowser{}
	ts := b.serve(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	page, err := Attach(ctx, ts.URL, "app.test", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer page.Close()

	host, err := page.CurrentHostname(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if host != "app.test" {
		t.Fatalf("unexpected hostname %q", host)
	}
	if err := page.Apply(ctx, domain.Resource{URL: "a.js", Contents: "x"}); err != nil {
		t.Fatal(err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.expressions) != 2 || !strings.Contains(b.expressions[1], ReloadEvent) {
		t.Fatalf("unexpected evaluated expressions: %v", b.expressions)
	}
}
