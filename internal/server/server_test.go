package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/koltyakov/flo/internal/domain"
	"github.com/koltyakov/flo/internal/floproto"
)

func startTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		_ = srv.Close()
		ts.Close()
	})
	return srv, ts
}

func dialClient(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + floproto.ConnectPath
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) floproto.Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := floproto.Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return msg
}

func waitForClients(t *testing.T, srv *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for srv.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, srv.Clients())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConnectSendsHello(t *testing.T) {
	t.Parallel()

	srv, ts := startTestServer(t, Options{Version: "1.2.3"})
	conn := dialClient(t, ts)

	msg := readMessage(t, conn)
	if msg.Kind != floproto.KindHello || msg.Hello == nil {
		t.Fatalf("expected hello, got %+v", msg)
	}
	if len(msg.Hello.SessionID) != 26 {
		t.Fatalf("expected ULID session id, got %q", msg.Hello.SessionID)
	}
	if msg.Hello.ServerVersion != "1.2.3" {
		t.Fatalf("unexpected server version %q", msg.Hello.ServerVersion)
	}
	waitForClients(t, srv, 1)
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	t.Parallel()

	srv, ts := startTestServer(t, Options{})
	conns := []*websocket.Conn{dialClient(t, ts), dialClient(t, ts), dialClient(t, ts)}
	for _, c := range conns {
		readMessage(t, c)
	}
	waitForClients(t, srv, len(conns))

	n, err := srv.Broadcast(context.Background(), domain.Resource{URL: "a.js", Contents: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if n != len(conns) {
		t.Fatalf("expected %d deliveries, got %d", len(conns), n)
	}
	for _, c := range conns {
		msg := readMessage(t, c)
		if msg.Kind != floproto.KindResource || *msg.Resource != (domain.Resource{URL: "a.js", Contents: "x"}) {
			t.Fatalf("unexpected message %+v", msg)
		}
	}
}

func TestBroadcastWithoutClients(t *testing.T) {
	t.Parallel()

	srv, _ := startTestServer(t, Options{})
	n, err := srv.Broadcast(context.Background(), domain.Resource{URL: "a.js"})
	if err != nil || n != 0 {
		t.Fatalf("expected zero deliveries and no error, got %d, %v", n, err)
	}
}

func TestPingGetsPong(t *testing.T) {
	t.Parallel()

	_, ts := startTestServer(t, Options{})
	conn := dialClient(t, ts)
	readMessage(t, conn)

	if err := conn.WriteJSON(floproto.Message{Kind: floproto.KindPing}); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Kind != floproto.KindPong {
		t.Fatalf("expected pong, got %+v", msg)
	}
}

func TestCloseNotifiesClientsAndRejectsBroadcasts(t *testing.T) {
	t.Parallel()

	srv, ts := startTestServer(t, Options{})
	conn := dialClient(t, ts)
	readMessage(t, conn)
	waitForClients(t, srv, 1)

	if err := srv.Close(); err != nil {
		t.Fatal(err)
	}
	if err := srv.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if msg := readMessage(t, conn); msg.Kind != floproto.KindClose {
		t.Fatalf("expected close frame, got %+v", msg)
	}
	if srv.Clients() != 0 {
		t.Fatalf("expected no clients after close, got %d", srv.Clients())
	}

	_, err := srv.Broadcast(context.Background(), domain.Resource{URL: "a.js"})
	if !errors.Is(err, domain.ErrServerClosed) {
		t.Fatalf("expected ErrServerClosed, got %v", err)
	}

	u := "ws" + strings.TrimPrefix(ts.URL, "http") + floproto.ConnectPath
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatal("expected connect to fail after close")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after close, got %+v", resp)
	}
}

func TestExpireStaleSessions(t *testing.T) {
	t.Parallel()

	srv, ts := startTestServer(t, Options{PingTimeout: time.Minute})
	conn := dialClient(t, ts)
	readMessage(t, conn)
	waitForClients(t, srv, 1)

	if got := srv.expireStaleSessions(time.Now()); got != 0 {
		t.Fatalf("fresh session must not expire, got %d", got)
	}
	if got := srv.expireStaleSessions(time.Now().Add(2 * time.Minute)); got != 1 {
		t.Fatalf("expected one expired session, got %d", got)
	}
	waitForClients(t, srv, 0)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	_, ts := startTestServer(t, Options{Version: "dev"})
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	var body struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Clients != 0 {
		t.Fatalf("unexpected health body %+v", body)
	}
}

func TestStartListensOnConfiguredAddress(t *testing.T) {
	t.Parallel()

	srv := New(Options{Host: "127.0.0.1", Port: 0})
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}

func TestPprofMountedOnlyWhenEnabled(t *testing.T) {
	t.Parallel()

	for _, enabled := range []bool{false, true} {
		_, ts := startTestServer(t, Options{Pprof: enabled})
		resp, err := http.Get(ts.URL + "/debug/pprof/")
		if err != nil {
			t.Fatal(err)
		}
		_ = resp.Body.Close()
		want := http.StatusNotFound
		if enabled {
			want = http.StatusOK
		}
		if resp.StatusCode != want {
			t.Fatalf("pprof=%v: expected status %d, got %d", enabled, want, resp.StatusCode)
		}
	}
}
