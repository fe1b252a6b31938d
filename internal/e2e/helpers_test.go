package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"fpbridge/internal/bridge"
	"fpbridge/internal/forward"
	"fpbridge/internal/fpdev"
	"fpbridge/internal/httpapi"
	"fpbridge/pkg/types"
)

// memorySink records forwarded messages.
type memorySink struct {
	mu   sync.Mutex
	msgs []forward.Message
}

func (s *memorySink) Send(_ context.Context, m forward.Message, _ []byte) error {
	s.mu.Lock()
	s.msgs = append(s.msgs, m)
	s.mu.Unlock()
	return nil
}

func (s *memorySink) Close() error { return nil }

func (s *memorySink) messages() []forward.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]forward.Message(nil), s.msgs...)
}

type stack struct {
	srv  *httptest.Server
	b    *bridge.Bridge
	dev  fpdev.Device
	sink *memorySink
	tap  *forward.Tap
}

// newStack wires a bridge over dev with a forwarding tap behind the HTTP API.
func newStack(t *testing.T, dev fpdev.Device, cfg bridge.Config) *stack {
	t.Helper()
	sink := &memorySink{}
	tap := forward.NewTap("memory", sink, forward.Options{})
	cfg.Device = dev
	cfg.Publisher = tap
	b := bridge.New(cfg)
	srv := httptest.NewServer(httpapi.NewMux(b))
	t.Cleanup(func() {
		srv.Close()
		_ = b.Close()
		_ = tap.Close()
	})
	return &stack{srv: srv, b: b, dev: dev, sink: sink, tap: tap}
}

func (s *stack) post(t *testing.T, command, args string) (int, types.CommandResponse) {
	t.Helper()
	var body io.Reader
	if args != "" {
		body = bytes.NewBufferString(args)
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, s.srv.URL+"/v1/commands/"+command, body)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	if args != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	defer resp.Body.Close()
	var out types.CommandResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (s *stack) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(s.srv.URL + path)
	if err != nil {
		t.Fatalf("get %s: %v", path, err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

// listen opens a WebSocket event channel and waits until it is registered.
func (s *stack) listen(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	waitFor(t, "listener registered", s.b.Listening)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) types.Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	var ev types.Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return ev
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
