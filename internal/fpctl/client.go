package fpctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"fpbridge/pkg/types"
)

// APIError is a non-2xx reply from fpbridged.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return fmt.Sprintf("fpbridged: %d: %s", e.Status, e.Message) }

// Client talks to one fpbridged instance.
type Client struct {
	base string
	http *http.Client
	ws   *websocket.Dialer
}

// NewClient returns a client for addr, which may be host:port or a URL.
func NewClient(addr string, timeout time.Duration) *Client {
	base := addr
	if !strings.Contains(base, "://") {
		if strings.HasPrefix(base, ":") {
			base = "127.0.0.1" + base
		}
		base = "http://" + base
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
		ws:   &websocket.Dialer{HandshakeTimeout: timeout},
	}
}

// Call dispatches command with optional raw JSON arguments.
func (c *Client) Call(ctx context.Context, command string, args json.RawMessage) (types.CommandResponse, error) {
	var out types.CommandResponse
	var body io.Reader
	if len(args) > 0 {
		body = bytes.NewReader(args)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/commands/"+url.PathEscape(command), body)
	if err != nil {
		return out, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	err = c.do(req, &out)
	return out, err
}

// Status fetches the bridge status.
func (c *Client) Status(ctx context.Context) (types.StatusResponse, error) {
	var out types.StatusResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/status", nil)
	if err != nil {
		return out, err
	}
	err = c.do(req, &out)
	return out, err
}

// WaitReady polls /readyz until it answers 200 or ctx ends.
func (c *Client) WaitReady(ctx context.Context, every time.Duration) error {
	for {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/readyz", nil)
		resp, err := c.http.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-time.After(every):
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for %s/readyz: %w", c.base, ctx.Err())
		}
	}
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		var e types.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Stream is an open event channel.
type Stream struct {
	conn *websocket.Conn
}

// Listen opens the event channel, replacing any other listener, and waits
// until the bridge reports it registered.
func (c *Client) Listen(ctx context.Context) (*Stream, error) {
	u := "ws" + strings.TrimPrefix(c.base, "http") + "/v1/events"
	conn, resp, err := c.ws.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: "event channel refused"}
		}
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}
	for {
		st, err := c.Status(ctx)
		if err != nil {
			conn.Close()
			return nil, err
		}
		if st.Listening {
			return &Stream{conn: conn}, nil
		}
		select {
		case <-time.After(20 * time.Millisecond):
		case <-ctx.Done():
			conn.Close()
			return nil, ctx.Err()
		}
	}
}

// Next blocks for the next event. It returns an error when the server
// closes the channel (for example because another listener replaced it)
// or ctx ends.
func (s *Stream) Next(ctx context.Context) (types.Event, error) {
	var ev types.Event
	if dl, ok := ctx.Deadline(); ok {
		_ = s.conn.SetReadDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { _ = s.conn.SetReadDeadline(time.Now()) })
	defer stop()
	_, msg, err := s.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return ev, ctx.Err()
		}
		return ev, err
	}
	err = json.Unmarshal(msg, &ev)
	return ev, err
}

func (s *Stream) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return s.conn.Close()
}
