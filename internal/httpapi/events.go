package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"fpbridge/internal/bridge"
	"fpbridge/pkg/types"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	streamBacklog = 16
)

var errStreamBacklog = errors.New("event stream backlog full")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 << 10,
	CheckOrigin:     checkOrigin,
}

// checkOrigin accepts same-host requests, and any configured CORS origin.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if corsEnabled {
		for _, o := range corsAllowedOrigins {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
	}
	return strings.HasSuffix(strings.ToLower(origin), "://"+strings.ToLower(r.Host))
}

// streamListener is the bridge listener behind one event channel
// connection. Send never blocks the bridge's delivery goroutine: a client
// that falls streamBacklog events behind loses the overflow.
type streamListener struct {
	events chan types.Event
	done   chan struct{}
	once   sync.Once
}

func newStreamListener() *streamListener {
	return &streamListener{events: make(chan types.Event, streamBacklog), done: make(chan struct{})}
}

func (l *streamListener) Send(ev types.Event) error {
	select {
	case <-l.done:
		return io.ErrClosedPipe
	default:
	}
	select {
	case l.events <- ev:
		return nil
	default:
		return errStreamBacklog
	}
}

// Close is called by the bridge when the listener is replaced or the
// bridge shuts down. The connection handler then ends the stream.
func (l *streamListener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

// handleEvents subscribes the connection as the bridge's listener. A
// WebSocket upgrade gets one text message per event; plain requests get an
// NDJSON stream. Either way the subscription ends when the client leaves,
// the listener is replaced, or the server shuts down.
func handleEvents(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !svc.Ready() {
			writeJSONError(w, http.StatusServiceUnavailable, bridge.ErrClosed.Error())
			return
		}
		if websocket.IsWebSocketUpgrade(r) {
			serveWebSocket(svc, w, r)
			return
		}
		serveNDJSON(svc, w, r)
	}
}

func serveNDJSON(svc Service, w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()

	l := newStreamListener()
	id := svc.Subscribe(l)
	if id == 0 {
		writeJSONError(w, http.StatusServiceUnavailable, bridge.ErrClosed.Error())
		return
	}
	defer svc.Unsubscribe(id)
	eventStreams.WithLabelValues("ndjson").Inc()
	defer eventStreams.WithLabelValues("ndjson").Dec()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	out := io.Writer(w)
	lvl := requestLogLevel(r)
	if lvl >= LevelDebug {
		out = io.MultiWriter(w, &loggingLineWriter{prefix: "ndjson"})
	}
	logStream(r, lvl, "ndjson", id, "event stream open")
	enc := json.NewEncoder(out)
	for {
		select {
		case <-ctx.Done():
			logStream(r, lvl, "ndjson", id, "event stream closed by client")
			return
		case <-l.done:
			logStream(r, lvl, "ndjson", id, "event stream replaced")
			return
		case ev := <-l.events:
			if err := enc.Encode(ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func serveWebSocket(svc Service, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		zlog.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	l := newStreamListener()
	id := svc.Subscribe(l)
	if id == 0 {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, bridge.ErrClosed.Error()), time.Now().Add(writeWait))
		return
	}
	defer svc.Unsubscribe(id)
	eventStreams.WithLabelValues("websocket").Inc()
	defer eventStreams.WithLabelValues("websocket").Dec()

	lvl := requestLogLevel(r)
	logStream(r, lvl, "websocket", id, "event stream open")

	// Inbound frames are ignored; reading keeps pongs and close frames flowing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-gone:
			logStream(r, lvl, "websocket", id, "event stream closed by client")
			return
		case <-serverBaseCtx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(writeWait))
			return
		case <-l.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "listener replaced"), time.Now().Add(writeWait))
			logStream(r, lvl, "websocket", id, "event stream replaced")
			return
		case ev := <-l.events:
			b, err := json.Marshal(ev)
			if err != nil {
				zlog.Error().Err(err).Str("task", ev.TaskID).Msg("encode event")
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
			if lvl >= LevelDebug {
				zlog.Debug().Str("stream", "websocket").Bytes("line", b).Msg("event line")
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func logStream(r *http.Request, lvl LogLevel, transport string, id bridge.Subscription, msg string) {
	if lvl < LevelInfo {
		return
	}
	z := zlog.Info().Str("transport", transport).Uint64("subscription", uint64(id))
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		z = z.Str("request_id", rid)
	}
	z.Msg(msg)
}
