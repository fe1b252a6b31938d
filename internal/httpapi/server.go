package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fpbridge/internal/bridge"
	"fpbridge/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Dispatch(ctx context.Context, cmd bridge.Command) (bridge.Reply, error)
	Subscribe(l bridge.Listener) bridge.Subscription
	Unsubscribe(id bridge.Subscription)
	Status() types.StatusResponse
	Ready() bool
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			MaxAge:         300,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	// The event channel stays outside compression so every event is
	// flushed as it is written.
	r.Get("/v1/events", handleEvents(svc))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5))

		r.Get("/v1/commands", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"commands": bridge.Commands()})
		})
		r.Post("/v1/commands/{name}", handleCommand(svc))

		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, svc.Status())
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("closed"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

// handleCommand dispatches one named command. The optional JSON body is the
// command's argument bundle.
func handleCommand(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		args, ok := readArgs(w, r)
		if !ok {
			return
		}

		lvl := requestLogLevel(r)
		start := time.Now()
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if commandTimeout > 0 && !bridge.IsAsync(name) {
			var tcancel context.CancelFunc
			ctx, tcancel = context.WithTimeout(ctx, commandTimeout)
			defer tcancel()
		}

		reply, err := svc.Dispatch(ctx, bridge.Command{Name: name, Args: args})
		if err != nil {
			if r.Context().Err() != nil {
				return
			}
			status := statusFor(err)
			if status == http.StatusTooManyRequests {
				IncrementBackpressure(name)
			}
			writeJSONError(w, status, err.Error())
			logCommand(r, lvl, name, status, start, err)
			return
		}

		status := http.StatusOK
		if reply.Mode == types.ReplyAsync {
			status = http.StatusAccepted
		}
		writeJSON(w, status, types.CommandResponse{
			Command: name,
			Mode:    reply.Mode,
			Result:  reply.Value,
			TaskID:  reply.TaskID,
		})
		logCommand(r, lvl, name, status, start, nil)
	}
}

// readArgs decodes the optional JSON argument body. Numbers are kept as
// json.Number so integer arguments are checked exactly.
func readArgs(w http.ResponseWriter, r *http.Request) (any, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		// Still 400 on oversize bodies to avoid leaking the limit.
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, true
	}
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var args any
	if err := dec.Decode(&args); err != nil || dec.More() {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	return args, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(b, '\n'))
}

func logCommand(r *http.Request, lvl LogLevel, name string, status int, start time.Time, err error) {
	if lvl < LevelInfo && (err == nil || lvl < LevelError) {
		return
	}
	z := zlog.Info()
	if err != nil && status >= http.StatusInternalServerError {
		z = zlog.Error()
	}
	z = z.Str("command", name).Int("status", status).Dur("dur", time.Since(start))
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		z = z.Str("request_id", rid)
	}
	if err != nil {
		z = z.Err(err)
	}
	z.Msg("command")
}
