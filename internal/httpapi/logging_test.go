package httpapi

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"":      LevelOff,
		"off":   LevelOff,
		"error": LevelError,
		"info":  LevelInfo,
		"debug": LevelDebug,
		"weird": LevelInfo, // default
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRequestLogLevel_Overrides(t *testing.T) {
	r := httptest.NewRequest("GET", "/x?log=debug", nil)
	if got := requestLogLevel(r); got != LevelDebug {
		t.Fatalf("query override failed: %v", got)
	}
	r = httptest.NewRequest("GET", "/x?log=1", nil)
	if got := requestLogLevel(r); got != LevelDebug {
		t.Fatalf("short query override failed: %v", got)
	}
	r = httptest.NewRequest("GET", "/x", nil)
	r.Header.Set("X-Log-Level", "error")
	if got := requestLogLevel(r); got != LevelError {
		t.Fatalf("header override failed: %v", got)
	}
}

func TestLoggingLineWriter_SplitsLines(t *testing.T) {
	var buf bytes.Buffer
	orig := zlog
	defer SetLogger(orig)
	SetLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))

	lw := &loggingLineWriter{prefix: "ndjson"}
	_, _ = lw.Write([]byte("a line\npartial"))
	_, _ = lw.Write([]byte("-cont\nlast\n"))

	out := buf.String()
	for _, want := range []string{`"line":"a line"`, `"line":"partial-cont"`, `"line":"last"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in %q", want, out)
		}
	}
	if strings.Count(out, "\n") != 3 {
		t.Fatalf("expected 3 log records, got %q", out)
	}
}

func TestCommandLoggedWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	orig := zlog
	defer SetLogger(orig)
	SetLogger(zerolog.New(&buf))

	svc := &mockService{ready: true}
	req := httptest.NewRequest("POST", "/v1/commands/init?log=info", nil)
	w := httptest.NewRecorder()
	NewMux(svc).ServeHTTP(w, req)
	out := buf.String()
	if !strings.Contains(out, `"command":"init"`) || !strings.Contains(out, `"request_id"`) {
		t.Fatalf("command log missing fields: %q", out)
	}
}
