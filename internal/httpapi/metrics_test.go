package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func scrape(t *testing.T) []byte {
	t.Helper()
	mrr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(mrr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if mrr.Code != http.StatusOK {
		t.Fatalf("/metrics status=%d", mrr.Code)
	}
	return mrr.Body.Bytes()
}

func TestMetricsMiddleware_EmitsRequestCounters(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	rr := httptest.NewRecorder()
	MetricsMiddleware(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !bytes.Contains(scrape(t), []byte("fpbridge_http_requests_total")) {
		t.Fatalf("expected fpbridge_http_requests_total in metrics")
	}
}

func TestMetricsUseRoutePattern(t *testing.T) {
	svc := &mockService{ready: true}
	w := httptest.NewRecorder()
	NewMux(svc).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/commands/init", nil))
	body := scrape(t)
	if !bytes.Contains(body, []byte(`path="/v1/commands/{name}"`)) {
		t.Fatalf("route pattern label missing")
	}
	if bytes.Contains(body, []byte(`path="/v1/commands/init"`)) {
		t.Fatalf("raw path leaked into labels")
	}
}

func TestStatusRecorderPassesFlush(t *testing.T) {
	rr := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rr, status: 200}
	sr.Flush()
	if !rr.Flushed {
		t.Fatalf("flush not forwarded")
	}
	if _, _, err := sr.Hijack(); err == nil {
		t.Fatalf("recorder cannot hijack; expected error")
	}
}
