package fpctl

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fpbridge/internal/bridge"
	"fpbridge/internal/fpdev"
	"fpbridge/internal/httpapi"
	"fpbridge/pkg/types"
)

func startBridge(t *testing.T) (*bridge.Bridge, *fpdev.Simulator, string) {
	t.Helper()
	sim := fpdev.NewSimulator()
	if err := sim.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	b := bridge.New(bridge.Config{Device: sim, MaxWait: time.Second, CaptureTimeout: 2 * time.Second})
	srv := httptest.NewServer(httpapi.NewMux(b))
	t.Cleanup(func() {
		srv.Close()
		_ = b.Close()
	})
	return b, sim, srv.URL
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := MainWithArgs(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestNoArgsIsUsageError(t *testing.T) {
	if code, _, _ := run(t); code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
}

func TestCallValue(t *testing.T) {
	_, _, addr := startBridge(t)
	code, out, errOut := run(t, "--addr", addr, "call", "setFingerMatchValue", "70")
	if code != 0 {
		t.Fatalf("set: exit %d: %s", code, errOut)
	}
	code, out, errOut = run(t, "--addr", addr, "call", "getFingerMatchValue")
	if code != 0 {
		t.Fatalf("get: exit %d: %s", code, errOut)
	}
	var resp types.CommandResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if resp.Result != float64(70) {
		t.Fatalf("result %v", resp.Result)
	}
}

func TestCallErrors(t *testing.T) {
	_, _, addr := startBridge(t)
	code, _, errOut := run(t, "--addr", addr, "call", "fly")
	if code != 1 || !strings.Contains(errOut, "501") {
		t.Fatalf("unknown command: exit %d: %s", code, errOut)
	}
	code, _, _ = run(t, "--addr", addr, "call", "setFingerMatchValue", "{bad")
	if code != 2 {
		t.Fatalf("bad json: exit %d", code)
	}
}

func TestCaptureFeatureToFile(t *testing.T) {
	_, sim, addr := startBridge(t)
	want := []byte("feature-bytes")
	sim.QueueFeature(want)
	path := filepath.Join(t.TempDir(), "feature.b64")
	code, out, errOut := run(t, "--addr", addr, "capture", "feature", "--out", path)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got, err := base64.StdEncoding.DecodeString(string(b))
	if err != nil || !bytes.Equal(got, want) {
		t.Fatalf("file holds %q (%v)", b, err)
	}
	if !strings.Contains(out, `"feature_bytes": 13`) {
		t.Fatalf("summary %s", out)
	}
}

func TestCaptureAbsentFails(t *testing.T) {
	_, sim, addr := startBridge(t)
	sim.QueueImage(nil)
	code, _, errOut := run(t, "--addr", addr, "capture", "image")
	if code != 1 || !strings.Contains(errOut, "no finger") {
		t.Fatalf("exit %d: %s", code, errOut)
	}
}

func TestCaptureUnknownKind(t *testing.T) {
	if code, _, _ := run(t, "--addr", "127.0.0.1:1", "capture", "palm"); code != 2 {
		t.Fatalf("expected usage exit, got %d", code)
	}
}

func TestListenCount(t *testing.T) {
	b, _, addr := startBridge(t)
	done := make(chan string, 1)
	go func() {
		_, out, errOut := run(t, "--addr", addr, "listen", "--count", "1")
		done <- out + errOut
	}()
	deadline := time.Now().Add(3 * time.Second)
	for !b.Listening() {
		if time.Now().After(deadline) {
			t.Fatalf("listener never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := b.Dispatch(context.Background(), bridge.Command{Name: "getFingerInfo"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	select {
	case out := <-done:
		var ev types.Event
		if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &ev); err != nil || ev.Kind != types.EventFingerReceived {
			t.Fatalf("listen output %q: %v", out, err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("listen did not exit after one event")
	}
}

func TestStatusWait(t *testing.T) {
	_, _, addr := startBridge(t)
	code, out, errOut := run(t, "--addr", addr, "status", "--wait")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	var st types.StatusResponse
	if err := json.Unmarshal([]byte(out), &st); err != nil || st.State != "ready" || st.Device != "sim" {
		t.Fatalf("status %q: %v", out, err)
	}
}

func TestNewClientAddr(t *testing.T) {
	cases := map[string]string{
		":8080":             "http://127.0.0.1:8080",
		"host:1":            "http://host:1",
		"https://fp.local/": "https://fp.local",
	}
	for in, want := range cases {
		if got := NewClient(in, time.Second).base; got != want {
			t.Fatalf("NewClient(%q).base = %q, want %q", in, got, want)
		}
	}
}

func TestCompletion(t *testing.T) {
	code, out, _ := run(t, "completion", "bash")
	if code != 0 || !strings.Contains(out, "fpctl") {
		t.Fatalf("completion exit %d", code)
	}
}
