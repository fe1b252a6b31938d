package e2e

import (
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"fpbridge/internal/bridge"
	"fpbridge/internal/fpdev/zfm"
)

// TestHardware_OpenAndCapture drives a real sensor through the HTTP API.
// Skips unless FPBRIDGE_E2E_PORT names the serial port of an attached
// module. With FPBRIDGE_E2E_TOUCH=1 it also waits for a finger.
func TestHardware_OpenAndCapture(t *testing.T) {
	port := strings.TrimSpace(os.Getenv("FPBRIDGE_E2E_PORT"))
	if port == "" {
		t.Skip("FPBRIDGE_E2E_PORT not set; skipping hardware test")
	}
	dev := zfm.New(zfm.Config{Port: port})
	t.Cleanup(func() { _ = dev.Close() })
	s := newStack(t, dev, bridge.Config{CaptureTimeout: 15 * time.Second})

	code, resp := s.post(t, "openFpModule", "")
	if code != http.StatusOK || resp.Result != true {
		t.Fatalf("open %s: %d %+v", port, code, resp)
	}
	code, resp = s.post(t, "getFingerMatchValue", "")
	if code != http.StatusOK {
		t.Fatalf("match value: %d %+v", code, resp)
	}
	t.Logf("match value: %v", resp.Result)

	if os.Getenv("FPBRIDGE_E2E_TOUCH") != "1" {
		return
	}
	conn := s.listen(t)
	code, resp = s.post(t, "getFingerInfo", "")
	if code != http.StatusAccepted {
		t.Fatalf("capture: %d %+v", code, resp)
	}
	t.Log("place a finger on the sensor")
	ev := readEvent(t, conn, 20*time.Second)
	if ev.Absent() {
		t.Fatalf("no finger captured")
	}
	t.Logf("captured quality=%d bitmap=%d bytes", ev.Quality, len(ev.Bitmap))
}
