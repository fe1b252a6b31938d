package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"fpbridge/internal/bridge"
	"fpbridge/internal/config"
	"fpbridge/internal/cue"
	"fpbridge/internal/fpdev"
	"fpbridge/internal/fpdev/zfm"
)

func TestSplitCSV(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{" a , b , c ", []string{"a", "b", "c"}},
		{"a,,c", []string{"a", "c"}},
		{"", nil},
	}
	for _, c := range cases {
		got := splitCSV(c.in)
		if len(got) != len(c.want) {
			t.Fatalf("%q -> %v, want %v", c.in, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("%q -> %v, want %v", c.in, got, c.want)
			}
		}
	}
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fp.yaml")
	if err := os.WriteFile(path, []byte("addr: :7000\ndevice:\n  driver: zfm\n  port: /dev/ttyS0\nlog:\n  level: warn\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("FPBRIDGE_ADDR", "")
	t.Setenv("FPBRIDGE_DEVICE", "")
	t.Setenv("FPBRIDGE_LOG_LEVEL", "")

	o, err := parseOptions([]string{"--config", path, "--cue", "timed,dbus"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg, err := loadConfig(o)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7000" || cfg.Device.Driver != "zfm" || cfg.Log.Level != "warn" {
		t.Fatalf("file values lost: %+v", cfg)
	}
	if len(cfg.Cue.Modes) != 2 || cfg.Log.Format != "json" {
		t.Fatalf("flag values not applied: %+v", cfg)
	}

	t.Setenv("FPBRIDGE_DEVICE", "sim")
	o, _ = parseOptions([]string{"--config", path, "--addr", ":9000"})
	cfg, err = loadConfig(o)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.Device.Driver != "sim" {
		t.Fatalf("overrides not applied: addr=%s driver=%s", cfg.Addr, cfg.Device.Driver)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Setenv("FPBRIDGE_DEVICE", "")
	o, _ := parseOptions([]string{"--device", "usb"})
	if _, err := loadConfig(o); err == nil || !strings.Contains(err.Error(), "device.driver") {
		t.Fatalf("expected driver error, got %v", err)
	}
}

func TestNewLoggerRotatingFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "fpbridged.log")
	logger, closeLog := newLogger(config.Log{Level: "debug", File: file, MaxSizeMB: 1}, os.Stderr)
	logger.Debug().Msg("hello")
	closeLog()
	b, err := os.ReadFile(file)
	if err != nil || !bytes.Contains(b, []byte(`"message":"hello"`)) {
		t.Fatalf("log file %q: %v", b, err)
	}
}

func TestNewLoggerConsoleLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := newLogger(config.Log{Level: "warn", Format: "console"}, &buf)
	logger.Info().Msg("quiet")
	logger.Warn().Msg("loud")
	out := buf.String()
	if strings.Contains(out, "quiet") || !strings.Contains(out, "loud") {
		t.Fatalf("console output %q", out)
	}
}

func TestNewDevice(t *testing.T) {
	d, err := newDevice(config.Device{}, zerolog.Nop())
	if _, ok := d.(*fpdev.Simulator); !ok || err != nil {
		t.Fatalf("default device %T %v", d, err)
	}
	d, err = newDevice(config.Device{Driver: "zfm", Port: "/dev/null"}, zerolog.Nop())
	if _, ok := d.(*zfm.Module); !ok || err != nil {
		t.Fatalf("zfm device %T %v", d, err)
	}
	if _, err := newDevice(config.Device{Driver: "usb"}, zerolog.Nop()); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestAutoOpenThroughBridge(t *testing.T) {
	sim := fpdev.NewSimulator()
	b := bridge.New(bridge.Config{Device: sim})
	defer b.Close()
	autoOpen(b, zerolog.Nop())
	if !sim.IsOpen() || !b.Status().DeviceOpen {
		t.Fatalf("device not opened: sim=%v status=%+v", sim.IsOpen(), b.Status())
	}
}

func TestNewNotifier(t *testing.T) {
	if tm, ok := newNotifier(config.Cue{}, zerolog.Nop()).(cue.Timed); !ok || tm != cue.DefaultTimed() {
		t.Fatalf("unset modes should default to the timed cues")
	}
	if n := newNotifier(config.Cue{Modes: []string{"none"}}, zerolog.Nop()); n != nil {
		t.Fatalf("mode none should give no notifier, got %T", n)
	}
	n := newNotifier(config.Cue{Modes: []string{"timed"}, PlaceFinger: config.Duration(1)}, zerolog.Nop())
	tm, ok := n.(cue.Timed)
	if !ok || tm.PlaceFinger != 1 || tm.Captured != cue.DefaultCaptured {
		t.Fatalf("timed notifier %#v", n)
	}
	dir := t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, "captured.wav"), []byte("RIFF"), 0o644)
	n = newNotifier(config.Cue{Modes: []string{"timed", "player"}, SoundsDir: dir}, zerolog.Nop())
	m, ok := n.(cue.Multi)
	if !ok || len(m) != 2 {
		t.Fatalf("combined notifier %#v", n)
	}
	if p, ok := m[1].(*cue.Player); !ok || p.Command != defaultPlayer {
		t.Fatalf("player %#v", m[1])
	}
}

func TestNewPublishersEmpty(t *testing.T) {
	pubs, closeFn := newPublishers(config.Config{}, zerolog.Nop())
	defer closeFn()
	if len(pubs) != 0 {
		t.Fatalf("expected no taps, got %d", len(pubs))
	}
}
