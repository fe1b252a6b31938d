package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"fpbridge/internal/bridge"
	"fpbridge/internal/common/fsutil"
	"fpbridge/internal/config"
	"fpbridge/internal/httpapi"
)

// options are the command line flags. Flags that were set, or whose
// environment variable was set, override the config file.
type options struct {
	configPath string
	addr       string
	driver     string
	port       string
	logLevel   string
	logFormat  string
	cues       string
	autoOpen   bool
	set        map[string]bool
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseOptions(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("fpbridged", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", os.Getenv("FPBRIDGE_CONFIG"), "Config file (.yaml, .json or .toml)")
	fs.StringVar(&o.addr, "addr", envOr("FPBRIDGE_ADDR", ":8080"), "HTTP listen address, e.g. :8080")
	fs.StringVar(&o.driver, "device", envOr("FPBRIDGE_DEVICE", "sim"), "Device driver: sim|zfm")
	fs.StringVar(&o.port, "port", os.Getenv("FPBRIDGE_PORT"), "Serial port for the zfm driver")
	fs.StringVar(&o.logLevel, "log-level", envOr("FPBRIDGE_LOG_LEVEL", "info"), "Log level: debug|info|warn|error")
	fs.StringVar(&o.logFormat, "log-format", "json", "Log format: json|console")
	fs.StringVar(&o.cues, "cue", "", "Comma separated cue modes: timed,player,dbus")
	fs.BoolVar(&o.autoOpen, "open", false, "Open the device at startup")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	o.set = map[string]bool{}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	for name, env := range map[string]string{"addr": "FPBRIDGE_ADDR", "device": "FPBRIDGE_DEVICE", "port": "FPBRIDGE_PORT", "log-level": "FPBRIDGE_LOG_LEVEL"} {
		if os.Getenv(env) != "" {
			o.set[name] = true
		}
	}
	return o, nil
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(o options) (config.Config, error) {
	var cfg config.Config
	path := o.configPath
	if path == "" {
		path = fsutil.FirstExisting("fpbridge.yaml", "~/.config/fpbridge/config.yaml", "/etc/fpbridge/config.yaml")
	}
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}
	if o.set["addr"] || cfg.Addr == "" {
		cfg.Addr = o.addr
	}
	if o.set["device"] || cfg.Device.Driver == "" {
		cfg.Device.Driver = o.driver
	}
	if o.set["port"] {
		cfg.Device.Port = o.port
	}
	if o.set["log-level"] || cfg.Log.Level == "" {
		cfg.Log.Level = o.logLevel
	}
	if o.set["log-format"] || cfg.Log.Format == "" {
		cfg.Log.Format = o.logFormat
	}
	if o.set["cue"] {
		cfg.Cue.Modes = splitCSV(o.cues)
	}
	if o.set["open"] {
		cfg.Device.AutoOpen = o.autoOpen
	}
	return cfg, cfg.Validate()
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()
	o, err := parseOptions(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}
	cfg, err := loadConfig(o)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fpbridged: config:", err)
		os.Exit(2)
	}
	logger, closeLog := newLogger(cfg.Log, os.Stderr)
	defer closeLog()
	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("fpbridged failed")
		closeLog()
		os.Exit(1)
	}
}

// autoOpen opens the device through the bridge so its status tracks it.
func autoOpen(b *bridge.Bridge, logger zerolog.Logger) {
	reply, err := b.Dispatch(context.Background(), bridge.Command{Name: "openFpModule"})
	if err != nil || reply.Value != true {
		logger.Warn().Err(err).Msg("device open at startup failed; waiting for openFpModule")
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	dev, err := newDevice(cfg.Device, logger)
	if err != nil {
		return err
	}
	pubs, closePubs := newPublishers(cfg, logger)
	defer closePubs()

	b := bridge.New(bridge.Config{
		Device:          dev,
		MaxQueueDepth:   cfg.Bridge.MaxQueueDepth,
		MaxWait:         cfg.Bridge.MaxWait.Std(),
		CaptureTimeout:  cfg.Bridge.CaptureTimeout.Std(),
		ShutdownTimeout: cfg.Bridge.ShutdownTimeout.Std(),
		Notifier:        newNotifier(cfg.Cue, logger),
		Publisher:       pubs,
		Logger:          &logger,
	})
	if cfg.Device.AutoOpen {
		autoOpen(b, logger)
	}

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetLogger(logger.With().Str("component", "http").Logger())
	httpapi.SetBaseContext(baseCtx)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetCommandTimeout(cfg.CommandTimeout.Std())
	httpapi.SetCORSOptions(cfg.CORS.Enabled, cfg.CORS.Origins, cfg.CORS.Methods, cfg.CORS.Headers)

	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(b), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("device", cfg.Device.Driver).Msg("fpbridged listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errc:
		_ = b.Close()
		return fmt.Errorf("server: %w", err)
	}
	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown error")
	}
	_ = b.Close()
	if err := dev.Close(); err != nil {
		logger.Warn().Err(err).Msg("device close")
	}
	return nil
}
