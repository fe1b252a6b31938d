package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"fpbridge/internal/archive"
	"fpbridge/internal/bridge"
	"fpbridge/internal/config"
	"fpbridge/internal/cue"
	"fpbridge/internal/forward"
	"fpbridge/internal/fpdev"
	"fpbridge/internal/fpdev/zfm"
)

const defaultPlayer = "paplay"

// newLogger builds the process logger. With File set, output goes through a
// rotating lumberjack writer; the returned func closes it.
func newLogger(cfg config.Log, stderr io.Writer) (zerolog.Logger, func()) {
	out := stderr
	closeFn := func() {}
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		out = lj
		closeFn = func() { _ = lj.Close() }
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: cfg.File != ""}
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), closeFn
}

func newDevice(cfg config.Device, logger zerolog.Logger) (fpdev.Device, error) {
	switch cfg.Driver {
	case "", "sim":
		logger.Warn().Msg("using simulated fingerprint device")
		return fpdev.NewSimulator(), nil
	case "zfm":
		return zfm.New(zfm.Config{
			Port:         cfg.Port,
			Baud:         cfg.Baud,
			Address:      cfg.Address,
			Password:     cfg.Password,
			PollInterval: cfg.PollInterval.Std(),
			Logger:       &logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown device driver %q", cfg.Driver)
	}
}

// newNotifier combines the configured cue modes in order. Modes whose
// backend is unavailable are logged and skipped.
func newNotifier(cfg config.Cue, logger zerolog.Logger) bridge.Notifier {
	modes := cfg.Modes
	if len(modes) == 0 {
		modes = []string{"timed"}
	}
	var ns cue.Multi
	for _, mode := range modes {
		switch mode {
		case "timed":
			t := cue.DefaultTimed()
			if cfg.PlaceFinger > 0 {
				t.PlaceFinger = cfg.PlaceFinger.Std()
			}
			if cfg.Captured > 0 {
				t.Captured = cfg.Captured.Std()
			}
			ns = append(ns, t)
		case "player":
			sounds, err := cue.LoadDir(cfg.SoundsDir)
			if err != nil {
				logger.Warn().Err(err).Str("dir", cfg.SoundsDir).Msg("cue sounds unavailable")
				continue
			}
			player := cfg.Player
			if player == "" {
				player = defaultPlayer
			}
			ns = append(ns, cue.NewPlayer(player, cfg.PlayerArgs, sounds))
		case "dbus":
			app := cfg.DBusApp
			if app == "" {
				app = "fpbridge"
			}
			d, err := cue.NewDBus(app)
			if err != nil {
				logger.Warn().Err(err).Msg("desktop notifications unavailable")
				continue
			}
			ns = append(ns, d)
		}
	}
	switch len(ns) {
	case 0:
		return nil
	case 1:
		return ns[0]
	default:
		return ns
	}
}

// newPublishers starts one forwarding tap per configured sink. Sinks that
// fail to connect are logged and skipped so the bridge still starts.
func newPublishers(cfg config.Config, logger zerolog.Logger) (bridge.MultiPublisher, func()) {
	opts := forward.Options{Buffer: cfg.Forward.Buffer, OmitBitmap: cfg.Forward.OmitBitmap, Logger: &logger}
	var taps []*forward.Tap
	add := func(name string, sink forward.Sink, err error) {
		if err != nil {
			logger.Warn().Err(err).Str("sink", name).Msg("event sink unavailable")
			return
		}
		logger.Info().Str("sink", name).Msg("forwarding events")
		taps = append(taps, forward.NewTap(name, sink, opts))
	}
	f := cfg.Forward
	if f.MQTT.Broker != "" {
		s, err := forward.NewMQTT(forward.MQTTConfig{
			Broker: f.MQTT.Broker, ClientID: f.MQTT.ClientID, Username: f.MQTT.Username,
			Password: f.MQTT.Password, Topic: f.MQTT.Topic, QoS: f.MQTT.QoS, Retained: f.MQTT.Retained,
		})
		add("mqtt", s, err)
	}
	if f.NATS.URL != "" {
		s, err := forward.NewNATS(forward.NATSConfig{URL: f.NATS.URL, Name: "fpbridged", Subject: f.NATS.Subject})
		add("nats", s, err)
	}
	if f.AMQP.URL != "" {
		s, err := forward.NewAMQP(forward.AMQPConfig{URL: f.AMQP.URL, Exchange: f.AMQP.Exchange, RoutingPrefix: f.AMQP.RoutingPrefix})
		add("amqp", s, err)
	}
	if len(f.Kafka.Brokers) > 0 {
		s, err := forward.NewKafka(forward.KafkaConfig{Brokers: f.Kafka.Brokers, Topic: f.Kafka.Topic, ClientID: f.Kafka.ClientID})
		add("kafka", s, err)
	}
	if a := cfg.Archive; a.Endpoint != "" {
		s, err := archive.New(archive.Config{
			Endpoint: a.Endpoint, AccessKey: a.AccessKey, SecretKey: a.SecretKey,
			Bucket: a.Bucket, UseSSL: a.UseSSL, Prefix: a.Prefix,
		})
		add("archive", s, err)
	}

	pubs := make(bridge.MultiPublisher, 0, len(taps))
	for _, t := range taps {
		pubs = append(pubs, t)
	}
	return pubs, func() {
		for _, t := range taps {
			if err := t.Close(); err != nil {
				logger.Warn().Err(err).Msg("close event sink")
			}
		}
	}
}
