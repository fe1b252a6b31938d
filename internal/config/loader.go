// Package config loads fpbridged settings from yaml, json or toml files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"fpbridge/internal/common/fsutil"
)

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr           string   `json:"addr" yaml:"addr" toml:"addr"`
	MaxBodyBytes   int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	CommandTimeout Duration `json:"command_timeout" yaml:"command_timeout" toml:"command_timeout"`
	Log            Log      `json:"log" yaml:"log" toml:"log"`
	Device         Device   `json:"device" yaml:"device" toml:"device"`
	Bridge         Bridge   `json:"bridge" yaml:"bridge" toml:"bridge"`
	Cue            Cue      `json:"cue" yaml:"cue" toml:"cue"`
	Forward        Forward  `json:"forward" yaml:"forward" toml:"forward"`
	Archive        Archive  `json:"archive" yaml:"archive" toml:"archive"`
	CORS           CORS     `json:"cors" yaml:"cors" toml:"cors"`
}

// Log configures daemon logging. An empty File logs to stderr.
type Log struct {
	Level      string `json:"level" yaml:"level" toml:"level"`
	Format     string `json:"format" yaml:"format" toml:"format"` // json or console
	File       string `json:"file" yaml:"file" toml:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days" toml:"max_age_days"`
	Compress   bool   `json:"compress" yaml:"compress" toml:"compress"`
}

// Device selects and configures the fingerprint driver.
type Device struct {
	Driver       string   `json:"driver" yaml:"driver" toml:"driver"` // sim or zfm
	Port         string   `json:"port" yaml:"port" toml:"port"`
	Baud         int      `json:"baud" yaml:"baud" toml:"baud"`
	Address      uint32   `json:"address" yaml:"address" toml:"address"`
	Password     uint32   `json:"password" yaml:"password" toml:"password"`
	PollInterval Duration `json:"poll_interval" yaml:"poll_interval" toml:"poll_interval"`
	// AutoOpen opens the device at startup instead of waiting for openFpModule.
	AutoOpen bool `json:"auto_open" yaml:"auto_open" toml:"auto_open"`
}

// Bridge holds queue and timing limits.
type Bridge struct {
	MaxQueueDepth   int      `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxWait         Duration `json:"max_wait" yaml:"max_wait" toml:"max_wait"`
	CaptureTimeout  Duration `json:"capture_timeout" yaml:"capture_timeout" toml:"capture_timeout"`
	ShutdownTimeout Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// Cue configures capture feedback. Modes combine in order: timed, player,
// dbus. No modes means timed; "none" disables feedback.
type Cue struct {
	Modes       []string `json:"modes" yaml:"modes" toml:"modes"`
	PlaceFinger Duration `json:"place_finger" yaml:"place_finger" toml:"place_finger"`
	Captured    Duration `json:"captured" yaml:"captured" toml:"captured"`
	SoundsDir   string   `json:"sounds_dir" yaml:"sounds_dir" toml:"sounds_dir"`
	Player      string   `json:"player" yaml:"player" toml:"player"`
	PlayerArgs  []string `json:"player_args" yaml:"player_args" toml:"player_args"`
	DBusApp     string   `json:"dbus_app" yaml:"dbus_app" toml:"dbus_app"`
}

// Forward configures event forwarding. A sink is enabled when its address
// is set.
type Forward struct {
	Buffer     int   `json:"buffer" yaml:"buffer" toml:"buffer"`
	OmitBitmap bool  `json:"omit_bitmap" yaml:"omit_bitmap" toml:"omit_bitmap"`
	MQTT       MQTT  `json:"mqtt" yaml:"mqtt" toml:"mqtt"`
	NATS       NATS  `json:"nats" yaml:"nats" toml:"nats"`
	AMQP       AMQP  `json:"amqp" yaml:"amqp" toml:"amqp"`
	Kafka      Kafka `json:"kafka" yaml:"kafka" toml:"kafka"`
}

type MQTT struct {
	Broker   string `json:"broker" yaml:"broker" toml:"broker"`
	ClientID string `json:"client_id" yaml:"client_id" toml:"client_id"`
	Username string `json:"username" yaml:"username" toml:"username"`
	Password string `json:"password" yaml:"password" toml:"password"`
	Topic    string `json:"topic" yaml:"topic" toml:"topic"`
	QoS      byte   `json:"qos" yaml:"qos" toml:"qos"`
	Retained bool   `json:"retained" yaml:"retained" toml:"retained"`
}

type NATS struct {
	URL     string `json:"url" yaml:"url" toml:"url"`
	Subject string `json:"subject" yaml:"subject" toml:"subject"`
}

type AMQP struct {
	URL           string `json:"url" yaml:"url" toml:"url"`
	Exchange      string `json:"exchange" yaml:"exchange" toml:"exchange"`
	RoutingPrefix string `json:"routing_prefix" yaml:"routing_prefix" toml:"routing_prefix"`
}

type Kafka struct {
	Brokers  []string `json:"brokers" yaml:"brokers" toml:"brokers"`
	Topic    string   `json:"topic" yaml:"topic" toml:"topic"`
	ClientID string   `json:"client_id" yaml:"client_id" toml:"client_id"`
}

// Archive configures image storage in an S3-compatible bucket. Disabled
// when Endpoint is empty.
type Archive struct {
	Endpoint  string `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
	AccessKey string `json:"access_key" yaml:"access_key" toml:"access_key"`
	SecretKey string `json:"secret_key" yaml:"secret_key" toml:"secret_key"`
	Bucket    string `json:"bucket" yaml:"bucket" toml:"bucket"`
	UseSSL    bool   `json:"use_ssl" yaml:"use_ssl" toml:"use_ssl"`
	Prefix    string `json:"prefix" yaml:"prefix" toml:"prefix"`
}

type CORS struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
	Methods []string `json:"methods" yaml:"methods" toml:"methods"`
	Headers []string `json:"headers" yaml:"headers" toml:"headers"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	path, err := fsutil.ExpandHome(path)
	if err != nil {
		return cfg, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports settings that cannot work regardless of defaults.
func (c Config) Validate() error {
	var errs []error
	switch c.Device.Driver {
	case "", "sim", "zfm":
	default:
		errs = append(errs, fmt.Errorf("device.driver: unknown driver %q", c.Device.Driver))
	}
	if c.Device.Driver == "zfm" && c.Device.Port == "" {
		errs = append(errs, errors.New("device.port: required for zfm driver"))
	}
	for _, m := range c.Cue.Modes {
		switch m {
		case "none", "timed", "player", "dbus":
		default:
			errs = append(errs, fmt.Errorf("cue.modes: unknown mode %q", m))
		}
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	if c.Archive.Endpoint != "" && c.Archive.Bucket == "" {
		errs = append(errs, errors.New("archive.bucket: required when archive.endpoint is set"))
	}
	return errors.Join(errs...)
}
