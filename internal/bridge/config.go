package bridge

import (
	"time"

	"github.com/rs/zerolog"

	"fpbridge/internal/fpdev"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultMaxQueueDepth   = 32
	defaultMaxWait         = 10 * time.Second
	defaultCaptureTimeout  = 30 * time.Second
	defaultShutdownTimeout = 2 * time.Second
)

// Config encapsulates all tunables for Bridge construction.
type Config struct {
	Device fpdev.Device
	// MaxQueueDepth bounds pending capture tasks. Negative means unbounded.
	MaxQueueDepth int
	// MaxWait bounds how long a synchronous command waits for the device.
	MaxWait time.Duration
	// CaptureTimeout bounds one capture; expiry yields an absent result.
	CaptureTimeout time.Duration
	// ShutdownTimeout bounds how long Close waits for the in-flight task.
	ShutdownTimeout time.Duration
	Notifier        Notifier
	Publisher       EventPublisher
	Logger          *zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.MaxQueueDepth == 0 {
		c.MaxQueueDepth = defaultMaxQueueDepth
	}
	if c.MaxQueueDepth < 0 {
		c.MaxQueueDepth = -1
	}
	if c.MaxWait <= 0 {
		c.MaxWait = defaultMaxWait
	}
	if c.CaptureTimeout <= 0 {
		c.CaptureTimeout = defaultCaptureTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.Notifier == nil {
		c.Notifier = noopNotifier{}
	}
	if c.Publisher == nil {
		c.Publisher = noopPublisher{}
	}
	if c.Logger == nil {
		l := zerolog.Nop()
		c.Logger = &l
	}
	return c
}
