package cue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"fpbridge/internal/bridge"
)

const (
	notifyService = "org.freedesktop.Notifications"
	notifyPath    = "/org/freedesktop/Notifications"
	notifyMethod  = notifyService + ".Notify"
)

// caller is the part of dbus.BusObject used to send notifications.
type caller interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// DBus shows cues as desktop notifications. Successive cues replace the
// previous bubble so one capture shows one notification.
type DBus struct {
	AppName string
	Expire  time.Duration
	Texts   map[bridge.Cue]string

	obj  caller
	mu   sync.Mutex
	last uint32
}

// DefaultTexts are the notification bodies per cue.
var DefaultTexts = map[bridge.Cue]string{
	bridge.CuePlaceFinger: "Place your finger on the sensor",
	bridge.CueCaptured:    "Fingerprint captured",
}

// NewDBus connects to the session bus.
func NewDBus(appName string) (*DBus, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("error connecting to session bus: %w", err)
	}
	return newDBus(appName, conn.Object(notifyService, dbus.ObjectPath(notifyPath))), nil
}

func newDBus(appName string, obj caller) *DBus {
	return &DBus{AppName: appName, Expire: 3 * time.Second, Texts: DefaultTexts, obj: obj}
}

func (d *DBus) Notify(ctx context.Context, c bridge.Cue) error {
	body, ok := d.Texts[c]
	if !ok {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	call := d.obj.CallWithContext(ctx, notifyMethod, 0,
		d.AppName, d.last, "fingerprint", d.AppName, body,
		[]string{}, map[string]dbus.Variant{}, int32(d.Expire/time.Millisecond))
	if call.Err != nil {
		return fmt.Errorf("desktop notification: %w", call.Err)
	}
	var id uint32
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("error storing notification id: %w", err)
	}
	d.last = id
	return nil
}
