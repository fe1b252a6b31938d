// Package fpdev defines the fingerprint device contract the bridge drives and
// ships an in-memory Simulator implementing it.
//
// Capture methods report "no finger within the timeout" as a nil result with
// a nil error. That is the normal not-found outcome, not a fault.
package fpdev

import (
	"context"
	"image"
)

// Color selects how ridges are rendered in captured images.
type Color int

const (
	ColorBlack Color = iota
	ColorRed
)

func (c Color) String() string {
	if c == ColorRed {
		return "red"
	}
	return "black"
}

// Finger is one capture with everything the sensor produced for it.
type Finger struct {
	Feature []byte
	Image   image.Image
	Quality int
}

// Device is the opaque sensor SDK surface. Implementations are not required
// to be safe for overlapping calls; the bridge serializes access.
type Device interface {
	// Init prepares the SDK. It may be called again to recover a failed open.
	Init() error
	Open() error
	Close() error

	CaptureImage(ctx context.Context) (image.Image, error)
	// StopCapture ends an image acquisition session.
	StopCapture() error
	CaptureFeature(ctx context.Context) ([]byte, error)
	CaptureFinger(ctx context.Context) (*Finger, error)

	Compare(src, dest []byte) (bool, error)
	CompareScore(src, dest []byte) (int, error)
	SetMatchThreshold(v int) error
	MatchThreshold() (int, error)
	SetColor(c Color) error
	SetQualityThreshold(v int) error

	// Destroy releases SDK resources. The device needs Init before reuse.
	Destroy() error
}

// Named is implemented by devices that report a driver name.
type Named interface {
	Name() string
}

// NameOf returns the driver name of d, or "unknown".
func NameOf(d Device) string {
	if n, ok := d.(Named); ok {
		return n.Name()
	}
	return "unknown"
}
