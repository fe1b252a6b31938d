// Package cue provides bridge.Notifier implementations that give the user
// feedback around a capture: a fixed wait, an external sound player and
// desktop notifications over D-Bus.
package cue

import (
	"context"
	"errors"
	"time"

	"fpbridge/internal/bridge"
)

// Default cue durations: the place-finger prompt and the success sound.
const (
	DefaultPlaceFinger = 2500 * time.Millisecond
	DefaultCaptured    = 1500 * time.Millisecond
)

// Timed blocks for a fixed duration per cue, standing in for playback time.
type Timed struct {
	PlaceFinger time.Duration
	Captured    time.Duration
}

// DefaultTimed returns Timed with the default durations.
func DefaultTimed() Timed {
	return Timed{PlaceFinger: DefaultPlaceFinger, Captured: DefaultCaptured}
}

func (t Timed) Notify(ctx context.Context, c bridge.Cue) error {
	d := t.Captured
	if c == bridge.CuePlaceFinger {
		d = t.PlaceFinger
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Multi runs every notifier in order and joins their errors.
type Multi []bridge.Notifier

func (m Multi) Notify(ctx context.Context, c bridge.Cue) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
