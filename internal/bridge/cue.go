package bridge

import (
	"context"
	"fmt"
)

// Cue identifies a feedback point around a capture.
type Cue int

const (
	// CuePlaceFinger plays before the blocking capture call.
	CuePlaceFinger Cue = iota
	// CueCaptured plays after a capture produced data.
	CueCaptured
)

func (c Cue) String() string {
	switch c {
	case CuePlaceFinger:
		return "place_finger"
	case CueCaptured:
		return "captured"
	default:
		return fmt.Sprintf("cue(%d)", int(c))
	}
}

// Notifier gives user feedback at capture lifecycle points. Notify may block
// the worker (e.g. until a sound finishes) but must return when ctx is done.
type Notifier interface {
	Notify(ctx context.Context, c Cue) error
}

// NotifierFunc adapts a function to a Notifier.
type NotifierFunc func(ctx context.Context, c Cue) error

func (f NotifierFunc) Notify(ctx context.Context, c Cue) error { return f(ctx, c) }

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Cue) error { return nil }

// cue plays c. Failures and panics are logged and never reach the command.
func (b *Bridge) cue(ctx context.Context, c Cue) {
	defer func() {
		if r := recover(); r != nil {
			cueFailuresTotal.Inc()
			b.log.Error().Interface("panic", r).Str("cue", c.String()).Msg("cue panicked")
		}
	}()
	if err := b.cfg.Notifier.Notify(ctx, c); err != nil {
		cueFailuresTotal.Inc()
		b.log.Warn().Err(err).Str("cue", c.String()).Msg("cue failed")
	}
}
