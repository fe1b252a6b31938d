package bridge

import (
	"context"
	"time"

	"fpbridge/internal/fpdev"
)

// acquireDevice takes the single device slot. wait <= 0 waits until ctx is
// done. Returns a release func to be deferred.
func (b *Bridge) acquireDevice(ctx context.Context, wait time.Duration, holder string) (func(), error) {
	// Fast path: respect an already-canceled context
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}
	var timeout <-chan time.Time
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case b.devSlot <- struct{}{}:
		b.mu.Lock()
		b.running = holder
		b.mu.Unlock()
		return func() {
			b.mu.Lock()
			b.running = ""
			b.mu.Unlock()
			<-b.devSlot
		}, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timeout:
		return func() {}, tooBusyError{what: "device held by " + b.currentHolder()}
	}
}

// withDevice runs fn while holding the device slot, for synchronous commands.
func (b *Bridge) withDevice(ctx context.Context, command string, fn func(d fpdev.Device) error) error {
	if b.dev == nil {
		return ErrDependencyUnavailable("no fingerprint device configured")
	}
	release, err := b.acquireDevice(ctx, b.cfg.MaxWait, command)
	if err != nil {
		return err
	}
	defer release()
	return fn(b.dev)
}

func (b *Bridge) currentHolder() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.running == "" {
		return "(unknown)"
	}
	return b.running
}
