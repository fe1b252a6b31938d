package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"fpbridge/internal/fpdev"
)

// Bridge routes named commands to a fingerprint device. Capture commands run
// on a single worker goroutine; everything that touches the device, sync or
// async, goes through one device slot so at most one hardware call is in
// flight.
type Bridge struct {
	mu      sync.RWMutex
	cfg     Config
	dev     fpdev.Device
	log     zerolog.Logger
	devOpen bool
	running string
	lastErr string
	start   time.Time

	devSlot    chan struct{} // size 1: single in-flight hardware call
	tasks      *fifo[*task]
	deliveries *fifo[delivery]
	listeners  listenerSlot

	ctx        context.Context
	cancel     context.CancelFunc
	closed     atomic.Bool
	closeOnce  sync.Once
	workerDone chan struct{}
	deliverEnd chan struct{}

	tasksTotal      atomic.Uint64
	eventsDelivered atomic.Uint64
	eventsDropped   atomic.Uint64
	tasksDiscarded  atomic.Uint64
}

// New constructs a Bridge and starts its worker and delivery goroutines.
// Call Close to stop them.
func New(cfg Config) *Bridge {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		cfg:        cfg,
		dev:        cfg.Device,
		log:        cfg.Logger.With().Str("component", "bridge").Logger(),
		start:      time.Now(),
		devSlot:    make(chan struct{}, 1),
		tasks:      newFIFO[*task](cfg.MaxQueueDepth, "capture queue full"),
		deliveries: newFIFO[delivery](-1, "deliveries"),
		ctx:        ctx,
		cancel:     cancel,
		workerDone: make(chan struct{}),
		deliverEnd: make(chan struct{}),
	}
	go b.runWorker()
	go b.runDelivery()
	return b
}

// Ready reports whether the bridge accepts commands.
func (b *Bridge) Ready() bool { return !b.closed.Load() }

// Subscribe registers l as the only listener, replacing and closing any
// previous one. The returned Subscription identifies this registration.
func (b *Bridge) Subscribe(l Listener) Subscription {
	if b.closed.Load() {
		_ = l.Close()
		return 0
	}
	id, prev := b.listeners.set(l)
	if b.closed.Load() {
		// Lost a race with Close.
		if _, ok := b.listeners.clear(id); ok {
			_ = l.Close()
		}
		return 0
	}
	if prev != nil {
		if err := prev.Close(); err != nil {
			b.log.Debug().Err(err).Msg("close replaced listener")
		}
		b.log.Info().Uint64("subscription", uint64(id)).Msg("listener replaced")
	} else {
		b.log.Info().Uint64("subscription", uint64(id)).Msg("listener registered")
	}
	return id
}

// Unsubscribe clears the listener slot if id is still the current
// registration. It does not close the listener.
func (b *Bridge) Unsubscribe(id Subscription) {
	if _, ok := b.listeners.clear(id); ok {
		b.log.Info().Uint64("subscription", uint64(id)).Msg("listener unregistered")
	}
}

// Listening reports whether a listener is registered.
func (b *Bridge) Listening() bool { return b.listeners.get() != nil }

// Close tears the bridge down: the listener slot is cleared, queued tasks
// that have not started are discarded, the in-flight task is interrupted
// through its context and delivery stops. Close does not close the
// device itself. It is safe to call more than once.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		if l, ok := b.listeners.clear(0); ok && l != nil {
			_ = l.Close()
		}
		left := b.tasks.close()
		for _, t := range left {
			b.discardTask(t)
		}
		queueDepth.Set(0)
		b.cancel()
		select {
		case <-b.workerDone:
		case <-time.After(b.cfg.ShutdownTimeout):
			b.log.Warn().Dur("timeout", b.cfg.ShutdownTimeout).Msg("in-flight task did not stop before shutdown timeout")
		}
		for _, d := range b.deliveries.close() {
			b.dropEvent(d.ev, "closed")
		}
		<-b.deliverEnd
		discarded := b.tasksDiscarded.Load()
		b.cfg.Publisher.Publish(Event{Name: EventTeardown, Fields: map[string]any{"discarded": discarded}})
		b.log.Info().Uint64("discarded", discarded).Msg("bridge closed")
	})
	return nil
}

func (b *Bridge) setDeviceOpen(v bool) {
	b.mu.Lock()
	b.devOpen = v
	b.mu.Unlock()
}

func (b *Bridge) recordErr(err error) {
	if err == nil {
		return
	}
	b.mu.Lock()
	b.lastErr = err.Error()
	b.mu.Unlock()
}
