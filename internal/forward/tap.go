// Package forward taps bridge result events and forwards them to message
// brokers. A Tap never blocks the bridge: messages are queued to a small
// buffer drained by the tap's own goroutine, and dropped when it is full.
package forward

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"fpbridge/internal/bridge"
	"fpbridge/pkg/types"
)

// Message is the envelope forwarded for every result event.
type Message struct {
	TaskID    string      `json:"task_id"`
	Command   string      `json:"command"`
	Kind      string      `json:"kind"`
	Delivered bool        `json:"delivered"`
	Event     types.Event `json:"event"`
	TimeUnix  int64       `json:"time_unix_ms"`
}

// Sink sends one encoded message to a broker or store.
type Sink interface {
	Send(ctx context.Context, m Message, payload []byte) error
	Close() error
}

// Options tune a Tap. Zero values select defaults.
type Options struct {
	// Buffer is the number of messages queued before drops (default 64).
	Buffer int
	// SendTimeout bounds one Send (default 5s).
	SendTimeout time.Duration
	// OmitBitmap strips image bytes from the encoded payload.
	OmitBitmap bool
	Logger     *zerolog.Logger
}

// Tap implements bridge.EventPublisher.
type Tap struct {
	name string
	sink Sink
	opts Options
	log  zerolog.Logger

	ch        chan Message
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	dropped   atomic.Uint64
}

// NewTap starts a tap forwarding to sink. name labels logs and metrics.
func NewTap(name string, sink Sink, opts Options) *Tap {
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		l := zerolog.Nop()
		opts.Logger = &l
	}
	t := &Tap{
		name: name,
		sink: sink,
		opts: opts,
		log:  opts.Logger.With().Str("component", "forward").Str("sink", name).Logger(),
		ch:   make(chan Message, opts.Buffer),
		done: make(chan struct{}),
	}
	go t.run()
	return t
}

// Publish queues result events; other lifecycle events are ignored.
func (t *Tap) Publish(e bridge.Event) {
	if e.Name != bridge.EventResult || e.Result == nil {
		return
	}
	delivered, _ := e.Fields["delivered"].(bool)
	m := Message{
		TaskID:    e.TaskID,
		Command:   e.Command,
		Kind:      e.Result.Kind.String(),
		Delivered: delivered,
		Event:     *e.Result,
		TimeUnix:  time.Now().UnixMilli(),
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}
	select {
	case t.ch <- m:
	default:
		t.dropped.Add(1)
		forwardedTotal.WithLabelValues(t.name, "dropped").Inc()
		t.log.Warn().Str("task", m.TaskID).Msg("forward buffer full, dropping")
	}
}

// Dropped reports how many messages were dropped on a full buffer.
func (t *Tap) Dropped() uint64 { return t.dropped.Load() }

// Close stops accepting events, drains the buffer and closes the sink.
func (t *Tap) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		close(t.ch)
		t.mu.Unlock()
		<-t.done
		err = t.sink.Close()
	})
	return err
}

func (t *Tap) run() {
	defer close(t.done)
	for m := range t.ch {
		payload, err := t.encode(m)
		if err != nil {
			t.log.Error().Err(err).Str("task", m.TaskID).Msg("encode")
			forwardedTotal.WithLabelValues(t.name, "error").Inc()
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), t.opts.SendTimeout)
		err = t.sink.Send(ctx, m, payload)
		cancel()
		if err != nil {
			forwardedTotal.WithLabelValues(t.name, "error").Inc()
			t.log.Warn().Err(err).Str("task", m.TaskID).Msg("forward failed")
			continue
		}
		forwardedTotal.WithLabelValues(t.name, "sent").Inc()
	}
}

func (t *Tap) encode(m Message) ([]byte, error) {
	if t.opts.OmitBitmap {
		m.Event.Bitmap = nil
	}
	return json.Marshal(m)
}
