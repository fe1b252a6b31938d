package bridge

import (
	"context"
	"sync"

	"fpbridge/pkg/types"
)

// Listener receives result events. Send is called from the bridge's single
// delivery goroutine, so events arrive one at a time in completion order.
// Close is called when the listener is replaced or the bridge tears down.
type Listener interface {
	Send(types.Event) error
	Close() error
}

// ListenerFunc adapts a function to a Listener with a no-op Close.
type ListenerFunc func(types.Event)

func (f ListenerFunc) Send(e types.Event) error { f(e); return nil }
func (f ListenerFunc) Close() error             { return nil }

// Subscription identifies one listener registration. Zero is never issued.
type Subscription uint64

// listenerSlot holds at most one listener.
type listenerSlot struct {
	mu   sync.RWMutex
	cur  Listener
	id   Subscription
	next Subscription
}

func (s *listenerSlot) set(l Listener) (Subscription, Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.cur
	s.next++
	s.cur, s.id = l, s.next
	return s.id, prev
}

// clear empties the slot if id is current; id 0 clears unconditionally.
func (s *listenerSlot) clear(id Subscription) (Listener, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil || (id != 0 && id != s.id) {
		return nil, false
	}
	l := s.cur
	s.cur, s.id = nil, 0
	return l, true
}

func (s *listenerSlot) get() Listener {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// current returns the registered listener and its subscription id.
func (s *listenerSlot) current() (Listener, Subscription) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur, s.id
}

// delivery is an event bound to the registration that was current when
// its task completed.
type delivery struct {
	ev  types.Event
	sub Subscription
}

// deliver hands ev to the delivery goroutine, bound to the current
// listener. With no listener registered the event is dropped right away.
func (b *Bridge) deliver(ev types.Event) {
	_, sub := b.listeners.current()
	if sub == 0 {
		b.dropEvent(ev, "no_listener")
		return
	}
	if err := b.deliveries.push(delivery{ev: ev, sub: sub}); err != nil {
		b.dropEvent(ev, "closed")
	}
}

func (b *Bridge) runDelivery() {
	defer close(b.deliverEnd)
	for {
		d, ok := b.deliveries.pop(context.Background())
		if !ok {
			return
		}
		ev := d.ev
		// Only the registration current at completion may receive the event.
		l, sub := b.listeners.current()
		if l == nil {
			b.dropEvent(ev, "no_listener")
			continue
		}
		if sub != d.sub {
			b.dropEvent(ev, "listener_changed")
			continue
		}
		if err := b.safeSend(l, ev); err != nil {
			b.log.Warn().Err(err).Str("task", ev.TaskID).Msg("listener send failed")
		}
		b.eventsDelivered.Add(1)
		eventsTotal.WithLabelValues("delivered").Inc()
		b.cfg.Publisher.Publish(Event{Name: EventResult, TaskID: ev.TaskID, Command: ev.Command, Result: &ev, Fields: map[string]any{"delivered": true}})
	}
}

func (b *Bridge) dropEvent(ev types.Event, reason string) {
	b.eventsDropped.Add(1)
	eventsTotal.WithLabelValues("dropped").Inc()
	b.log.Debug().Str("task", ev.TaskID).Str("kind", ev.Kind.String()).Str("reason", reason).Msg("event dropped")
	b.cfg.Publisher.Publish(Event{Name: EventResult, TaskID: ev.TaskID, Command: ev.Command, Result: &ev, Fields: map[string]any{"delivered": false, "reason": reason}})
}

func (b *Bridge) safeSend(l Listener, ev types.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Msg("listener panicked")
		}
	}()
	return l.Send(ev)
}
