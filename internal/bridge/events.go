package bridge

import "fpbridge/pkg/types"

// Lifecycle event names published to taps.
const (
	EventTaskQueued    = "task_queued"
	EventTaskStart     = "task_start"
	EventTaskDone      = "task_done"
	EventTaskDiscarded = "task_discarded"
	EventResult        = "result"
	EventTeardown      = "teardown"
)

// Event represents a bridge lifecycle event.
// Minimal and stable: name + task ID and optional fields via key/values.
// Result is set on EventResult and carries the produced result event,
// whether or not a listener received it.
type Event struct {
	Name    string
	TaskID  string
	Command string
	Fields  map[string]any
	Result  *types.Event
}

// EventPublisher receives events from the bridge. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// MultiPublisher fans an event out to every publisher in order.
type MultiPublisher []EventPublisher

func (m MultiPublisher) Publish(e Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(e)
		}
	}
}
