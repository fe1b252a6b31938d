package types

import (
	"encoding/json"
	"fmt"
)

// EventKind discriminates result events. Values are part of the wire format.
type EventKind int

const (
	// EventImageReceived carries a captured fingerprint image (JPEG).
	EventImageReceived EventKind = 0
	// EventFeatureReceived carries a base64 feature template.
	EventFeatureReceived EventKind = 1
	// EventFingerReceived carries template, image (PNG) and quality together.
	EventFingerReceived EventKind = 2
)

func (k EventKind) String() string {
	switch k {
	case EventImageReceived:
		return "image"
	case EventFeatureReceived:
		return "feature"
	case EventFingerReceived:
		return "finger"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is a result event produced by an asynchronous capture command.
//
// Absent values (no finger within the capture timeout) are encoded as JSON
// null; Quality is 0 when no finger was captured. Only the fields belonging
// to Kind are written on the wire.
type Event struct {
	Kind    EventKind
	TaskID  string
	Command string
	Bitmap  []byte
	Feature *string
	Quality int
}

// Absent reports whether the event carries no captured data.
func (e Event) Absent() bool {
	return e.Bitmap == nil && e.Feature == nil
}

// Payload returns the kind-specific key/value view of the event.
func (e Event) Payload() map[string]any {
	out := map[string]any{"event": int(e.Kind)}
	if e.TaskID != "" {
		out["task_id"] = e.TaskID
	}
	if e.Command != "" {
		out["command"] = e.Command
	}
	var bitmap any
	if e.Bitmap != nil {
		bitmap = e.Bitmap
	}
	var feature any
	if e.Feature != nil {
		feature = *e.Feature
	}
	switch e.Kind {
	case EventImageReceived:
		out["bitmap"] = bitmap
	case EventFeatureReceived:
		out["feature"] = feature
	case EventFingerReceived:
		out["feature"] = feature
		out["bitmap"] = bitmap
		out["quality"] = e.Quality
	}
	return out
}

func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Payload())
}

type wireEvent struct {
	Kind    EventKind `json:"event"`
	TaskID  string    `json:"task_id"`
	Command string    `json:"command"`
	Bitmap  []byte    `json:"bitmap"`
	Feature *string   `json:"feature"`
	Quality int       `json:"quality"`
}

func (e *Event) UnmarshalJSON(b []byte) error {
	var w wireEvent
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*e = Event{Kind: w.Kind, TaskID: w.TaskID, Command: w.Command, Bitmap: w.Bitmap, Feature: w.Feature, Quality: w.Quality}
	return nil
}
