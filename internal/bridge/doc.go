// Package bridge serializes fingerprint device access behind named commands.
// It is structured into small files by concern:
//
//   - bridge.go: core Bridge type, constructor, teardown, subscriptions.
//   - config.go: Config and package defaults; New applies defaults.
//   - errors.go: error types and helpers (IsNotImplemented, IsTooBusy, ...).
//   - dispatch.go: command table and Dispatch.
//   - commands.go: synchronous command handlers.
//   - args.go: argument decoding for sync commands.
//   - queue.go: FIFO used by the worker and the delivery loop.
//   - slot.go: the single device slot all hardware calls go through.
//   - capture.go: capture tasks and result marshalling.
//   - listener.go: the single listener slot and event delivery.
//   - cue.go: best-effort feedback cues around captures.
//   - events.go: lifecycle events for taps (forwarders, archive).
//   - metrics.go: Prometheus collectors.
//   - status_report.go: Status reporting.
//
// Synchronous commands run on the caller's goroutine. Capture commands are
// queued and run in submission order by one worker goroutine; their results
// are handed to the registered Listener from one delivery goroutine. When no
// listener is registered the result is dropped.
//
// External packages should use the exported API only (New, Dispatch,
// Subscribe, Unsubscribe, Status, Close).
package bridge
