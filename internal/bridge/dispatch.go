package bridge

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"fpbridge/internal/fpdev"
	"fpbridge/pkg/types"
)

// Command is a named request with an optional untyped argument bundle, as
// decoded from JSON (map[string]any, float64, bool, ...).
type Command struct {
	Name string
	Args any
}

// Reply is the synchronous answer to Dispatch. For capture commands Mode is
// ReplyAsync and TaskID names the queued task; the result arrives later as
// an event carrying the same TaskID.
type Reply struct {
	Mode   types.ReplyMode
	Value  any
	TaskID string
}

type syncFunc func(b *Bridge, ctx context.Context, command string, args any) (any, error)
type captureFunc func(b *Bridge, ctx context.Context, d fpdev.Device, ev *types.Event)

type commandSpec struct {
	mode    types.ReplyMode
	run     syncFunc
	kind    types.EventKind
	capture captureFunc
}

var commands = map[string]commandSpec{
	"init":                {mode: types.ReplyNone, run: (*Bridge).cmdInit},
	"openFpModule":        {mode: types.ReplyValue, run: (*Bridge).cmdOpen},
	"closeFpModule":       {mode: types.ReplyNone, run: (*Bridge).cmdClose},
	"getFpImage":          {mode: types.ReplyAsync, kind: types.EventImageReceived, capture: (*Bridge).captureImage},
	"getFpFeature":        {mode: types.ReplyAsync, kind: types.EventFeatureReceived, capture: (*Bridge).captureFeature},
	"getFingerInfo":       {mode: types.ReplyAsync, kind: types.EventFingerReceived, capture: (*Bridge).captureFinger},
	"compareFpFeature":    {mode: types.ReplyValue, run: (*Bridge).cmdCompare},
	"setFingerMatchValue": {mode: types.ReplyNone, run: (*Bridge).cmdSetMatchValue},
	"getFingerMatchValue": {mode: types.ReplyValue, run: (*Bridge).cmdGetMatchValue},
	"getCompareValue":     {mode: types.ReplyValue, run: (*Bridge).cmdCompareValue},
	"setFingerColor":      {mode: types.ReplyNone, run: (*Bridge).cmdSetColor},
	"setQualityThreshold": {mode: types.ReplyNone, run: (*Bridge).cmdSetQualityThreshold},
	"destroy":             {mode: types.ReplyNone, run: (*Bridge).cmdDestroy},
}

// Commands lists the supported command names, sorted.
func Commands() []string {
	out := make([]string, 0, len(commands))
	for name := range commands {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// IsAsync reports whether name is a queued capture command.
func IsAsync(name string) bool {
	entry, ok := commands[name]
	return ok && entry.mode == types.ReplyAsync
}

// Dispatch routes cmd. Synchronous commands run on the caller's goroutine
// and return their result. Capture commands are queued and return at once.
func (b *Bridge) Dispatch(ctx context.Context, cmd Command) (Reply, error) {
	entry, ok := commands[cmd.Name]
	if !ok {
		commandsTotal.WithLabelValues("unknown", "not_implemented").Inc()
		return Reply{}, ErrNotImplemented(cmd.Name)
	}
	if b.closed.Load() {
		commandsTotal.WithLabelValues(cmd.Name, "closed").Inc()
		return Reply{}, ErrClosed
	}
	b.log.Debug().Str("command", cmd.Name).Msg("dispatch")
	if entry.mode == types.ReplyAsync {
		id, err := b.enqueue(cmd.Name, entry)
		if err != nil {
			commandsTotal.WithLabelValues(cmd.Name, outcomeOf(err)).Inc()
			return Reply{}, err
		}
		commandsTotal.WithLabelValues(cmd.Name, "queued").Inc()
		return Reply{Mode: types.ReplyAsync, TaskID: id}, nil
	}
	v, err := entry.run(b, ctx, cmd.Name, cmd.Args)
	commandsTotal.WithLabelValues(cmd.Name, outcomeOf(err)).Inc()
	if err != nil {
		if !IsInvalidArgs(err) {
			b.recordErr(err)
		}
		return Reply{}, err
	}
	if entry.mode == types.ReplyNone {
		return Reply{Mode: types.ReplyNone}, nil
	}
	return Reply{Mode: types.ReplyValue, Value: v}, nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsInvalidArgs(err):
		return "invalid_args"
	case IsTooBusy(err):
		return "too_busy"
	case IsClosed(err):
		return "closed"
	default:
		return "error"
	}
}

// task is one queued capture, consumed once by the worker.
type task struct {
	id       string
	command  string
	entry    commandSpec
	enqueued time.Time
}

func (b *Bridge) enqueue(command string, entry commandSpec) (string, error) {
	if b.dev == nil {
		return "", ErrDependencyUnavailable("no fingerprint device configured")
	}
	t := &task{id: uuid.NewString(), command: command, entry: entry, enqueued: time.Now()}
	if err := b.tasks.push(t); err != nil {
		return "", err
	}
	queueDepth.Set(float64(b.tasks.len()))
	b.cfg.Publisher.Publish(Event{Name: EventTaskQueued, TaskID: t.id, Command: command, Fields: map[string]any{}})
	return t.id, nil
}

func (b *Bridge) runWorker() {
	defer close(b.workerDone)
	for {
		t, ok := b.tasks.pop(b.ctx)
		if !ok {
			return
		}
		queueDepth.Set(float64(b.tasks.len()))
		b.runTask(t)
	}
}

func (b *Bridge) runTask(t *task) {
	release, err := b.acquireDevice(b.ctx, 0, t.command)
	if err != nil {
		// Only teardown cancels the worker context.
		b.log.Debug().Err(err).Str("task", t.id).Msg("task abandoned")
		b.discardTask(t)
		return
	}
	defer release()

	start := time.Now()
	b.tasksTotal.Add(1)
	b.cfg.Publisher.Publish(Event{Name: EventTaskStart, TaskID: t.id, Command: t.command, Fields: map[string]any{"waited_ms": start.Sub(t.enqueued).Milliseconds()}})
	b.log.Info().Str("task", t.id).Str("command", t.command).Msg("capture start")

	ctx, cancel := context.WithTimeout(b.ctx, b.cfg.CaptureTimeout)
	defer cancel()
	ev := types.Event{Kind: t.entry.kind, TaskID: t.id, Command: t.command}
	b.runCapture(ctx, t, &ev)

	result := "captured"
	if ev.Absent() {
		result = "absent"
	}
	dur := time.Since(start)
	tasksTotal.WithLabelValues(t.command, result).Inc()
	taskDuration.WithLabelValues(t.command).Observe(dur.Seconds())
	b.cfg.Publisher.Publish(Event{Name: EventTaskDone, TaskID: t.id, Command: t.command, Fields: map[string]any{"result": result, "duration_ms": dur.Milliseconds()}})
	b.log.Info().Str("task", t.id).Str("command", t.command).Str("result", result).Dur("dur", dur).Msg("capture end")
	b.deliver(ev)
}

// discardTask accounts for a task dropped by teardown before it ran.
func (b *Bridge) discardTask(t *task) {
	b.tasksDiscarded.Add(1)
	tasksDiscardedTotal.Inc()
	b.cfg.Publisher.Publish(Event{Name: EventTaskDiscarded, TaskID: t.id, Command: t.command, Fields: map[string]any{}})
}

// runCapture executes the capture body, containing panics so the task still
// yields exactly one (absent) event.
func (b *Bridge) runCapture(ctx context.Context, t *task, ev *types.Event) {
	defer func() {
		if r := recover(); r != nil {
			*ev = types.Event{Kind: t.entry.kind, TaskID: t.id, Command: t.command}
			b.recordErr(fmt.Errorf("%s: panic: %v", t.command, r))
			b.log.Error().Interface("panic", r).Str("task", t.id).Msg("capture panicked")
		}
	}()
	t.entry.capture(b, ctx, b.dev, ev)
}
