package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fpbridge/internal/fpdev"
	"fpbridge/pkg/types"
)

// recordingListener collects delivered events and signals each arrival.
type recordingListener struct {
	mu     sync.Mutex
	events []types.Event
	ch     chan types.Event
	closed int
}

func newRecordingListener() *recordingListener {
	return &recordingListener{ch: make(chan types.Event, 64)}
}

func (l *recordingListener) Send(e types.Event) error {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
	l.ch <- e
	return nil
}

func (l *recordingListener) Close() error {
	l.mu.Lock()
	l.closed++
	l.mu.Unlock()
	return nil
}

func (l *recordingListener) Events() []types.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.Event, len(l.events))
	copy(out, l.events)
	return out
}

func (l *recordingListener) Closed() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// next waits for one event or fails the test.
func (l *recordingListener) next(t *testing.T) types.Event {
	t.Helper()
	select {
	case e := <-l.ch:
		return e
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for event")
		return types.Event{}
	}
}

// none asserts no event arrives within d.
func (l *recordingListener) none(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case e := <-l.ch:
		t.Fatalf("unexpected event: %+v", e.Payload())
	case <-time.After(d):
	}
}

// fakeNotifier records cues and optionally fails or panics.
type fakeNotifier struct {
	mu    sync.Mutex
	cues  []Cue
	err   error
	panic bool
}

func (n *fakeNotifier) Notify(_ context.Context, c Cue) error {
	n.mu.Lock()
	n.cues = append(n.cues, c)
	n.mu.Unlock()
	if n.panic {
		panic("speaker unplugged")
	}
	return n.err
}

func (n *fakeNotifier) Cues() []Cue {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Cue, len(n.cues))
	copy(out, n.cues)
	return out
}

// failingDevice wraps a Simulator and fails selected methods.
type failingDevice struct {
	*fpdev.Simulator
	captureErr error
}

func (d *failingDevice) CaptureFeature(ctx context.Context) ([]byte, error) {
	if d.captureErr != nil {
		return nil, d.captureErr
	}
	return d.Simulator.CaptureFeature(ctx)
}

var errSensor = errors.New("sensor fault")

// newOpenBridge returns a bridge over an opened simulator; both are closed
// at test cleanup.
// stallingListener blocks in Send until released, stalling delivery.
type stallingListener struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newStallingListener(t *testing.T) *stallingListener {
	l := &stallingListener{entered: make(chan struct{}, 8), release: make(chan struct{})}
	t.Cleanup(l.unblock)
	return l
}

func (l *stallingListener) Send(types.Event) error {
	l.entered <- struct{}{}
	<-l.release
	return nil
}

func (l *stallingListener) Close() error { return nil }

func (l *stallingListener) unblock() { l.once.Do(func() { close(l.release) }) }

func newOpenBridge(t *testing.T, sim *fpdev.Simulator, mutate func(*Config)) *Bridge {
	t.Helper()
	if err := sim.Open(); err != nil {
		t.Fatalf("open simulator: %v", err)
	}
	cfg := Config{Device: sim, MaxWait: time.Second, CaptureTimeout: 2 * time.Second}
	if mutate != nil {
		mutate(&cfg)
	}
	b := New(cfg)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func mustDispatch(t *testing.T, b *Bridge, name string, args any) Reply {
	t.Helper()
	r, err := b.Dispatch(context.Background(), Command{Name: name, Args: args})
	if err != nil {
		t.Fatalf("dispatch %s: %v", name, err)
	}
	return r
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
