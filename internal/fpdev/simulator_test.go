package fpdev

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSimulatorScriptedResults(t *testing.T) {
	s := NewSimulator()
	if err := s.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	s.QueueFeature([]byte{1, 2, 3})
	s.QueueFeature(nil)

	f, err := s.CaptureFeature(context.Background())
	if err != nil || len(f) != 3 {
		t.Fatalf("first: %v %v", f, err)
	}
	f, err = s.CaptureFeature(context.Background())
	if err != nil || f != nil {
		t.Fatalf("scripted absent: %v %v", f, err)
	}
	f, _ = s.CaptureFeature(context.Background())
	if len(f) != 512 {
		t.Fatalf("auto template len %d", len(f))
	}
}

func TestSimulatorRequiresOpen(t *testing.T) {
	s := NewSimulator()
	if _, err := s.CaptureFinger(context.Background()); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected not open, got %v", err)
	}
	s.OpenFailures = 1
	if err := s.Open(); err == nil {
		t.Fatalf("expected scripted open failure")
	}
	if err := s.Open(); err != nil || !s.IsOpen() {
		t.Fatalf("second open: %v", err)
	}
}

func TestSimulatorHonorsContext(t *testing.T) {
	s := NewSimulator()
	_ = s.Open()
	s.Gate = make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.CaptureImage(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestSimulatorCompare(t *testing.T) {
	s := NewSimulator()
	a, b := SyntheticTemplate(1), SyntheticTemplate(2)
	if score, _ := s.CompareScore(a, a); score != 100 {
		t.Fatalf("self score %d", score)
	}
	if ok, _ := s.Compare(a, b); ok {
		t.Fatalf("distinct templates matched")
	}
	_ = s.SetMatchThreshold(0)
	if ok, _ := s.Compare(a, b); !ok {
		t.Fatalf("threshold 0 should match anything")
	}
}

func TestSyntheticImageColor(t *testing.T) {
	red := SyntheticImage(1, ColorRed)
	found := false
	b := red.Bounds()
	for y := b.Min.Y; y < b.Max.Y && !found; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, _, _ := red.At(x, y).RGBA()
			if r>>8 == 255 && g>>8 < 200 {
				found = true
				break
			}
		}
	}
	if !found {
		t.Fatalf("no red ridge pixels")
	}
	if NameOf(NewSimulator()) != "sim" {
		t.Fatalf("name")
	}
}
