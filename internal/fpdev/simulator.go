package fpdev

import (
	"context"
	"crypto/sha256"
	"errors"
	"image"
	"image/color"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNotOpen is returned by the Simulator for captures before Open.
var ErrNotOpen = errors.New("fpdev: module not open")

// SimWidth and SimHeight are the dimensions of synthetic images.
const (
	SimWidth  = 256
	SimHeight = 288
)

// Simulator is an in-memory Device. Results can be scripted per capture
// method with the Queue* helpers; a nil entry scripts an absent capture.
// When a script is empty and Auto is set, a synthetic finger is produced,
// otherwise the capture is absent.
type Simulator struct {
	// Latency is how long each capture blocks (honoring ctx).
	Latency time.Duration
	// Gate, when non-nil, makes each capture wait for one receive.
	Gate <-chan struct{}
	// Auto generates a synthetic finger when no result is scripted.
	Auto bool
	// OpenFailures makes the next n Open calls fail.
	OpenFailures int

	mu             sync.Mutex
	images         []image.Image
	features       [][]byte
	fingers        []*Finger
	inited         bool
	open           bool
	matchThreshold int
	qualityMin     int
	color          Color
	calls          []string
	seq            int

	active    atomic.Int32
	maxActive atomic.Int32
}

// NewSimulator returns a Simulator producing synthetic fingers.
func NewSimulator() *Simulator {
	return &Simulator{Auto: true, matchThreshold: 50}
}

func (s *Simulator) Name() string { return "sim" }

// QueueImage scripts the next CaptureImage result.
func (s *Simulator) QueueImage(img image.Image) {
	s.mu.Lock()
	s.images = append(s.images, img)
	s.mu.Unlock()
}

// QueueFeature scripts the next CaptureFeature result.
func (s *Simulator) QueueFeature(b []byte) {
	s.mu.Lock()
	s.features = append(s.features, b)
	s.mu.Unlock()
}

// QueueFinger scripts the next CaptureFinger result.
func (s *Simulator) QueueFinger(f *Finger) {
	s.mu.Lock()
	s.fingers = append(s.fingers, f)
	s.mu.Unlock()
}

// Calls returns the method names invoked so far, in order.
func (s *Simulator) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

// MaxConcurrent reports the highest number of overlapping device calls seen.
func (s *Simulator) MaxConcurrent() int { return int(s.maxActive.Load()) }

// IsOpen reports whether Open succeeded more recently than Close/Destroy.
func (s *Simulator) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Color returns the current rendering color.
func (s *Simulator) Color() Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.color
}

// QualityThreshold returns the last value set by SetQualityThreshold.
func (s *Simulator) QualityThreshold() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.qualityMin
}

func (s *Simulator) enter(name string) func() {
	n := s.active.Add(1)
	for {
		m := s.maxActive.Load()
		if n <= m || s.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	s.mu.Lock()
	s.calls = append(s.calls, name)
	s.mu.Unlock()
	return func() { s.active.Add(-1) }
}

func (s *Simulator) wait(ctx context.Context) error {
	if s.Gate != nil {
		select {
		case <-s.Gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.Latency > 0 {
		t := time.NewTimer(s.Latency)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *Simulator) Init() error {
	defer s.enter("Init")()
	s.mu.Lock()
	s.inited = true
	s.mu.Unlock()
	return nil
}

func (s *Simulator) Open() error {
	defer s.enter("Open")()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.OpenFailures > 0 {
		s.OpenFailures--
		return errors.New("fpdev: open failed")
	}
	s.open = true
	return nil
}

func (s *Simulator) Close() error {
	defer s.enter("Close")()
	s.mu.Lock()
	s.open = false
	s.mu.Unlock()
	return nil
}

func (s *Simulator) Destroy() error {
	defer s.enter("Destroy")()
	s.mu.Lock()
	s.open = false
	s.inited = false
	s.mu.Unlock()
	return nil
}

func (s *Simulator) StopCapture() error {
	defer s.enter("StopCapture")()
	return nil
}

func (s *Simulator) CaptureImage(ctx context.Context) (image.Image, error) {
	defer s.enter("CaptureImage")()
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil, ErrNotOpen
	}
	if len(s.images) > 0 {
		img := s.images[0]
		s.images = s.images[1:]
		return img, nil
	}
	if !s.Auto {
		return nil, nil
	}
	s.seq++
	return SyntheticImage(s.seq, s.color), nil
}

func (s *Simulator) CaptureFeature(ctx context.Context) ([]byte, error) {
	defer s.enter("CaptureFeature")()
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil, ErrNotOpen
	}
	if len(s.features) > 0 {
		f := s.features[0]
		s.features = s.features[1:]
		return f, nil
	}
	if !s.Auto {
		return nil, nil
	}
	s.seq++
	return SyntheticTemplate(s.seq), nil
}

func (s *Simulator) CaptureFinger(ctx context.Context) (*Finger, error) {
	defer s.enter("CaptureFinger")()
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil, ErrNotOpen
	}
	if len(s.fingers) > 0 {
		f := s.fingers[0]
		s.fingers = s.fingers[1:]
		return f, nil
	}
	if !s.Auto {
		return nil, nil
	}
	s.seq++
	q := 80
	if q < s.qualityMin {
		return nil, nil
	}
	return &Finger{Feature: SyntheticTemplate(s.seq), Image: SyntheticImage(s.seq, s.color), Quality: q}, nil
}

func (s *Simulator) Compare(src, dest []byte) (bool, error) {
	defer s.enter("Compare")()
	s.mu.Lock()
	th := s.matchThreshold
	s.mu.Unlock()
	return similarity(src, dest) >= th, nil
}

func (s *Simulator) CompareScore(src, dest []byte) (int, error) {
	defer s.enter("CompareScore")()
	return similarity(src, dest), nil
}

func (s *Simulator) SetMatchThreshold(v int) error {
	defer s.enter("SetMatchThreshold")()
	s.mu.Lock()
	s.matchThreshold = v
	s.mu.Unlock()
	return nil
}

func (s *Simulator) MatchThreshold() (int, error) {
	defer s.enter("MatchThreshold")()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchThreshold, nil
}

func (s *Simulator) SetColor(c Color) error {
	defer s.enter("SetColor")()
	s.mu.Lock()
	s.color = c
	s.mu.Unlock()
	return nil
}

func (s *Simulator) SetQualityThreshold(v int) error {
	defer s.enter("SetQualityThreshold")()
	s.mu.Lock()
	s.qualityMin = v
	s.mu.Unlock()
	return nil
}

// similarity scores two templates 0..100 by the share of equal bytes.
func similarity(a, b []byte) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	same := 0
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] == b[i] {
			same++
		}
	}
	return same * 100 / n
}

// SyntheticTemplate returns a deterministic 512-byte template for seed.
func SyntheticTemplate(seed int) []byte {
	out := make([]byte, 0, 512)
	block := sha256.Sum256([]byte{byte(seed), byte(seed >> 8), byte(seed >> 16), byte(seed >> 24)})
	for len(out) < 512 {
		out = append(out, block[:]...)
		block = sha256.Sum256(block[:])
	}
	return out[:512]
}

// SyntheticImage renders a whorl-like ridge pattern. Ridges use c on white.
func SyntheticImage(seed int, c Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, SimWidth, SimHeight))
	cx := float64(SimWidth)/2 + float64(seed%7) - 3
	cy := float64(SimHeight)/2 + float64(seed%5) - 2
	for y := 0; y < SimHeight; y++ {
		for x := 0; x < SimWidth; x++ {
			dx, dy := (float64(x)-cx)/0.85, float64(y)-cy
			r := math.Hypot(dx, dy)
			if r > 120 {
				img.Set(x, y, color.White)
				continue
			}
			v := math.Sin(r/3.2 + math.Atan2(dy, dx)*0.5)
			if v > 0.2 {
				img.Set(x, y, RidgeColor(c, 255-uint8(v*200)))
			} else {
				img.Set(x, y, color.White)
			}
		}
	}
	return img
}

// RidgeColor maps a ridge intensity (0 = darkest) to the rendering color.
func RidgeColor(c Color, level uint8) color.Color {
	if c == ColorRed {
		return color.RGBA{R: 255, G: level, B: level, A: 255}
	}
	return color.RGBA{R: level, G: level, B: level, A: 255}
}
