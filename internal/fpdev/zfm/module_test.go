package zfm

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"fpbridge/internal/fpdev"
)

// fakeSensor answers the module protocol in-process. Replies are queued
// during Write so the driver finds them on its next Read.
type fakeSensor struct {
	mu          sync.Mutex
	in          []byte
	out         bytes.Buffer
	password    uint32
	packetCode  uint16
	fingerAfter int
	polls       int
	image       []byte
	template    []byte
	img2tz      byte
	chars       [3][]byte
	downTarget  int
	score       uint16
	cmds        []byte
	closed      bool
}

func newFakeSensor() *fakeSensor {
	return &fakeSensor{
		packetCode: 2,
		image:      bytes.Repeat([]byte{0x33}, imageSize),
		template:   bytes.Repeat([]byte{0xA5, 0x5A}, 256),
		score:      120,
	}
}

func (f *fakeSensor) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.out.Len() == 0 {
		return 0, io.EOF
	}
	return f.out.Read(p)
}

func (f *fakeSensor) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.in = append(f.in, p...)
	for len(f.in) >= headerLen {
		n := headerLen + int(binary.BigEndian.Uint16(f.in[7:]))
		if len(f.in) < n {
			break
		}
		pk, err := parsePacket(f.in[:n])
		f.in = f.in[n:]
		if err != nil {
			return 0, err
		}
		f.handle(pk)
	}
	return len(p), nil
}

func (f *fakeSensor) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeSensor) reply(pid byte, payload ...byte) {
	f.out.Write(packet{addr: defaultAdr, pid: pid, payload: payload}.bytes())
}

func (f *fakeSensor) send(data []byte) {
	for off := 0; off < len(data); off += 128 {
		end, pid := off+128, pidData
		if end >= len(data) {
			end, pid = len(data), pidEnd
		}
		f.reply(pid, data[off:end]...)
	}
}

func (f *fakeSensor) handle(p packet) {
	if p.pid == pidData || p.pid == pidEnd {
		f.chars[f.downTarget] = append(f.chars[f.downTarget], p.payload...)
		return
	}
	cmd := p.payload[0]
	f.cmds = append(f.cmds, cmd)
	switch cmd {
	case cmdVfyPwd:
		if binary.BigEndian.Uint32(p.payload[1:]) != f.password {
			f.reply(pidAck, ackBadPwd)
			return
		}
		f.reply(pidAck, ackOK)
	case cmdReadSysPara:
		params := make([]byte, 16)
		binary.BigEndian.PutUint16(params[12:], f.packetCode)
		f.reply(pidAck, append([]byte{ackOK}, params...)...)
	case cmdGenImg:
		f.polls++
		if f.polls <= f.fingerAfter {
			f.reply(pidAck, ackNoFinger)
			return
		}
		f.reply(pidAck, ackOK)
	case cmdUpImage:
		f.reply(pidAck, ackOK)
		f.send(f.image)
	case cmdImg2Tz:
		f.reply(pidAck, f.img2tz)
	case cmdUpChar:
		f.reply(pidAck, ackOK)
		f.send(f.template)
	case cmdDownChar:
		f.downTarget = int(p.payload[1])
		f.chars[f.downTarget] = nil
		f.reply(pidAck, ackOK)
	case cmdMatch:
		if !bytes.Equal(f.chars[1], f.chars[2]) {
			f.reply(pidAck, ackNoMatch, 0, 0)
			return
		}
		f.reply(pidAck, ackOK, byte(f.score>>8), byte(f.score))
	}
}

func openModule(t *testing.T, f *fakeSensor) *Module {
	t.Helper()
	m := NewWithOpener(Config{Port: "fake", PollInterval: time.Millisecond, ReplyTimeout: 200 * time.Millisecond},
		func(Config) (io.ReadWriteCloser, error) { return f, nil })
	if err := m.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestPacketBytesKnownFrame(t *testing.T) {
	got := packet{addr: defaultAdr, pid: pidCommand, payload: []byte{cmdGenImg}}.bytes()
	want := []byte{0xEF, 0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0x01, 0x00, 0x03, 0x01, 0x00, 0x05}
	if !bytes.Equal(got, want) {
		t.Fatalf("GenImg frame % X, want % X", got, want)
	}
	p, err := parsePacket(got)
	if err != nil || p.pid != pidCommand || !bytes.Equal(p.payload, []byte{cmdGenImg}) {
		t.Fatalf("parse: %+v %v", p, err)
	}
	got[len(got)-1] ^= 0xFF
	if _, err := parsePacket(got); err == nil {
		t.Fatalf("expected checksum error")
	}
}

// timeoutPort mimics a tty with a read timeout: every other Read comes back
// empty with io.EOF, and data arrives a few bytes at a time.
type timeoutPort struct {
	data  []byte
	reads int
}

func (p *timeoutPort) Read(b []byte) (int, error) {
	p.reads++
	if p.reads%2 == 1 || len(p.data) == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.data[:min(len(p.data), 4)])
	p.data = p.data[n:]
	return n, nil
}

func TestReadPacketSurvivesReadTimeouts(t *testing.T) {
	ack := packet{addr: defaultAdr, pid: pidAck, payload: []byte{ackOK}}
	port := &timeoutPort{data: ack.bytes()}
	got, err := readPacket(port, time.Now().Add(2*time.Second))
	if err != nil {
		t.Fatalf("readPacket: %v", err)
	}
	if got.pid != pidAck || !bytes.Equal(got.payload, []byte{ackOK}) {
		t.Fatalf("packet %+v", got)
	}

	empty := &timeoutPort{}
	if _, err := readPacket(empty, time.Now().Add(20*time.Millisecond)); !errors.Is(err, errTimeout) {
		t.Fatalf("want timeout on a silent port, got %v", err)
	}
}

func TestOpenWrongPassword(t *testing.T) {
	f := newFakeSensor()
	f.password = 0x1234
	m := NewWithOpener(Config{Port: "fake"}, func(Config) (io.ReadWriteCloser, error) { return f, nil })
	err := m.Open()
	var ae ackError
	if !errors.As(err, &ae) || ae.code != ackBadPwd {
		t.Fatalf("expected wrong password, got %v", err)
	}
	if !f.closed {
		t.Fatalf("port left open after failed handshake")
	}
}

func TestNotOpen(t *testing.T) {
	m := NewWithOpener(Config{}, func(Config) (io.ReadWriteCloser, error) { return newFakeSensor(), nil })
	if _, err := m.CaptureFeature(context.Background()); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected not open, got %v", err)
	}
}

func TestCaptureFeaturePollsUntilFinger(t *testing.T) {
	f := newFakeSensor()
	f.fingerAfter = 3
	m := openModule(t, f)
	tpl, err := m.CaptureFeature(context.Background())
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if !bytes.Equal(tpl, f.template) {
		t.Fatalf("template mismatch: %d bytes", len(tpl))
	}
	if f.polls != 4 {
		t.Fatalf("polls %d, want 4", f.polls)
	}
}

func TestCaptureWithoutFingerTimesOut(t *testing.T) {
	f := newFakeSensor()
	f.fingerAfter = 1 << 30
	m := openModule(t, f)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := m.CaptureImage(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestPoorImageYieldsNoTemplate(t *testing.T) {
	f := newFakeSensor()
	f.img2tz = ackMessy
	m := openModule(t, f)
	tpl, err := m.CaptureFeature(context.Background())
	if err != nil || tpl != nil {
		t.Fatalf("expected absent template, got %d bytes, %v", len(tpl), err)
	}
}

func TestCaptureFingerQuality(t *testing.T) {
	f := newFakeSensor()
	m := openModule(t, f)
	fg, err := m.CaptureFinger(context.Background())
	if err != nil || fg == nil {
		t.Fatalf("capture: %v", err)
	}
	if fg.Quality != 100 || fg.Image.Bounds().Dx() != Width || fg.Image.Bounds().Dy() != Height {
		t.Fatalf("unexpected finger: q=%d bounds=%v", fg.Quality, fg.Image.Bounds())
	}

	f.image = bytes.Repeat([]byte{0xFF}, imageSize)
	_ = m.SetQualityThreshold(10)
	fg, err = m.CaptureFinger(context.Background())
	if err != nil || fg != nil {
		t.Fatalf("blank image should be absent: %+v %v", fg, err)
	}
}

func TestRenderColor(t *testing.T) {
	raw := make([]byte, imageSize)
	img, err := render(raw, fpdev.ColorRed)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	r, g, b, _ := img.At(0, 0).RGBA()
	if r>>8 != 255 || g != 0 || b != 0 {
		t.Fatalf("red ridge rendered as %v", img.At(0, 0))
	}
	raw[0] = 0xF0
	img, _ = render(raw, fpdev.ColorBlack)
	r, g, b, _ = img.At(0, 0).RGBA()
	if r>>8 != 255 || g>>8 != 255 || b>>8 != 255 {
		t.Fatalf("background not white: %v", img.At(0, 0))
	}
	if r, _, _, _ := img.At(1, 0).RGBA(); r != 0 {
		t.Fatalf("black ridge rendered as %v", img.At(1, 0))
	}
	if _, err := render(raw[:10], fpdev.ColorBlack); err == nil {
		t.Fatalf("expected size error")
	}
}

func TestCompareDownloadsAndMatches(t *testing.T) {
	f := newFakeSensor()
	f.packetCode = 0 // 32-byte data packets
	m := openModule(t, f)
	a := bytes.Repeat([]byte{1, 2, 3}, 100)
	b := bytes.Repeat([]byte{9}, 300)

	ok, err := m.Compare(a, a)
	if err != nil || !ok {
		t.Fatalf("compare same: %v %v", ok, err)
	}
	if !bytes.Equal(f.chars[1], a) {
		t.Fatalf("char buffer 1 holds %d bytes, want %d", len(f.chars[1]), len(a))
	}
	score, err := m.CompareScore(a, b)
	if err != nil || score != 0 {
		t.Fatalf("mismatch score %d %v", score, err)
	}

	_ = m.SetMatchThreshold(121)
	if ok, _ := m.Compare(a, a); ok {
		t.Fatalf("score 120 must not pass threshold 121")
	}
	if v, _ := m.MatchThreshold(); v != 121 {
		t.Fatalf("match value %d", v)
	}
}

func TestDestroyResetsSettings(t *testing.T) {
	f := newFakeSensor()
	m := openModule(t, f)
	_ = m.SetMatchThreshold(90)
	_ = m.SetColor(fpdev.ColorRed)
	if err := m.Destroy(); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if v, _ := m.MatchThreshold(); v != defaultMatchValue || !f.closed {
		t.Fatalf("destroy did not reset: %d closed=%v", v, f.closed)
	}
}
