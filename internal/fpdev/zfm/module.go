// Package zfm drives ZFM/R30x-family optical fingerprint modules over a UART.
//
// The module does acquisition, feature extraction and matching on-chip; this
// package only speaks its packet protocol. Image rendering, ridge coverage
// quality and the match/quality thresholds are applied host side.
package zfm

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tarm/serial"

	"fpbridge/internal/fpdev"
)

var (
	errTimeout = errors.New("zfm: read timeout")
	// ErrNotOpen is returned for device calls before Open.
	ErrNotOpen = errors.New("zfm: module not open")
)

// Defaults applied when corresponding Config fields are unset.
const (
	DefaultBaud         = 57600
	defaultReadTimeout  = 50 * time.Millisecond
	defaultReplyTimeout = 2 * time.Second
	defaultPollInterval = 100 * time.Millisecond
	defaultMatchValue   = 50
	defaultPacketSize   = 128
)

// Config describes how to reach the module.
type Config struct {
	Port     string
	Baud     int
	Address  uint32
	Password uint32
	// ReadTimeout is the serial read timeout; short values keep polling responsive.
	ReadTimeout time.Duration
	// ReplyTimeout bounds the wait for one reply packet.
	ReplyTimeout time.Duration
	// PollInterval spaces GenImg polls while waiting for a finger.
	PollInterval time.Duration
	Logger       *zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.Baud <= 0 {
		c.Baud = DefaultBaud
	}
	if c.Address == 0 {
		c.Address = defaultAdr
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.ReplyTimeout <= 0 {
		c.ReplyTimeout = defaultReplyTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.Logger == nil {
		l := zerolog.Nop()
		c.Logger = &l
	}
	return c
}

// Opener opens the transport to the module.
type Opener func(Config) (io.ReadWriteCloser, error)

// SerialOpener opens cfg.Port with tarm/serial.
func SerialOpener(cfg Config) (io.ReadWriteCloser, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Port,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Port, err)
	}
	return port, nil
}

// Module implements fpdev.Device for one sensor. Methods are serialized by
// an internal mutex; the bridge serializes them as well.
type Module struct {
	cfg    Config
	opener Opener
	log    zerolog.Logger

	mu         sync.Mutex
	rw         io.ReadWriteCloser
	packetSize int
	matchValue int
	qualityMin int
	color      fpdev.Color
}

// New returns a Module reached through a serial port.
func New(cfg Config) *Module {
	return NewWithOpener(cfg, SerialOpener)
}

// NewWithOpener returns a Module using open to reach the sensor.
func NewWithOpener(cfg Config, open Opener) *Module {
	cfg = cfg.withDefaults()
	return &Module{
		cfg:        cfg,
		opener:     open,
		log:        cfg.Logger.With().Str("component", "zfm").Str("port", cfg.Port).Logger(),
		packetSize: defaultPacketSize,
		matchValue: defaultMatchValue,
	}
}

func (m *Module) Name() string { return "zfm" }

// Init resets host-side settings. The module itself needs no init sequence.
func (m *Module) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.opener == nil {
		return errors.New("zfm: no transport configured")
	}
	m.packetSize = defaultPacketSize
	return nil
}

// Open connects, verifies the password and reads the data packet size.
func (m *Module) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rw != nil {
		return nil
	}
	rw, err := m.opener(m.cfg)
	if err != nil {
		return err
	}
	m.rw = rw
	pwd := make([]byte, 4)
	binary.BigEndian.PutUint32(pwd, m.cfg.Password)
	if _, err := m.call(cmdVfyPwd, pwd...); err != nil {
		m.closeLocked()
		return fmt.Errorf("verify password: %w", err)
	}
	params, err := m.call(cmdReadSysPara)
	if err != nil {
		m.closeLocked()
		return fmt.Errorf("read system parameters: %w", err)
	}
	if len(params) >= 14 {
		if code := binary.BigEndian.Uint16(params[12:14]); code <= 3 {
			m.packetSize = 32 << code
		}
	}
	m.log.Info().Int("packet_size", m.packetSize).Msg("module open")
	return nil
}

func (m *Module) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked()
}

func (m *Module) closeLocked() error {
	if m.rw == nil {
		return nil
	}
	err := m.rw.Close()
	m.rw = nil
	return err
}

// Destroy closes the port and restores default settings.
func (m *Module) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.closeLocked()
	m.matchValue = defaultMatchValue
	m.qualityMin = 0
	m.color = fpdev.ColorBlack
	return err
}

// StopCapture is a no-op: GenImg acquisitions end by themselves.
func (m *Module) StopCapture() error { return nil }

func (m *Module) CaptureImage(ctx context.Context) (image.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.waitFinger(ctx); err != nil {
		return nil, err
	}
	raw, err := m.upload(cmdUpImage)
	if err != nil {
		return nil, err
	}
	return render(raw, m.color)
}

func (m *Module) CaptureFeature(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.waitFinger(ctx); err != nil {
		return nil, err
	}
	return m.extract()
}

// CaptureFinger reads image and template from one touch. Captures whose
// ridge coverage is under the quality threshold are reported absent.
func (m *Module) CaptureFinger(ctx context.Context) (*fpdev.Finger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.waitFinger(ctx); err != nil {
		return nil, err
	}
	raw, err := m.upload(cmdUpImage)
	if err != nil {
		return nil, err
	}
	q := quality(raw)
	if q < m.qualityMin {
		m.log.Debug().Int("quality", q).Int("min", m.qualityMin).Msg("finger below quality threshold")
		return nil, nil
	}
	img, err := render(raw, m.color)
	if err != nil {
		return nil, err
	}
	tpl, err := m.extract()
	if err != nil || tpl == nil {
		return nil, err
	}
	return &fpdev.Finger{Feature: tpl, Image: img, Quality: q}, nil
}

func (m *Module) Compare(src, dest []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	score, err := m.match(src, dest)
	if err != nil {
		return false, err
	}
	return score >= m.matchValue, nil
}

func (m *Module) CompareScore(src, dest []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.match(src, dest)
}

func (m *Module) SetMatchThreshold(v int) error {
	m.mu.Lock()
	m.matchValue = v
	m.mu.Unlock()
	return nil
}

func (m *Module) MatchThreshold() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matchValue, nil
}

func (m *Module) SetColor(c fpdev.Color) error {
	m.mu.Lock()
	m.color = c
	m.mu.Unlock()
	return nil
}

func (m *Module) SetQualityThreshold(v int) error {
	m.mu.Lock()
	m.qualityMin = v
	m.mu.Unlock()
	return nil
}

// waitFinger polls GenImg until an image is in the buffer or ctx ends.
func (m *Module) waitFinger(ctx context.Context) error {
	for {
		_, err := m.call(cmdGenImg)
		var ae ackError
		switch {
		case err == nil:
			return nil
		case errors.As(err, &ae) && (ae.code == ackNoFinger || ae.code == ackImageFail):
		default:
			return err
		}
		t := time.NewTimer(m.cfg.PollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// extract converts the image buffer to a template and uploads it. A poor
// image yields no template rather than an error.
func (m *Module) extract() ([]byte, error) {
	if _, err := m.call(cmdImg2Tz, 1); err != nil {
		var ae ackError
		if errors.As(err, &ae) && (ae.code == ackMessy || ae.code == ackFewPoints || ae.code == ackBadImage) {
			m.log.Debug().Err(err).Msg("no template from image")
			return nil, nil
		}
		return nil, err
	}
	return m.upload(cmdUpChar, 1)
}

func (m *Module) match(src, dest []byte) (int, error) {
	if err := m.download(1, src); err != nil {
		return 0, err
	}
	if err := m.download(2, dest); err != nil {
		return 0, err
	}
	reply, err := m.call(cmdMatch)
	var ae ackError
	if errors.As(err, &ae) && ae.code == ackNoMatch {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(reply) < 2 {
		return 0, fmt.Errorf("zfm: short match reply")
	}
	return int(binary.BigEndian.Uint16(reply)), nil
}

// call sends one instruction and returns the ack payload after the
// confirmation code.
func (m *Module) call(cmd byte, args ...byte) ([]byte, error) {
	if m.rw == nil {
		return nil, ErrNotOpen
	}
	payload := append([]byte{cmd}, args...)
	if _, err := m.rw.Write(packet{addr: m.cfg.Address, pid: pidCommand, payload: payload}.bytes()); err != nil {
		return nil, fmt.Errorf("zfm: write: %w", err)
	}
	p, err := readPacket(m.rw, time.Now().Add(m.cfg.ReplyTimeout))
	if err != nil {
		return nil, err
	}
	if p.pid != pidAck || len(p.payload) == 0 {
		return nil, fmt.Errorf("zfm: unexpected packet 0x%02X in reply to 0x%02X", p.pid, cmd)
	}
	if p.payload[0] != ackOK {
		return nil, ackError{cmd: cmd, code: p.payload[0]}
	}
	return p.payload[1:], nil
}

// upload runs an instruction followed by a data phase from the module.
func (m *Module) upload(cmd byte, args ...byte) ([]byte, error) {
	if _, err := m.call(cmd, args...); err != nil {
		return nil, err
	}
	var out []byte
	for {
		p, err := readPacket(m.rw, time.Now().Add(m.cfg.ReplyTimeout))
		if err != nil {
			return nil, err
		}
		switch p.pid {
		case pidData:
			out = append(out, p.payload...)
		case pidEnd:
			return append(out, p.payload...), nil
		default:
			return nil, fmt.Errorf("zfm: unexpected packet 0x%02X in data phase", p.pid)
		}
	}
}

// download sends a template into a char buffer.
func (m *Module) download(buffer byte, data []byte) error {
	if _, err := m.call(cmdDownChar, buffer); err != nil {
		return err
	}
	for off := 0; off < len(data); off += m.packetSize {
		end := off + m.packetSize
		pid := pidData
		if end >= len(data) {
			end, pid = len(data), pidEnd
		}
		frame := packet{addr: m.cfg.Address, pid: pid, payload: data[off:end]}.bytes()
		if _, err := m.rw.Write(frame); err != nil {
			return fmt.Errorf("zfm: write: %w", err)
		}
	}
	return nil
}
