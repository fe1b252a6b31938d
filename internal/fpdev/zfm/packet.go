package zfm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// Frame layout: header(2) | address(4) | pid(1) | length(2) | payload | sum(2).
// length counts payload plus checksum; sum is the 16-bit sum of pid, both
// length bytes and the payload.
const (
	header     uint16 = 0xEF01
	headerLen         = 9
	defaultAdr uint32 = 0xFFFFFFFF
)

// Packet identifiers.
const (
	pidCommand byte = 0x01
	pidData    byte = 0x02
	pidAck     byte = 0x07
	pidEnd     byte = 0x08
)

// Instruction codes.
const (
	cmdGenImg      byte = 0x01
	cmdImg2Tz      byte = 0x02
	cmdMatch       byte = 0x03
	cmdUpChar      byte = 0x08
	cmdDownChar    byte = 0x09
	cmdUpImage     byte = 0x0A
	cmdReadSysPara byte = 0x0F
	cmdVfyPwd      byte = 0x13
)

// Confirmation codes.
const (
	ackOK         byte = 0x00
	ackNoFinger   byte = 0x02
	ackImageFail  byte = 0x03
	ackMessy      byte = 0x06
	ackFewPoints  byte = 0x07
	ackNoMatch    byte = 0x08
	ackBadPwd     byte = 0x13
	ackBadImage   byte = 0x15
	ackUploadFail byte = 0x0E
)

type packet struct {
	addr    uint32
	pid     byte
	payload []byte
}

func checksum(pid byte, length uint16, payload []byte) uint16 {
	sum := uint16(pid) + length>>8 + length&0xFF
	for _, b := range payload {
		sum += uint16(b)
	}
	return sum
}

func (p packet) bytes() []byte {
	length := uint16(len(p.payload) + 2)
	buf := make([]byte, headerLen+len(p.payload)+2)
	binary.BigEndian.PutUint16(buf[0:], header)
	binary.BigEndian.PutUint32(buf[2:], p.addr)
	buf[6] = p.pid
	binary.BigEndian.PutUint16(buf[7:], length)
	copy(buf[headerLen:], p.payload)
	binary.BigEndian.PutUint16(buf[headerLen+len(p.payload):], checksum(p.pid, length, p.payload))
	return buf
}

// parsePacket decodes one complete frame.
func parsePacket(b []byte) (packet, error) {
	if len(b) < headerLen+2 {
		return packet{}, fmt.Errorf("zfm: frame too short: %d", len(b))
	}
	if h := binary.BigEndian.Uint16(b[0:]); h != header {
		return packet{}, fmt.Errorf("zfm: bad header 0x%04X", h)
	}
	length := binary.BigEndian.Uint16(b[7:])
	if length < 2 || len(b) != headerLen+int(length) {
		return packet{}, fmt.Errorf("zfm: length %d does not match frame of %d bytes", length, len(b))
	}
	p := packet{addr: binary.BigEndian.Uint32(b[2:]), pid: b[6]}
	p.payload = append([]byte(nil), b[headerLen:len(b)-2]...)
	want := checksum(p.pid, length, p.payload)
	if got := binary.BigEndian.Uint16(b[len(b)-2:]); got != want {
		return packet{}, fmt.Errorf("zfm: checksum mismatch: calc=0x%04X recv=0x%04X", want, got)
	}
	return p, nil
}

// readFull fills buf from r, tolerating the empty reads a serial port
// returns on its read timeout, until deadline.
func readFull(r io.Reader, buf []byte, deadline time.Time) error {
	for off := 0; off < len(buf); {
		n, err := r.Read(buf[off:])
		off += n
		// A tty read timeout with nothing received reports io.EOF.
		if n == 0 && errors.Is(err, io.EOF) {
			err = nil
		}
		if err != nil && off < len(buf) {
			return err
		}
		if n == 0 && time.Now().After(deadline) {
			return errTimeout
		}
	}
	return nil
}

func readPacket(r io.Reader, deadline time.Time) (packet, error) {
	head := make([]byte, headerLen)
	if err := readFull(r, head, deadline); err != nil {
		return packet{}, err
	}
	length := binary.BigEndian.Uint16(head[7:])
	frame := make([]byte, headerLen+int(length))
	copy(frame, head)
	if err := readFull(r, frame[headerLen:], deadline); err != nil {
		return packet{}, err
	}
	return parsePacket(frame)
}

// ackError is a non-zero confirmation code from the module.
type ackError struct {
	cmd  byte
	code byte
}

func (e ackError) Error() string {
	return fmt.Sprintf("zfm: instruction 0x%02X failed: %s (0x%02X)", e.cmd, ackText(e.code), e.code)
}

func ackText(code byte) string {
	switch code {
	case ackNoFinger:
		return "no finger"
	case ackImageFail:
		return "image capture failed"
	case ackMessy:
		return "image too messy"
	case ackFewPoints:
		return "too few feature points"
	case ackNoMatch:
		return "templates do not match"
	case ackBadPwd:
		return "wrong password"
	case ackBadImage:
		return "no valid image in buffer"
	case ackUploadFail:
		return "upload failed"
	default:
		return "error"
	}
}
