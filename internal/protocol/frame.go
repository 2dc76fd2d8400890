package protocol

import (
	"errors"
	"fmt"
)

// Frame layout constants
const (
	// HeaderMarker is the lowest valid header byte. The low 7 bits carry the
	// payload length.
	HeaderMarker = 0x80
	// FrameOverhead counts the header, destination and source bytes.
	FrameOverhead = 3
	// MaxPayloadLen is the largest payload a header can declare.
	MaxPayloadLen = 0x7F
	// MaxFrameLen is the longest frame including its checksum byte.
	MaxFrameLen = FrameOverhead + MaxPayloadLen + 1
)

// Tester address range
const (
	TesterMin = 0xF0
	TesterMax = 0xFD
)

// Default serial settings for K-Line
const (
	DefaultBaudRate = 10400
	BitsPerChar     = 10 // start + 8 data + stop
)

var (
	ErrFrameTooShort    = errors.New("protocol: frame too short")
	ErrInvalidHeader    = errors.New("protocol: header byte below 0x80")
	ErrLengthMismatch   = errors.New("protocol: frame length does not match header")
	ErrPayloadTooLarge  = errors.New("protocol: payload too large")
	ErrChecksumMismatch = errors.New("protocol: checksum mismatch")
)

// FrameLen returns the number of bytes up to and excluding the checksum that
// a frame starting with header declares. ok is false for a header below 0x80.
func FrameLen(header byte) (n int, ok bool) {
	if header < HeaderMarker {
		return 0, false
	}
	return int(header-HeaderMarker) + FrameOverhead, true
}

// IsTester reports whether src is a diagnostic tester address.
func IsTester(src byte) bool {
	return src >= TesterMin && src <= TesterMax
}

// Role returns "Tester" for tester addresses and "Device" otherwise.
func Role(src byte) string {
	if IsTester(src) {
		return "Tester"
	}
	return "Device"
}

// CalculateChecksum sums all bytes modulo 256.
func CalculateChecksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// VerifyChecksum checks a byte sequence whose last byte is the checksum.
func VerifyChecksum(frame []byte) error {
	if len(frame) < 1 {
		return ErrFrameTooShort
	}
	last := len(frame) - 1
	if CalculateChecksum(frame[:last]) != frame[last] {
		return ErrChecksumMismatch
	}
	return nil
}

// Frame is a decoded K-Line message.
type Frame struct {
	Dest byte
	Src  byte
	Data []byte
}

// NewFrame creates a frame addressed from src to dest.
func NewFrame(dest, src byte, data []byte) *Frame {
	return &Frame{Dest: dest, Src: src, Data: data}
}

// Encode serializes the frame including header and checksum.
func (f *Frame) Encode() ([]byte, error) {
	if len(f.Data) > MaxPayloadLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(f.Data))
	}

	// Layout:
	// 0: header (0x80 | payload length)
	// 1: destination
	// 2: source
	// 3..: payload
	// last: checksum
	out := make([]byte, 0, FrameOverhead+len(f.Data)+1)
	out = append(out, HeaderMarker|byte(len(f.Data)), f.Dest, f.Src)
	out = append(out, f.Data...)
	out = append(out, CalculateChecksum(out))
	return out, nil
}

// Service returns the first payload byte, the KWP2000 service id.
func (f *Frame) Service() (byte, bool) {
	if len(f.Data) == 0 {
		return 0, false
	}
	return f.Data[0], true
}

// String renders the frame as "SRC->DEST Service [payload]".
func (f *Frame) String() string {
	name := "empty"
	if sid, ok := f.Service(); ok {
		name = ServiceName(sid)
	}
	return fmt.Sprintf("%02X->%02X %s [% X]", f.Src, f.Dest, name, f.Data)
}

// ParseFrame decodes one complete frame including its checksum byte.
func ParseFrame(data []byte) (*Frame, error) {
	if len(data) < FrameOverhead+1 {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(data))
	}

	n, ok := FrameLen(data[0])
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02X", ErrInvalidHeader, data[0])
	}
	if len(data) != n+1 {
		return nil, fmt.Errorf("%w: header declares %d bytes, have %d", ErrLengthMismatch, n+1, len(data))
	}
	if err := VerifyChecksum(data); err != nil {
		return nil, err
	}

	payload := make([]byte, n-FrameOverhead)
	copy(payload, data[FrameOverhead:n])
	return &Frame{Dest: data[1], Src: data[2], Data: payload}, nil
}
