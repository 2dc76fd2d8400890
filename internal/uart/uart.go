package uart

import (
	"errors"
	"io"
	"time"
)

// PacketType classifies a packet produced by the byte source.
type PacketType int

const (
	// Data carries one received byte.
	Data PacketType = iota
	// Idle marks a silence on the bus longer than the idle gap.
	Idle
)

// String returns the packet type name.
func (t PacketType) String() string {
	switch t {
	case Data:
		return "DATA"
	case Idle:
		return "IDLE"
	default:
		return "UNKNOWN"
	}
}

// Packet is one event from the byte stream. Start and End are nanoseconds
// since the start of the capture.
type Packet struct {
	Start int64
	End   int64
	Type  PacketType
	Value byte
}

// Clock returns the current time. Live sources use the wall clock, file
// sources a virtual one that never advances on its own.
type Clock func() time.Time

// Source turns a byte stream into packets.
type Source struct {
	r        io.Reader
	clock    Clock
	charTime time.Duration
	idleGap  time.Duration
	buf      []byte

	origin time.Time
	cursor int64 // end of the last emitted byte
}

// Options configures a Source.
type Options struct {
	BaudRate int
	// IdleGap is the silence after which an Idle packet is emitted.
	// Zero disables idle detection.
	IdleGap time.Duration
	// Clock stamps each read. Nil means a virtual clock: bytes are laid out
	// back to back at the character time.
	Clock Clock
	// Origin is the wall time of position zero. With a Clock and a zero
	// Origin, the clock is read when the source is created, so silence
	// before the first byte is kept.
	Origin time.Time
	// ReadSize bounds a single read. Defaults to 256.
	ReadSize int
}

// NewSource creates a source reading from r.
func NewSource(r io.Reader, opts Options) *Source {
	if opts.BaudRate <= 0 {
		opts.BaudRate = 10400
	}
	if opts.ReadSize <= 0 {
		opts.ReadSize = 256
	}
	s := &Source{
		r:        r,
		clock:    opts.Clock,
		charTime: CharTime(opts.BaudRate),
		idleGap:  opts.IdleGap,
		buf:      make([]byte, opts.ReadSize),
		origin:   opts.Origin,
	}
	if s.clock != nil && s.origin.IsZero() {
		s.origin = s.clock()
	}
	return s
}

// CharTime returns the time one 8N1 character occupies on the wire.
func CharTime(baudRate int) time.Duration {
	return time.Duration(10 * int64(time.Second) / int64(baudRate))
}

// Next reads once from the underlying reader and calls emit for every
// resulting packet. It returns io.EOF when the stream is exhausted.
// A read that returns no data and no error emits nothing.
func (s *Source) Next(emit func(Packet)) error {
	n, err := s.r.Read(s.buf)
	if n > 0 {
		s.emitChunk(s.buf[:n], emit)
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return err
	}
	return nil
}

// Run reads until EOF or error. EOF is not reported as an error.
func (s *Source) Run(emit func(Packet)) error {
	for {
		if err := s.Next(emit); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func (s *Source) emitChunk(chunk []byte, emit func(Packet)) {
	start := s.cursor
	if s.clock != nil {
		now := s.clock()
		// The chunk arrived at now; its last byte ended then.
		arrived := now.Sub(s.origin).Nanoseconds() - int64(len(chunk))*int64(s.charTime)
		if arrived > start {
			if s.idleGap > 0 && s.cursor > 0 && time.Duration(arrived-s.cursor) >= s.idleGap {
				emit(Packet{Start: s.cursor, End: arrived, Type: Idle})
			}
			start = arrived
		}
	}

	ct := int64(s.charTime)
	for i, b := range chunk {
		p := Packet{
			Start: start + int64(i)*ct,
			End:   start + int64(i+1)*ct,
			Type:  Data,
			Value: b,
		}
		emit(p)
	}
	s.cursor = start + int64(len(chunk))*ct
}

// Origin returns the wall time of position zero. It is zero for a virtual
// clock.
func (s *Source) Origin() time.Time {
	return s.origin
}

// Position returns the end of the last emitted byte.
func (s *Source) Position() int64 {
	return s.cursor
}
