package decoder

import (
	"fmt"
	"strings"

	"github.com/bigbag/kline-sniffer/internal/fsm"
	"github.com/bigbag/kline-sniffer/internal/protocol"
	"github.com/bigbag/kline-sniffer/internal/uart"
)

// frame is the frame currently being assembled.
type frame struct {
	bytes       []byte
	expectedLen int
	sum         uint
	dest        byte
	src         byte
	start       int64
	end         int64
}

func (f *frame) reset() {
	f.bytes = f.bytes[:0]
	f.expectedLen = 0
	f.sum = 0
	f.dest = 0
	f.src = 0
	f.start = 0
	f.end = 0
}

// Decoder assembles K-Line frames from a byte stream and reports them to
// its sinks. It is not safe for concurrent use.
type Decoder struct {
	machine *fsm.Machine
	sinks   Sinks
	frame   frame

	// span of the byte being processed
	start int64
	end   int64

	dumpHeader bool
	handlers   [4]func(d *Decoder, value byte)
}

// New creates a decoder writing to sinks.
func New(sinks Sinks) *Decoder {
	d := &Decoder{
		machine: fsm.New(),
		sinks:   sinks,
		frame:   frame{bytes: make([]byte, 0, protocol.MaxFrameLen)},
	}
	d.handlers = [4]func(*Decoder, byte){
		fsm.Header:   (*Decoder).handleHeader,
		fsm.Data:     (*Decoder).handleData,
		fsm.Checksum: (*Decoder).handleChecksum,
		fsm.Error:    (*Decoder).handleError,
	}
	return d
}

// Reset returns the decoder to its initial state.
func (d *Decoder) Reset() {
	d.machine.Reset()
	d.frame.reset()
	d.start, d.end = 0, 0
	d.dumpHeader = false
}

// State returns the current frame assembly state.
func (d *Decoder) State() fsm.State {
	return d.machine.State()
}

// Machine exposes the state machine so a host can force the Error state and
// later drive it back to Header.
func (d *Decoder) Machine() *fsm.Machine {
	return d.machine
}

// Decode processes one packet from the byte source. Non-data packets are
// ignored.
func (d *Decoder) Decode(p uart.Packet) {
	if p.Type != uart.Data {
		return
	}
	d.ProcessByte(p.Start, p.End, p.Value)
}

// ProcessByte handles one data byte spanning start..end.
func (d *Decoder) ProcessByte(start, end int64, value byte) {
	d.start, d.end = start, end
	d.handlers[d.machine.State()](d, value)
}

func (d *Decoder) annotate(class AnnotationClass, long, medium, short string) {
	if d.sinks.Annotations == nil {
		return
	}
	d.sinks.Annotations.PutAnnotation(Annotation{
		Start: d.start,
		End:   d.end,
		Class: class,
		Texts: [3]string{long, medium, short},
	})
}

func (d *Decoder) putBinary(start, end int64, class BinaryClass, data []byte) {
	if d.sinks.Binary == nil {
		return
	}
	d.sinks.Binary.PutBinary(Binary{Start: start, End: end, Class: class, Data: data})
}

func (d *Decoder) handleHeader(value byte) {
	n, ok := protocol.FrameLen(value)
	if !ok {
		d.annotate(ClassInlineError, "Start of frame not >=0x80", "Not >=0x80", "<0x80")
		return
	}

	d.frame.reset()
	d.frame.expectedLen = n
	d.machine.Transit(fsm.Data)
	// The header byte is the first byte of the frame.
	d.handleData(value)
}

func (d *Decoder) handleData(value byte) {
	f := &d.frame
	f.bytes = append(f.bytes, value)
	f.sum += uint(value)

	switch len(f.bytes) {
	case 1:
		d.annotate(ClassControl, fmt.Sprintf("Header (len %d)", f.expectedLen), "Header", "Hdr")
	case 2:
		f.start = d.start
		f.dest = value
		d.annotate(ClassControl, fmt.Sprintf("Destination (%02X)", value), "Destination", "Dest")
	case 3:
		f.src = value
		d.annotate(ClassControl, fmt.Sprintf("Source (%02X)", value), "Source", "Src")
	default:
		d.annotate(ClassControl, fmt.Sprintf("Data (%02X)", value), "Data", "Data")
	}

	if len(f.bytes) == f.expectedLen {
		f.end = d.end
		d.machine.Transit(fsm.Checksum)
	}
}

func (d *Decoder) handleChecksum(value byte) {
	f := &d.frame
	d.annotate(ClassControl, fmt.Sprintf("Checksum (%02X)", value), "Checksum", "Chksum")

	tester := protocol.IsTester(f.src)
	valid := byte(f.sum%256) == value

	if valid {
		if d.sinks.Records != nil {
			payload := make([]byte, len(f.bytes)-protocol.FrameOverhead)
			copy(payload, f.bytes[protocol.FrameOverhead:])
			d.sinks.Records.PutRecord(Record{
				Start: f.start,
				End:   f.end,
				Dest:  f.dest,
				Src:   f.src,
				Data:  payload,
			})
		}
	} else {
		d.annotate(ClassInlineError, "Checksum invalid", "Chksum invalid", "!CHK")
	}

	class := BinaryDevice
	if tester {
		class = BinaryTester
	}
	raw := make([]byte, 0, len(f.bytes)+1)
	raw = append(raw, f.bytes...)
	raw = append(raw, value)
	d.putBinary(f.start, d.end, class, raw)

	if !d.dumpHeader {
		d.dumpHeader = true
		d.putBinary(f.start, d.end, BinaryDump, dumpLine(DumpHeader))
	}
	d.putBinary(f.start, d.end, BinaryDump, dumpLine(d.dumpRow(valid)))

	f.reset()
	d.machine.Transit(fsm.Header)
}

func (d *Decoder) handleError(byte) {
	d.annotate(ClassError, "Error", "Err", "E")
}

// DumpHeader holds the column names of the TSV dump.
var DumpHeader = []string{
	"Name",
	"Source device ID",
	"Destination device ID",
	"Frame data",
	"Checksum",
}

func (d *Decoder) dumpRow(valid bool) []string {
	f := &d.frame
	var hex strings.Builder
	for _, b := range f.bytes[protocol.FrameOverhead:] {
		fmt.Fprintf(&hex, "%02X ", b)
	}

	status := "Invalid"
	if valid {
		status = "Valid"
	}
	return []string{
		protocol.Role(f.src),
		fmt.Sprintf("%02X", f.src),
		fmt.Sprintf("%02X", f.dest),
		hex.String(),
		status,
	}
}

func dumpLine(fields []string) []byte {
	return []byte(strings.Join(fields, "\t") + "\n")
}
