package sink

import (
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/bigbag/kline-sniffer/internal/decoder"
	"github.com/bigbag/kline-sniffer/internal/protocol"
	"github.com/bigbag/kline-sniffer/internal/slip"
)

// LinkTypeKLine is DLT_USER0, used for raw K-Line frames in pcap files.
const LinkTypeKLine = layers.LinkType(147)

// FrameFiles writes tester and device frames as SLIP-framed streams. A nil
// writer drops that role.
type FrameFiles struct {
	errHolder
	tester *slip.Writer
	device *slip.Writer
}

// NewFrameFiles returns a FrameFiles writing to the given streams.
func NewFrameFiles(tester, device io.Writer) *FrameFiles {
	f := &FrameFiles{}
	if tester != nil {
		f.tester = slip.NewWriter(tester)
	}
	if device != nil {
		f.device = slip.NewWriter(device)
	}
	return f
}

func (f *FrameFiles) PutBinary(b decoder.Binary) {
	var w *slip.Writer
	switch b.Class {
	case decoder.BinaryTester:
		w = f.tester
	case decoder.BinaryDevice:
		w = f.device
	}
	if w == nil {
		return
	}
	if err := w.WriteFrame(b.Data); err != nil {
		f.setErr(fmt.Errorf("write %s frame: %w", b.Class, err))
	}
}

// Dump writes the TSV dump lines.
type Dump struct {
	errHolder
	w io.Writer
}

// NewDump returns a Dump writing to w.
func NewDump(w io.Writer) *Dump {
	return &Dump{w: w}
}

func (d *Dump) PutBinary(b decoder.Binary) {
	if b.Class != decoder.BinaryDump {
		return
	}
	if _, err := d.w.Write(b.Data); err != nil {
		d.setErr(fmt.Errorf("write dump: %w", err))
	}
}

// Pcap writes tester and device frames to a pcap stream. Packet timestamps
// are base plus the frame start position.
type Pcap struct {
	errHolder
	w    *pcapgo.Writer
	base time.Time
}

// NewPcap writes the pcap file header to w and returns the sink.
func NewPcap(w io.Writer, base time.Time) (*Pcap, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(protocol.MaxFrameLen, LinkTypeKLine); err != nil {
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	return &Pcap{w: pw, base: base}, nil
}

func (p *Pcap) PutBinary(b decoder.Binary) {
	if b.Class == decoder.BinaryDump {
		return
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     p.base.Add(time.Duration(b.Start)),
		CaptureLength: len(b.Data),
		Length:        len(b.Data),
	}
	if err := p.w.WritePacket(ci, b.Data); err != nil {
		p.setErr(fmt.Errorf("write pcap packet: %w", err))
	}
}
