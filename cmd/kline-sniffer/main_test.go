package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket/pcapgo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bigbag/kline-sniffer/embedded"
	"github.com/bigbag/kline-sniffer/internal/config"
	"github.com/bigbag/kline-sniffer/internal/decoder"
	"github.com/bigbag/kline-sniffer/internal/detect"
	"github.com/bigbag/kline-sniffer/internal/slip"
	"github.com/bigbag/kline-sniffer/internal/uart"
)

func TestPrintFrames(t *testing.T) {
	var in bytes.Buffer
	w := slip.NewWriter(&in)
	frames := [][]byte{
		{0x81, 0x10, 0xF1, 0x81, 0x03},
		{0x83, 0xF1, 0x10, 0x7F, 0x21, 0x12, 0x36},
		{0x82, 0x10, 0x20, 0xAA, 0xBB, 0x18},
	}
	for _, f := range frames {
		if err := w.WriteFrame(f); err != nil {
			t.Fatalf("WriteFrame() error = %v", err)
		}
	}

	var out bytes.Buffer
	n, err := printFrames(&out, &in)
	if err != nil {
		t.Fatalf("printFrames() error = %v", err)
	}
	if n != 3 {
		t.Errorf("printFrames() = %d, want 3", n)
	}

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), out.String())
	}
	expected := []string{
		"   1  Tester F1->10 StartCommunication [81]",
		"   2  Device 10->F1 NegativeResponse [7F 21 12]: sub-function not supported",
	}
	for i, want := range expected {
		if !strings.HasPrefix(lines[i], want) {
			t.Errorf("line %d = %q, want prefix %q", i+1, lines[i], want)
		}
	}
	if !strings.Contains(lines[2], "checksum mismatch") {
		t.Errorf("line 3 = %q, want checksum mismatch", lines[2])
	}
}

func TestPrintInfo(t *testing.T) {
	var out bytes.Buffer
	printInfo(&out)

	for _, want := range []string{"K-Line (k-line)", "inline_error", "tester", "dump"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("info output missing %q:\n%s", want, out.String())
		}
	}
}

func TestOpenOutputs(t *testing.T) {
	dir := t.TempDir()
	c := config.OutputConfig{
		Annotations:  true,
		Records:      filepath.Join(dir, "records.jsonl"),
		TesterFrames: filepath.Join(dir, "tester.slip"),
		DeviceFrames: filepath.Join(dir, "device.slip"),
		Dump:         filepath.Join(dir, "dump.tsv"),
		Pcap:         filepath.Join(dir, "capture.pcap"),
	}

	var stdout bytes.Buffer
	out, err := openOutputs(c, zap.NewNop(), &stdout, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("openOutputs() error = %v", err)
	}

	d := decoder.New(out.sinks.Sinks())
	for i, b := range embedded.Sample() {
		d.ProcessByte(int64(i)*1000, int64(i)*1000+1000, b)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if !strings.Contains(stdout.String(), "Checksum invalid") {
		t.Error("annotations not printed to stdout")
	}

	records, _ := os.ReadFile(c.Records)
	if got := strings.Count(string(records), "\n"); got != 9 {
		t.Errorf("records file has %d lines, want 9", got)
	}

	dump, _ := os.ReadFile(c.Dump)
	if got := strings.Count(string(dump), "\n"); got != 11 {
		t.Errorf("dump file has %d lines, want 11", got)
	}

	tester, err := os.Open(c.TesterFrames)
	if err != nil {
		t.Fatalf("open tester file: %v", err)
	}
	defer tester.Close()
	var listing bytes.Buffer
	n, err := printFrames(&listing, tester)
	if err != nil {
		t.Fatalf("printFrames() error = %v", err)
	}
	if n != 5 {
		t.Errorf("tester file has %d frames, want 5", n)
	}

	for _, path := range []string{c.DeviceFrames, c.Pcap} {
		info, err := os.Stat(path)
		if err != nil || info.Size() == 0 {
			t.Errorf("%s missing or empty", filepath.Base(path))
		}
	}
}

func TestOpenOutputs_BadPath(t *testing.T) {
	c := config.OutputConfig{Records: filepath.Join(t.TempDir(), "missing", "records.jsonl")}
	if _, err := openOutputs(c, zap.NewNop(), &bytes.Buffer{}, time.Now()); err == nil {
		t.Error("openOutputs() expected error for missing directory, got nil")
	}
}

func TestApplyFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	addSerialFlags(cmd)
	addOutputFlags(cmd)

	if err := cmd.ParseFlags([]string{"--port", "/dev/ttyUSB1", "--quiet", "--pcap", "out.pcap"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	c := &config.Config{
		Serial: config.SerialConfig{Port: "/dev/ttyUSB0", Baud: 9600},
		Output: config.OutputConfig{Annotations: true},
	}
	applyFlags(cmd, c)

	if c.Serial.Port != "/dev/ttyUSB1" {
		t.Errorf("Serial.Port = %q, want /dev/ttyUSB1", c.Serial.Port)
	}
	if c.Serial.Baud != 9600 {
		t.Errorf("Serial.Baud = %d, want 9600 (flag not set)", c.Serial.Baud)
	}
	if c.Output.Annotations {
		t.Error("Output.Annotations = true, want false with --quiet")
	}
	if c.Output.Pcap != "out.pcap" {
		t.Errorf("Output.Pcap = %q, want out.pcap", c.Output.Pcap)
	}
}

func TestPrintScanResult_SortedAddresses(t *testing.T) {
	res := &detect.Result{
		Port:    "/dev/ttyUSB0",
		Valid:   6,
		Testers: map[byte]int{0xF3: 1, 0xF1: 2},
		Devices: map[byte]int{0x33: 1, 0x10: 1, 0x28: 1},
	}

	for i := 0; i < 10; i++ {
		var out bytes.Buffer
		printScanResult(&out, res)

		got := out.String()
		order := []string{"Tester:   F1", "Tester:   F3", "Device:   10", "Device:   28", "Device:   33"}
		last := -1
		for _, want := range order {
			idx := strings.Index(got, want)
			if idx <= last {
				t.Fatalf("printScanResult() order wrong, %q at %d after %d:\n%s", want, idx, last, got)
			}
			last = idx
		}
	}
}

// clockReader hands out one chunk per Read, moving the fake clock forward
// by the matching delay first.
type clockReader struct {
	now    *time.Time
	delays []time.Duration
	chunks [][]byte
}

func (r *clockReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	*r.now = r.now.Add(r.delays[0])
	n := copy(p, r.chunks[0])
	r.delays, r.chunks = r.delays[1:], r.chunks[1:]
	return n, nil
}

func TestLiveSession_PcapKeepsLeadingSilence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.pcap")
	base := time.Unix(1700000000, 0)
	now := base

	out, err := openOutputs(config.OutputConfig{Pcap: path}, zap.NewNop(), io.Discard, base)
	if err != nil {
		t.Fatalf("openOutputs() error = %v", err)
	}

	frame := []byte{0x81, 0x10, 0xF1, 0x81, 0x03}
	r := &clockReader{now: &now, delays: []time.Duration{10 * time.Second}, chunks: [][]byte{frame}}
	s := newLiveSession(r, out, config.SerialConfig{Baud: 10400}, base, func() time.Time { return now })
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open pcap: %v", err)
	}
	defer f.Close()
	pr, err := pcapgo.NewReader(f)
	if err != nil {
		t.Fatalf("pcapgo.NewReader() error = %v", err)
	}
	_, ci, err := pr.ReadPacketData()
	if err != nil {
		t.Fatalf("ReadPacketData() error = %v", err)
	}

	// The frame's last byte ended 10s after base; the packet starts at the
	// destination byte.
	ct := uart.CharTime(10400)
	want := base.Add(10*time.Second - time.Duration(len(frame)-1)*ct)
	if d := ci.Timestamp.Sub(want); d < -time.Microsecond || d > time.Microsecond {
		t.Errorf("packet timestamp = %v, want %v", ci.Timestamp, want)
	}
}
