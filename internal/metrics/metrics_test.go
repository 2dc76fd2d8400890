package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bigbag/kline-sniffer/internal/decoder"
	"github.com/bigbag/kline-sniffer/internal/uart"
)

func feed(d *decoder.Decoder, data []byte) {
	for i, b := range data {
		d.ProcessByte(int64(i)*10, int64(i)*10+10, b)
	}
}

func TestMetrics_Frames(t *testing.T) {
	m := New(prometheus.NewRegistry())
	d := decoder.New(decoder.Sinks{Annotations: m, Binary: m})

	feed(d, []byte{
		0x81, 0x10, 0xF1, 0x81, 0x03, // tester, valid
		0x82, 0x10, 0x20, 0xAA, 0xBB, 0x17, // device, valid
		0x82, 0x10, 0x20, 0xAA, 0xBB, 0x18, // device, invalid
	})

	tests := []struct {
		role, result string
		expected     float64
	}{
		{"Tester", "valid", 1},
		{"Device", "valid", 1},
		{"Device", "invalid", 1},
		{"Tester", "invalid", 0},
	}
	for _, tc := range tests {
		got := testutil.ToFloat64(m.Frames.WithLabelValues(tc.role, tc.result))
		if got != tc.expected {
			t.Errorf("frames{%s,%s} = %v, want %v", tc.role, tc.result, got, tc.expected)
		}
	}

	if got := testutil.ToFloat64(m.Annotations.WithLabelValues("inline_error")); got != 1 {
		t.Errorf("annotations{inline_error} = %v, want 1", got)
	}
}

func TestMetrics_MalformedHeader(t *testing.T) {
	m := New(prometheus.NewRegistry())
	d := decoder.New(decoder.Sinks{Annotations: m, Binary: m})

	feed(d, []byte{0x00, 0x7F})

	if got := testutil.ToFloat64(m.Annotations.WithLabelValues("inline_error")); got != 2 {
		t.Errorf("annotations{inline_error} = %v, want 2", got)
	}
}

func TestMetrics_ObservePacket(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObservePacket(uart.Packet{Type: uart.Data, Value: 0x81})
	m.ObservePacket(uart.Packet{Type: uart.Data, Value: 0x10})
	m.ObservePacket(uart.Packet{Type: uart.Idle})

	if got := testutil.ToFloat64(m.Bytes); got != 2 {
		t.Errorf("bytes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.IdlePeriods); got != 1 {
		t.Errorf("idle periods = %v, want 1", got)
	}
}

func TestMetrics_IgnoresDump(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.PutBinary(decoder.Binary{Class: decoder.BinaryDump, Data: []byte("Tester\tF1\t10\t\tValid\n")})

	if got := testutil.CollectAndCount(m.Frames); got != 0 {
		t.Errorf("frame series = %d, want 0", got)
	}
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	m := New(reg)
	m.Bytes.Add(5)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Result().Body)
	if !strings.Contains(string(body), "kline_bytes_total 5") {
		t.Errorf("metrics output missing kline_bytes_total 5:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("metrics output missing Go collector")
	}
}
