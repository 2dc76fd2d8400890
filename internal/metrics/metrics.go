package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigbag/kline-sniffer/internal/decoder"
	"github.com/bigbag/kline-sniffer/internal/protocol"
	"github.com/bigbag/kline-sniffer/internal/uart"
)

// NewRegistry creates a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the HTTP handler exposing reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Metrics counts bus traffic. It implements decoder.AnnotationSink and
// decoder.BinarySink so it can be attached to a decoder directly.
type Metrics struct {
	Frames       *prometheus.CounterVec // labels: role, result=valid|invalid
	Annotations  *prometheus.CounterVec // labels: class
	Bytes        prometheus.Counter
	IdlePeriods  prometheus.Counter
	PayloadBytes prometheus.Histogram
}

// New registers and returns the sniffer metrics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kline_frames_total",
			Help: "Frames seen on the bus by sender role and checksum result",
		}, []string{"role", "result"}),
		Annotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kline_annotations_total",
			Help: "Decoder annotations by class",
		}, []string{"class"}),
		Bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kline_bytes_total",
			Help: "Data bytes received from the bus",
		}),
		IdlePeriods: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kline_idle_periods_total",
			Help: "Bus silences longer than the idle gap",
		}),
		PayloadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kline_frame_payload_bytes",
			Help:    "Payload length of frames",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64, 127},
		}),
	}
	reg.MustRegister(m.Frames, m.Annotations, m.Bytes, m.IdlePeriods, m.PayloadBytes)
	return m
}

// ObservePacket counts a byte source packet.
func (m *Metrics) ObservePacket(p uart.Packet) {
	switch p.Type {
	case uart.Data:
		m.Bytes.Inc()
	case uart.Idle:
		m.IdlePeriods.Inc()
	}
}

// PutAnnotation counts an annotation by class.
func (m *Metrics) PutAnnotation(a decoder.Annotation) {
	m.Annotations.WithLabelValues(a.Class.String()).Inc()
}

// PutBinary counts complete frames. Dump lines are ignored.
func (m *Metrics) PutBinary(b decoder.Binary) {
	if b.Class == decoder.BinaryDump || len(b.Data) < protocol.FrameOverhead+1 {
		return
	}
	role := protocol.Role(b.Data[2])
	result := "valid"
	if protocol.VerifyChecksum(b.Data) != nil {
		result = "invalid"
	}
	m.Frames.WithLabelValues(role, result).Inc()
	m.PayloadBytes.Observe(float64(len(b.Data) - protocol.FrameOverhead - 1))
}
