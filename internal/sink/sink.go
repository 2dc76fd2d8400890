// Package sink provides decoder output consumers: text, logs, files and
// capture formats.
package sink

import (
	"sync"

	"github.com/bigbag/kline-sniffer/internal/decoder"
)

// errHolder keeps the first write error of a sink. Sink methods have no
// error return, so callers check Err once decoding stops.
type errHolder struct {
	mu  sync.Mutex
	err error
}

func (h *errHolder) setErr(err error) {
	if err == nil {
		return
	}
	h.mu.Lock()
	if h.err == nil {
		h.err = err
	}
	h.mu.Unlock()
}

// Err returns the first write error, if any.
func (h *errHolder) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Multi fans decoder output out to any number of sinks.
type Multi struct {
	annotations []decoder.AnnotationSink
	records     []decoder.RecordSink
	binary      []decoder.BinarySink
	errs        []interface{ Err() error }
}

// Add registers s for every sink interface it implements.
func (m *Multi) Add(s any) {
	if a, ok := s.(decoder.AnnotationSink); ok {
		m.annotations = append(m.annotations, a)
	}
	if r, ok := s.(decoder.RecordSink); ok {
		m.records = append(m.records, r)
	}
	if b, ok := s.(decoder.BinarySink); ok {
		m.binary = append(m.binary, b)
	}
	if e, ok := s.(interface{ Err() error }); ok {
		m.errs = append(m.errs, e)
	}
}

func (m *Multi) PutAnnotation(a decoder.Annotation) {
	for _, s := range m.annotations {
		s.PutAnnotation(a)
	}
}

func (m *Multi) PutRecord(r decoder.Record) {
	for _, s := range m.records {
		s.PutRecord(r)
	}
}

func (m *Multi) PutBinary(b decoder.Binary) {
	for _, s := range m.binary {
		s.PutBinary(b)
	}
}

// Err returns the first error reported by a registered sink.
func (m *Multi) Err() error {
	for _, e := range m.errs {
		if err := e.Err(); err != nil {
			return err
		}
	}
	return nil
}

// Sinks returns decoder sinks routed through m. Channels with no registered
// consumer are left nil so the decoder skips them.
func (m *Multi) Sinks() decoder.Sinks {
	var s decoder.Sinks
	if len(m.annotations) > 0 {
		s.Annotations = m
	}
	if len(m.records) > 0 {
		s.Records = m
	}
	if len(m.binary) > 0 {
		s.Binary = m
	}
	return s
}
