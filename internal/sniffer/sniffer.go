package sniffer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/bigbag/kline-sniffer/internal/decoder"
	"github.com/bigbag/kline-sniffer/internal/uart"
)

// ProgressCallback is called to report how many bytes have been consumed.
// total is zero when the stream length is unknown.
type ProgressCallback func(current, total int64)

// PacketObserver is notified of every packet before it reaches the decoder.
type PacketObserver func(uart.Packet)

// Stats summarizes a session.
type Stats struct {
	Bytes       int64
	IdlePeriods int64
	// Duration is the capture time up to the end of the last byte.
	Duration time.Duration
}

// Session pumps a byte stream through the decoder.
type Session struct {
	source    *uart.Source
	decoder   *decoder.Decoder
	log       *zap.Logger
	observers []PacketObserver
	progress  ProgressCallback
	total     int64
	stats     Stats
}

// New creates a session reading from r.
func New(r io.Reader, dec *decoder.Decoder, opts uart.Options) *Session {
	return &Session{
		source:  uart.NewSource(r, opts),
		decoder: dec,
		log:     zap.NewNop(),
	}
}

// SetLogger sets the session logger.
func (s *Session) SetLogger(log *zap.Logger) {
	s.log = log.Named("sniffer")
}

// SetProgressCallback sets the progress callback and the expected stream
// length in bytes.
func (s *Session) SetProgressCallback(cb ProgressCallback, total int64) {
	s.progress = cb
	s.total = total
}

// Observe adds a packet observer.
func (s *Session) Observe(o PacketObserver) {
	s.observers = append(s.observers, o)
}

// reportProgress calls the progress callback if set.
func (s *Session) reportProgress() {
	if s.progress != nil {
		s.progress(s.stats.Bytes, s.total)
	}
}

// Stats returns counters for the data consumed so far.
func (s *Session) Stats() Stats {
	st := s.stats
	st.Duration = time.Duration(s.source.Position())
	return st
}

// Decoder returns the session decoder.
func (s *Session) Decoder() *decoder.Decoder {
	return s.decoder
}

func (s *Session) handle(p uart.Packet) {
	switch p.Type {
	case uart.Data:
		s.stats.Bytes++
	case uart.Idle:
		s.stats.IdlePeriods++
		s.log.Debug("bus idle", zap.Int64("start", p.Start), zap.Int64("end", p.End))
	}
	for _, o := range s.observers {
		o(p)
	}
	s.decoder.Decode(p)
}

// Run decodes until the stream ends or ctx is done. A clean end of stream
// returns nil; cancellation returns ctx.Err().
func (s *Session) Run(ctx context.Context) error {
	s.log.Debug("session started", zap.Int64("total", s.total))
	defer func() {
		st := s.Stats()
		s.log.Debug("session stopped",
			zap.Int64("bytes", st.Bytes),
			zap.Int64("idle_periods", st.IdlePeriods),
			zap.Duration("duration", st.Duration))
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		before := s.stats.Bytes
		err := s.source.Next(s.handle)
		if s.stats.Bytes != before {
			s.reportProgress()
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read failed: %w", err)
		}
	}
}
