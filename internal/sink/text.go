package sink

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/bigbag/kline-sniffer/internal/decoder"
	"github.com/bigbag/kline-sniffer/internal/protocol"
)

// Printer writes annotations and frames as text lines.
type Printer struct {
	errHolder
	w    io.Writer
	info decoder.Info
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, info: decoder.Metadata()}
}

func (p *Printer) PutAnnotation(a decoder.Annotation) {
	_, err := fmt.Fprintf(p.w, "%d-%d %s: %s\n", a.Start, a.End, p.info.RowFor(a.Class), a.Text())
	p.setErr(err)
}

func (p *Printer) PutRecord(r decoder.Record) {
	f := protocol.NewFrame(r.Dest, r.Src, r.Data)
	_, err := fmt.Fprintf(p.w, "%d-%d Frame: %s %s\n", r.Start, r.End, protocol.Role(r.Src), f)
	p.setErr(err)
}

// Logger reports decoder output through zap: errors at warn, everything
// else at debug.
type Logger struct {
	log *zap.Logger
}

// NewLogger returns a Logger.
func NewLogger(log *zap.Logger) *Logger {
	return &Logger{log: log.Named("decoder")}
}

func (l *Logger) PutAnnotation(a decoder.Annotation) {
	fields := []zap.Field{
		zap.Int64("start", a.Start),
		zap.Int64("end", a.End),
		zap.Stringer("class", a.Class),
	}
	switch a.Class {
	case decoder.ClassError, decoder.ClassInlineError:
		l.log.Warn(a.Text(), fields...)
	default:
		l.log.Debug(a.Text(), fields...)
	}
}

func (l *Logger) PutRecord(r decoder.Record) {
	fields := []zap.Field{
		zap.Int64("start", r.Start),
		zap.Int64("end", r.End),
		zap.String("role", protocol.Role(r.Src)),
		zap.String("dest", fmt.Sprintf("%02X", r.Dest)),
		zap.String("src", fmt.Sprintf("%02X", r.Src)),
		zap.String("data", hexString(r.Data)),
	}
	if len(r.Data) > 0 {
		fields = append(fields, zap.String("service", protocol.ServiceName(r.Data[0])))
	}
	l.log.Debug("frame", fields...)
}

func hexString(data []byte) string {
	var b strings.Builder
	for i, v := range data {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}
