package sink

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/bigbag/kline-sniffer/internal/decoder"
	"github.com/bigbag/kline-sniffer/internal/protocol"
)

type recordLine struct {
	Start   int64  `json:"start"`
	End     int64  `json:"end"`
	Role    string `json:"role"`
	Dest    string `json:"dest"`
	Src     string `json:"src"`
	Service string `json:"service,omitempty"`
	Data    string `json:"data"`
}

// RecordWriter writes one JSON object per valid frame.
type RecordWriter struct {
	errHolder
	enc *json.Encoder
}

// NewRecordWriter returns a RecordWriter writing JSON lines to w.
func NewRecordWriter(w io.Writer) *RecordWriter {
	return &RecordWriter{enc: json.NewEncoder(w)}
}

func (rw *RecordWriter) PutRecord(r decoder.Record) {
	line := recordLine{
		Start: r.Start,
		End:   r.End,
		Role:  protocol.Role(r.Src),
		Dest:  fmt.Sprintf("%02X", r.Dest),
		Src:   fmt.Sprintf("%02X", r.Src),
		Data:  hexString(r.Data),
	}
	if len(r.Data) > 0 {
		line.Service = protocol.ServiceName(r.Data[0])
	}
	if err := rw.enc.Encode(line); err != nil {
		rw.setErr(fmt.Errorf("write record: %w", err))
	}
}
