package slip

import (
	"bufio"
	"errors"
	"io"
)

const (
	End    = 0xC0
	Esc    = 0xDB
	EscEnd = 0xDC
	EscEsc = 0xDD
)

// ErrFrameTooLarge is returned by Reader when a frame exceeds its limit.
var ErrFrameTooLarge = errors.New("slip: frame too large")

// Encode wraps data in SLIP framing.
// Adds END byte at start and end, escapes special bytes.
func Encode(data []byte) []byte {
	result := make([]byte, 0, len(data)+10)
	result = append(result, End)

	for _, b := range data {
		switch b {
		case End:
			result = append(result, Esc, EscEnd)
		case Esc:
			result = append(result, Esc, EscEsc)
		default:
			result = append(result, b)
		}
	}

	return append(result, End)
}

// Writer writes SLIP frames to an underlying writer.
type Writer struct {
	w io.Writer
}

// NewWriter returns a Writer framing every WriteFrame call.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteFrame writes one frame.
func (w *Writer) WriteFrame(data []byte) error {
	_, err := w.w.Write(Encode(data))
	return err
}

// Reader splits a SLIP byte stream into frames.
type Reader struct {
	r        *bufio.Reader
	maxFrame int
}

// NewReader returns a Reader rejecting frames longer than maxFrame bytes
// after unescaping. maxFrame <= 0 means no limit.
func NewReader(r io.Reader, maxFrame int) *Reader {
	return &Reader{r: bufio.NewReader(r), maxFrame: maxFrame}
}

// ReadFrame returns the next non-empty frame with escapes removed.
// Bytes before the first END are skipped. It returns io.EOF at a clean end of
// stream and io.ErrUnexpectedEOF if the stream ends inside a frame.
func (r *Reader) ReadFrame() ([]byte, error) {
	var (
		frame   []byte
		inFrame bool
		escaped bool
	)

	for {
		b, err := r.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && len(frame) > 0 {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}

		if b == End {
			if len(frame) > 0 {
				return frame, nil
			}
			inFrame = true
			escaped = false
			continue
		}
		if !inFrame {
			continue
		}

		if escaped {
			escaped = false
			switch b {
			case EscEnd:
				b = End
			case EscEsc:
				b = Esc
			}
		} else if b == Esc {
			escaped = true
			continue
		}

		if r.maxFrame > 0 && len(frame) >= r.maxFrame {
			return nil, ErrFrameTooLarge
		}
		frame = append(frame, b)
	}
}
