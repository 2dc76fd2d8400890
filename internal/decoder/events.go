package decoder

// AnnotationClass selects how an annotation is displayed.
type AnnotationClass int

const (
	ClassData AnnotationClass = iota
	ClassControl
	ClassError
	ClassInlineError
)

// BinaryClass tags a binary output chunk.
type BinaryClass int

const (
	BinaryTester BinaryClass = iota
	BinaryDevice
	BinaryDump
)

// Annotation is a labelled span for human inspection. Texts holds the long,
// medium and short variants.
type Annotation struct {
	Start int64
	End   int64
	Class AnnotationClass
	Texts [3]string
}

// Text returns the long variant.
func (a Annotation) Text() string {
	return a.Texts[0]
}

// Record is the structured result of a frame with a valid checksum.
type Record struct {
	Start int64  `json:"start"`
	End   int64  `json:"end"`
	Dest  byte   `json:"dest"`
	Src   byte   `json:"src"`
	Data  []byte `json:"data"`
}

// Binary is a chunk of raw output: a complete frame for the tester and
// device classes, a UTF-8 TSV line for the dump class.
type Binary struct {
	Start int64
	End   int64
	Class BinaryClass
	Data  []byte
}

// AnnotationSink receives annotations.
type AnnotationSink interface {
	PutAnnotation(Annotation)
}

// RecordSink receives structured frame records.
type RecordSink interface {
	PutRecord(Record)
}

// BinarySink receives raw binary chunks.
type BinarySink interface {
	PutBinary(Binary)
}

// Sinks bundles the output channels of a decoder. Nil members drop their
// channel.
type Sinks struct {
	Annotations AnnotationSink
	Records     RecordSink
	Binary      BinarySink
}

// AnnotationFunc adapts a function to AnnotationSink.
type AnnotationFunc func(Annotation)

func (f AnnotationFunc) PutAnnotation(a Annotation) { f(a) }

// RecordFunc adapts a function to RecordSink.
type RecordFunc func(Record)

func (f RecordFunc) PutRecord(r Record) { f(r) }

// BinaryFunc adapts a function to BinarySink.
type BinaryFunc func(Binary)

func (f BinaryFunc) PutBinary(b Binary) { f(b) }
