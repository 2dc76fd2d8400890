package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/bigbag/kline-sniffer/internal/config"
	"github.com/bigbag/kline-sniffer/internal/sink"
)

// outputFile is a buffered output file.
type outputFile struct {
	f *os.File
	w *bufio.Writer
}

func (o *outputFile) Write(p []byte) (int, error) {
	return o.w.Write(p)
}

func (o *outputFile) Close() error {
	return errors.Join(o.w.Flush(), o.f.Close())
}

// outputs holds the sinks built from the output configuration.
type outputs struct {
	sinks *sink.Multi
	files []*outputFile
}

// openOutputs creates the configured sinks. Annotations go to stdout and
// every frame is logged at debug level. base is the wall time of capture
// position zero.
func openOutputs(c config.OutputConfig, log *zap.Logger, stdout io.Writer, base time.Time) (*outputs, error) {
	o := &outputs{sinks: &sink.Multi{}}
	o.sinks.Add(sink.NewLogger(log))
	if c.Annotations {
		o.sinks.Add(sink.NewPrinter(stdout))
	}

	create := func(path string) (io.Writer, error) {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file: %w", err)
		}
		of := &outputFile{f: f, w: bufio.NewWriter(f)}
		o.files = append(o.files, of)
		return of, nil
	}

	if c.Records != "" {
		w, err := create(c.Records)
		if err != nil {
			return nil, errors.Join(err, o.Close())
		}
		o.sinks.Add(sink.NewRecordWriter(w))
	}

	if c.TesterFrames != "" || c.DeviceFrames != "" {
		var tester, device io.Writer
		var err error
		if c.TesterFrames != "" {
			if tester, err = create(c.TesterFrames); err != nil {
				return nil, errors.Join(err, o.Close())
			}
		}
		if c.DeviceFrames != "" {
			if device, err = create(c.DeviceFrames); err != nil {
				return nil, errors.Join(err, o.Close())
			}
		}
		o.sinks.Add(sink.NewFrameFiles(tester, device))
	}

	if c.Dump != "" {
		w, err := create(c.Dump)
		if err != nil {
			return nil, errors.Join(err, o.Close())
		}
		o.sinks.Add(sink.NewDump(w))
	}

	if c.Pcap != "" {
		w, err := create(c.Pcap)
		if err != nil {
			return nil, errors.Join(err, o.Close())
		}
		p, err := sink.NewPcap(w, base)
		if err != nil {
			return nil, errors.Join(err, o.Close())
		}
		o.sinks.Add(p)
	}

	return o, nil
}

// Close flushes and closes every output file and reports the first sink
// write error.
func (o *outputs) Close() error {
	errs := []error{o.sinks.Err()}
	for _, f := range o.files {
		errs = append(errs, f.Close())
	}
	o.files = nil
	return errors.Join(errs...)
}
