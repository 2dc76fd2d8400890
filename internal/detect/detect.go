package detect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bigbag/kline-sniffer/internal/decoder"
	"github.com/bigbag/kline-sniffer/internal/protocol"
	"github.com/bigbag/kline-sniffer/internal/serial"
	"github.com/bigbag/kline-sniffer/internal/sniffer"
	"github.com/bigbag/kline-sniffer/internal/uart"
)

// Result describes the traffic heard on a port.
type Result struct {
	Port    string
	Bytes   int64
	Valid   int
	Invalid int
	Testers map[byte]int
	Devices map[byte]int
}

// Found reports whether at least one valid frame was decoded.
func (r *Result) Found() bool {
	return r.Valid > 0
}

// Options configures a scan.
type Options struct {
	BaudRate     int
	Window       time.Duration
	PowerAdapter bool
}

// Listen decodes r until it ends, ctx is done or the window elapses, and
// tallies the frames seen.
func Listen(ctx context.Context, r io.Reader, opts Options) (*Result, error) {
	res := &Result{Testers: map[byte]int{}, Devices: map[byte]int{}}

	count := decoder.BinaryFunc(func(b decoder.Binary) {
		if b.Class == decoder.BinaryDump {
			return
		}
		if protocol.VerifyChecksum(b.Data) != nil {
			res.Invalid++
			return
		}
		res.Valid++
		src := b.Data[2]
		if b.Class == decoder.BinaryTester {
			res.Testers[src]++
		} else {
			res.Devices[src]++
		}
	})

	if opts.Window > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Window)
		defer cancel()
	}

	s := sniffer.New(r, decoder.New(decoder.Sinks{Binary: count}), uart.Options{
		BaudRate: opts.BaudRate,
		Clock:    time.Now,
	})
	err := s.Run(ctx)
	res.Bytes = s.Stats().Bytes
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return res, err
	}
	return res, nil
}

// ScanPort listens on a single serial port.
func ScanPort(ctx context.Context, portName string, opts Options) (*Result, error) {
	port, err := serial.Open(portName, opts.BaudRate)
	if err != nil {
		return nil, err
	}
	defer port.Close()

	if opts.PowerAdapter {
		if err := port.PowerAdapter(); err != nil {
			return nil, fmt.Errorf("failed to power adapter: %w", err)
		}
	}

	res, err := Listen(ctx, port, opts)
	if res != nil {
		res.Port = portName
	}
	return res, err
}

// ScanPorts listens on every serial port in turn and returns the ports on
// which K-Line traffic was decoded.
func ScanPorts(ctx context.Context, opts Options) ([]Result, error) {
	ports, err := serial.ListPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to list ports: %w", err)
	}

	if len(ports) == 0 {
		return nil, fmt.Errorf("no serial ports found")
	}

	var results []Result
	for _, portName := range ports {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := ScanPort(ctx, portName, opts)
		if err != nil || !res.Found() {
			continue
		}
		results = append(results, *res)
	}

	return results, nil
}
