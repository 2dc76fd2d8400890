package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bigbag/kline-sniffer/embedded"
	"github.com/bigbag/kline-sniffer/internal/config"
	"github.com/bigbag/kline-sniffer/internal/decoder"
	"github.com/bigbag/kline-sniffer/internal/detect"
	"github.com/bigbag/kline-sniffer/internal/metrics"
	"github.com/bigbag/kline-sniffer/internal/protocol"
	"github.com/bigbag/kline-sniffer/internal/serial"
	"github.com/bigbag/kline-sniffer/internal/slip"
	"github.com/bigbag/kline-sniffer/internal/sniffer"
	"github.com/bigbag/kline-sniffer/internal/uart"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runSniff(cmd *cobra.Command, args []string) error {
	portName := cfg.Serial.Port
	if portName == "" {
		return fmt.Errorf("no serial port given, use --port or serial.port in the config")
	}

	port, err := serial.Open(portName, cfg.Serial.Baud)
	if err != nil {
		return fmt.Errorf("failed to open port: %w", err)
	}
	defer port.Close()

	if cfg.Serial.PowerAdapter {
		if err := port.PowerAdapter(); err != nil {
			return fmt.Errorf("failed to power adapter: %w", err)
		}
	}

	base := time.Now()
	out, err := openOutputs(cfg.Output, logger, cmd.OutOrStdout(), base)
	if err != nil {
		return err
	}
	defer out.Close()

	ctx, stop := signalContext()
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Addr != "" {
		reg := metrics.NewRegistry()
		m = metrics.New(reg)
		out.sinks.Add(m)

		srv := serveMetrics(cfg.Metrics.Addr, cfg.Metrics.Path, metrics.Handler(reg))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	s := newLiveSession(port, out, cfg.Serial, base, time.Now)
	s.SetLogger(logger)
	if m != nil {
		s.Observe(m.ObservePacket)
	}

	logger.Info("sniffing",
		zap.String("port", port.PortName()),
		zap.Int("baud", port.BaudRate()),
		zap.Duration("idle_gap", cfg.Serial.IdleGap))

	err = s.Run(ctx)
	stats := s.Stats()
	logger.Info("stopped",
		zap.Int64("bytes", stats.Bytes),
		zap.Int64("idle_periods", stats.IdlePeriods),
		zap.Duration("duration", stats.Duration))

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return out.Close()
}

// newLiveSession decodes a live stream. Positions count from base, the same
// instant the outputs use for pcap timestamps.
func newLiveSession(r io.Reader, out *outputs, c config.SerialConfig, base time.Time, clock uart.Clock) *sniffer.Session {
	return sniffer.New(r, decoder.New(out.sinks.Sinks()), uart.Options{
		BaudRate: c.Baud,
		IdleGap:  c.IdleGap,
		Clock:    clock,
		Origin:   base,
	})
}

func serveMetrics(addr, path string, h http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr), zap.String("path", path))
	return srv
}

func runDecode(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		name string
	)
	switch {
	case sampleFlag:
		data, name = embedded.Sample(), "embedded sample"
	case len(args) == 1:
		var err error
		if data, err = os.ReadFile(args[0]); err != nil {
			return fmt.Errorf("failed to read capture file: %w", err)
		}
		name = args[0]
	default:
		return fmt.Errorf("no capture given, pass a file or --sample")
	}

	out, err := openOutputs(cfg.Output, logger, cmd.OutOrStdout(), time.Now())
	if err != nil {
		return err
	}
	defer out.Close()

	var valid, invalid int
	out.sinks.Add(decoder.BinaryFunc(func(b decoder.Binary) {
		if b.Class == decoder.BinaryDump {
			return
		}
		if protocol.VerifyChecksum(b.Data) != nil {
			invalid++
		} else {
			valid++
		}
	}))

	ctx, stop := signalContext()
	defer stop()

	s := sniffer.New(bytes.NewReader(data), decoder.New(out.sinks.Sinks()), uart.Options{
		BaudRate: cfg.Serial.Baud,
	})
	s.SetLogger(logger)

	if !noProgressFlag {
		bar := progressbar.NewOptions64(int64(len(data)),
			progressbar.OptionSetDescription("Decoding"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowBytes(true),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		s.SetProgressCallback(func(current, total int64) {
			_ = bar.Set64(current)
		}, int64(len(data)))
		defer bar.Finish()
	}

	logger.Info("decoding", zap.String("capture", name), zap.Int("bytes", len(data)))
	if err := s.Run(ctx); err != nil {
		return err
	}
	logger.Info("decoded",
		zap.String("capture", name),
		zap.Int("valid_frames", valid),
		zap.Int("invalid_frames", invalid))

	return out.Close()
}

func runFrames(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open frame file: %w", err)
	}
	defer f.Close()

	n, err := printFrames(cmd.OutOrStdout(), f)
	if err != nil {
		return err
	}
	logger.Debug("frames printed", zap.Int("count", n))
	return nil
}

// printFrames prints every frame of a SLIP frame stream and returns the
// number of frames read.
func printFrames(w io.Writer, r io.Reader) (int, error) {
	sr := slip.NewReader(r, protocol.MaxFrameLen)
	count := 0
	for {
		raw, err := sr.ReadFrame()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("failed to read frame %d: %w", count+1, err)
		}
		count++

		f, err := protocol.ParseFrame(raw)
		if err != nil {
			fmt.Fprintf(w, "%4d  % X  (%v)\n", count, raw, err)
			continue
		}
		line := fmt.Sprintf("%4d  %-6s %s", count, protocol.Role(f.Src), f)
		if sid, ok := f.Service(); ok && sid == protocol.SidNegativeResponse && len(f.Data) >= 3 {
			line += ": " + protocol.NegativeResponseMessage(f.Data[2])
		}
		fmt.Fprintln(w, line)
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	opts := detect.Options{
		BaudRate:     cfg.Serial.Baud,
		Window:       cfg.Detect.Listen,
		PowerAdapter: cfg.Serial.PowerAdapter,
	}

	if cfg.Serial.Port != "" {
		res, err := detect.ScanPort(ctx, cfg.Serial.Port, opts)
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", cfg.Serial.Port, err)
		}
		printScanResult(cmd.OutOrStdout(), res)
		return nil
	}

	fmt.Printf("Listening on each port for %s...\n", opts.Window)
	results, err := detect.ScanPorts(ctx, opts)
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println("No K-Line traffic found")
		return nil
	}

	fmt.Printf("Found traffic on %d port(s):\n\n", len(results))
	for i := range results {
		printScanResult(cmd.OutOrStdout(), &results[i])
		fmt.Println()
	}
	return nil
}

func printScanResult(w io.Writer, r *detect.Result) {
	fmt.Fprintf(w, "  Port:     %s\n", r.Port)
	fmt.Fprintf(w, "  Bytes:    %d\n", r.Bytes)
	fmt.Fprintf(w, "  Frames:   %d valid, %d invalid\n", r.Valid, r.Invalid)
	for _, src := range slices.Sorted(maps.Keys(r.Testers)) {
		fmt.Fprintf(w, "  Tester:   %02X (%d frames)\n", src, r.Testers[src])
	}
	for _, src := range slices.Sorted(maps.Keys(r.Devices)) {
		fmt.Fprintf(w, "  Device:   %02X (%d frames)\n", src, r.Devices[src])
	}
}

func runList(cmd *cobra.Command, args []string) error {
	ports, err := serial.ListPorts()
	if err != nil {
		return err
	}

	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}

	fmt.Println("Available serial ports:")
	for _, p := range ports {
		fmt.Printf("  %s\n", p)
	}

	return nil
}

func printInfo(w io.Writer) {
	info := decoder.Metadata()
	fmt.Fprintf(w, "%s (%s)\n", info.Name, info.ID)
	fmt.Fprintf(w, "  %s\n", info.Description)
	fmt.Fprintf(w, "  License: %s\n", info.License)
	fmt.Fprintf(w, "  Inputs:  %v\n", info.Inputs)
	fmt.Fprintf(w, "  Tags:    %v\n", info.Tags)

	fmt.Fprintln(w, "\nAnnotation classes:")
	for i, c := range info.AnnotationClasses {
		fmt.Fprintf(w, "  %d  %-13s %s\n", i, c.ID, c.Description)
	}

	fmt.Fprintln(w, "\nAnnotation rows:")
	for _, r := range info.AnnotationRows {
		fmt.Fprintf(w, "  %-6s %v\n", r.Name, r.Classes)
	}

	fmt.Fprintln(w, "\nBinary classes:")
	for i, c := range info.BinaryClasses {
		fmt.Fprintf(w, "  %d  %-7s %s\n", i, c.ID, c.Description)
	}
}
