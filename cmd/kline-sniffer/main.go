package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bigbag/kline-sniffer/internal/config"
	"github.com/bigbag/kline-sniffer/internal/logging"
	"github.com/bigbag/kline-sniffer/internal/protocol"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configFlag    string
	logLevelFlag  string
	logFormatFlag string

	portFlag         string
	baudFlag         int
	powerAdapterFlag bool
	idleGapFlag      time.Duration
	windowFlag       time.Duration

	quietFlag      bool
	recordsFlag    string
	testerFlag     string
	deviceFlag     string
	dumpFlag       string
	pcapFlag       string
	metricsFlag    string
	sampleFlag     bool
	noProgressFlag bool
)

var (
	cfg    *config.Config
	logger = zap.NewNop()
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kline-sniffer",
		Short: "Decode K-Line (ISO 9141 / KWP2000) bus traffic",
		Long: `kline-sniffer listens to a K-Line diagnostic bus through a serial
adapter, or reads a raw byte capture, and decodes the frames exchanged
between a tester and vehicle ECUs.

Decoded frames can be printed, logged, and written as JSON lines, SLIP
framed per-role files, a TSV dump or a pcap file.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Config file (default ./kline.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "", "Log format (console, json)")

	// Sniff command
	sniffCmd := &cobra.Command{
		Use:   "sniff",
		Short: "Decode live traffic from a serial adapter",
		Long: `Open a serial K-Line adapter and decode bus traffic until interrupted.

Use --metrics to expose Prometheus counters while sniffing.`,
		Args: cobra.NoArgs,
		RunE: runSniff,
	}
	addSerialFlags(sniffCmd)
	addOutputFlags(sniffCmd)
	sniffCmd.Flags().DurationVar(&idleGapFlag, "idle-gap", 0, "Bus silence reported as idle (default from config)")
	sniffCmd.Flags().StringVar(&metricsFlag, "metrics", "", "Serve Prometheus metrics on this address, e.g. :9100")

	// Decode command
	decodeCmd := &cobra.Command{
		Use:   "decode [capture.bin]",
		Short: "Decode a raw byte capture",
		Long: `Decode a file holding the raw bytes received from a K-Line bus.

Bytes are timed back to back at the configured baud rate.
Use --sample to decode the capture embedded in this tool.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runDecode,
	}
	decodeCmd.Flags().IntVarP(&baudFlag, "baud", "b", protocol.DefaultBaudRate, "Baud rate used for timing")
	decodeCmd.Flags().BoolVar(&sampleFlag, "sample", false, "Decode the embedded sample capture")
	decodeCmd.Flags().BoolVar(&noProgressFlag, "no-progress", false, "Hide the progress bar")
	addOutputFlags(decodeCmd)

	// Frames command
	framesCmd := &cobra.Command{
		Use:   "frames <frames.slip>",
		Short: "Print frames from a SLIP frame file",
		Long:  "Print the frames stored in a tester or device file written with --tester or --device.",
		Args:  cobra.ExactArgs(1),
		RunE:  runFrames,
	}

	// Scan command
	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Find serial ports carrying K-Line traffic",
		Long:  "Listen on each serial port for a while and report the ports on which valid frames were decoded.",
		Args:  cobra.NoArgs,
		RunE:  runScan,
	}
	addSerialFlags(scanCmd)
	scanCmd.Flags().DurationVarP(&windowFlag, "window", "w", 0, "Listen time per port (default from config)")

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available serial ports",
		RunE:  runList,
	}

	// Info command
	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show decoder info",
		Long:  "Show the decoder identity, annotation classes, rows and binary outputs.",
		Run: func(cmd *cobra.Command, args []string) {
			printInfo(cmd.OutOrStdout())
		},
	}

	// Version command
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kline-sniffer %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}

	rootCmd.AddCommand(sniffCmd, decodeCmd, framesCmd, scanCmd, listCmd, infoCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addSerialFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&portFlag, "port", "p", "", "Serial port (default from config)")
	cmd.Flags().IntVarP(&baudFlag, "baud", "b", protocol.DefaultBaudRate, "Baud rate")
	cmd.Flags().BoolVar(&powerAdapterFlag, "power-adapter", false, "Power the adapter through DTR before listening")
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&quietFlag, "quiet", "q", false, "Do not print annotations")
	cmd.Flags().StringVar(&recordsFlag, "records", "", "Write valid frames as JSON lines to this file")
	cmd.Flags().StringVar(&testerFlag, "tester", "", "Write tester frames (SLIP framed) to this file")
	cmd.Flags().StringVar(&deviceFlag, "device", "", "Write device frames (SLIP framed) to this file")
	cmd.Flags().StringVar(&dumpFlag, "dump", "", "Write the TSV frame dump to this file")
	cmd.Flags().StringVar(&pcapFlag, "pcap", "", "Write frames to this pcap file")
}

// setup loads the configuration, applies flag overrides and builds the
// logger.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configFlag)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)

	logger, err = logging.InitLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	return nil
}

// applyFlags overrides config values with flags set on the command line.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	changed := func(name string) bool {
		f := flags.Lookup(name)
		return f != nil && f.Changed
	}

	if changed("log-level") {
		c.Logging.Level = logLevelFlag
	}
	if changed("log-format") {
		c.Logging.Format = logFormatFlag
	}
	if changed("port") {
		c.Serial.Port = portFlag
	}
	if changed("baud") {
		c.Serial.Baud = baudFlag
	}
	if changed("power-adapter") {
		c.Serial.PowerAdapter = powerAdapterFlag
	}
	if changed("idle-gap") {
		c.Serial.IdleGap = idleGapFlag
	}
	if changed("window") {
		c.Detect.Listen = windowFlag
	}
	if changed("quiet") {
		c.Output.Annotations = !quietFlag
	}
	if changed("records") {
		c.Output.Records = recordsFlag
	}
	if changed("tester") {
		c.Output.TesterFrames = testerFlag
	}
	if changed("device") {
		c.Output.DeviceFrames = deviceFlag
	}
	if changed("dump") {
		c.Output.Dump = dumpFlag
	}
	if changed("pcap") {
		c.Output.Pcap = pcapFlag
	}
	if changed("metrics") {
		c.Metrics.Addr = metricsFlag
	}
}
