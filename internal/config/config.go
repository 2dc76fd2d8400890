package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bigbag/kline-sniffer/internal/protocol"
)

// EnvPrefix prefixes environment overrides, e.g. KLINE_SERIAL_PORT.
const EnvPrefix = "KLINE"

// SerialConfig selects the K-Line interface.
type SerialConfig struct {
	Port         string        `mapstructure:"port"`
	Baud         int           `mapstructure:"baud"`
	PowerAdapter bool          `mapstructure:"powerAdapter"`
	IdleGap      time.Duration `mapstructure:"idleGap"`
}

// OutputConfig lists the files decoder output is written to. Empty paths
// disable the output.
type OutputConfig struct {
	Annotations  bool   `mapstructure:"annotations"`
	Records      string `mapstructure:"records"`
	TesterFrames string `mapstructure:"testerFrames"`
	DeviceFrames string `mapstructure:"deviceFrames"`
	Dump         string `mapstructure:"dump"`
	Pcap         string `mapstructure:"pcap"`
}

// LumberjackConfig configures the rolling log file.
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
	Path string `mapstructure:"path"`
}

// DetectConfig configures port scanning.
type DetectConfig struct {
	Listen time.Duration `mapstructure:"listen"`
}

// Config is the top-level configuration.
type Config struct {
	Serial  SerialConfig  `mapstructure:"serial"`
	Output  OutputConfig  `mapstructure:"output"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Detect  DetectConfig  `mapstructure:"detect"`
}

// Load reads configuration from a YAML/TOML/JSON file and KLINE_*
// environment variables. With an empty path it looks for kline.yaml in the
// working directory and ./configs, and falls back to defaults if none exists.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("kline")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("serial.port", "")
	v.SetDefault("serial.baud", protocol.DefaultBaudRate)
	v.SetDefault("serial.powerAdapter", false)
	v.SetDefault("serial.idleGap", 20*time.Millisecond)

	v.SetDefault("output.annotations", true)
	v.SetDefault("output.records", "")
	v.SetDefault("output.testerFrames", "")
	v.SetDefault("output.deviceFrames", "")
	v.SetDefault("output.dump", "")
	v.SetDefault("output.pcap", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 50)
	v.SetDefault("logging.file.maxBackups", 3)
	v.SetDefault("logging.file.maxAge", 7)
	v.SetDefault("logging.file.compress", false)

	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("detect.listen", 2*time.Second)
}

// Validate checks values that would make the tool misbehave.
func (c *Config) Validate() error {
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("invalid serial.baud: %d", c.Serial.Baud)
	}
	if c.Serial.IdleGap < 0 {
		return fmt.Errorf("invalid serial.idleGap: %s", c.Serial.IdleGap)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("invalid logging.format: %q", c.Logging.Format)
	}
	if c.Detect.Listen <= 0 {
		return fmt.Errorf("invalid detect.listen: %s", c.Detect.Listen)
	}
	return nil
}
