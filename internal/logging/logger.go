package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bigbag/kline-sniffer/internal/config"
)

// InitLogger builds a zap logger writing to stderr and, when a filename is
// configured, to a rolling lumberjack file. Stdout is left for decoder output.
func InitLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	syncers := []zapcore.WriteSyncer{zapcore.Lock(zapcore.AddSync(os.Stderr))}
	if cfg.File.Filename != "" {
		syncers = append(syncers, zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File.Filename,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}))
	}
	return newLogger(cfg, zapcore.NewMultiWriteSyncer(syncers...)), nil
}

// NewWriterLogger builds a logger writing to w only.
func NewWriterLogger(cfg config.LoggingConfig, w io.Writer) *zap.Logger {
	return newLogger(cfg, zapcore.AddSync(w))
}

func newLogger(cfg config.LoggingConfig, ws zapcore.WriteSyncer) *zap.Logger {
	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     func(t time.Time, enc zapcore.PrimitiveArrayEncoder) { enc.AppendString(t.Format(time.RFC3339Nano)) },
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "json" {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, ws, ParseLevel(cfg.Level))
	return zap.New(core, zap.AddCaller())
}

// ParseLevel maps a level name to a zap level. Unknown names map to info.
func ParseLevel(name string) zapcore.Level {
	switch strings.ToLower(name) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
