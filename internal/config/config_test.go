package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Serial.Baud != 10400 {
		t.Errorf("Serial.Baud = %d, want 10400", cfg.Serial.Baud)
	}
	if cfg.Serial.IdleGap != 20*time.Millisecond {
		t.Errorf("Serial.IdleGap = %v, want 20ms", cfg.Serial.IdleGap)
	}
	if !cfg.Output.Annotations {
		t.Error("Output.Annotations = false, want true")
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "console" {
		t.Errorf("Logging = %+v, want info/console", cfg.Logging)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want /metrics", cfg.Metrics.Path)
	}
	if cfg.Detect.Listen != 2*time.Second {
		t.Errorf("Detect.Listen = %v, want 2s", cfg.Detect.Listen)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, "kline.yaml", `
serial:
  port: /dev/ttyUSB0
  baud: 9600
  idleGap: 5ms
  powerAdapter: true
output:
  annotations: false
  records: frames.jsonl
  pcap: capture.pcap
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Serial.Port != "/dev/ttyUSB0" {
		t.Errorf("Serial.Port = %q, want /dev/ttyUSB0", cfg.Serial.Port)
	}
	if cfg.Serial.Baud != 9600 {
		t.Errorf("Serial.Baud = %d, want 9600", cfg.Serial.Baud)
	}
	if cfg.Serial.IdleGap != 5*time.Millisecond {
		t.Errorf("Serial.IdleGap = %v, want 5ms", cfg.Serial.IdleGap)
	}
	if !cfg.Serial.PowerAdapter {
		t.Error("Serial.PowerAdapter = false, want true")
	}
	if cfg.Output.Annotations {
		t.Error("Output.Annotations = true, want false")
	}
	if cfg.Output.Records != "frames.jsonl" || cfg.Output.Pcap != "capture.pcap" {
		t.Errorf("Output = %+v", cfg.Output)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want debug/json", cfg.Logging)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("KLINE_SERIAL_PORT", "/dev/ttyACM1")
	t.Setenv("KLINE_SERIAL_BAUD", "19200")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Serial.Port != "/dev/ttyACM1" {
		t.Errorf("Serial.Port = %q, want /dev/ttyACM1", cfg.Serial.Port)
	}
	if cfg.Serial.Baud != 19200 {
		t.Errorf("Serial.Baud = %d, want 19200", cfg.Serial.Baud)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Load() with missing file expected error, got nil")
	}
	if !strings.Contains(err.Error(), "read config") {
		t.Errorf("Load() error = %v, want error containing 'read config'", err)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		content string
		field   string
	}{
		{"serial:\n  baud: 0\n", "serial.baud"},
		{"logging:\n  format: xml\n", "logging.format"},
		{"detect:\n  listen: 0s\n", "detect.listen"},
	}

	for _, tc := range tests {
		_, err := Load(writeConfig(t, "kline.yaml", tc.content))
		if err == nil {
			t.Errorf("Load(%q) expected error, got nil", tc.content)
			continue
		}
		if !strings.Contains(err.Error(), tc.field) {
			t.Errorf("Load(%q) error = %v, want error mentioning %s", tc.content, err, tc.field)
		}
	}
}
