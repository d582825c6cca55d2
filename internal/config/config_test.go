package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Transport != "tinygo" {
		t.Errorf("Transport = %q, want %q", cfg.Transport, "tinygo")
	}
	if cfg.Peripheral.Role != "p1" {
		t.Errorf("Peripheral.Role = %q, want %q", cfg.Peripheral.Role, "p1")
	}
	if cfg.Peripheral.NotifyGap != 50*time.Millisecond {
		t.Errorf("Peripheral.NotifyGap = %v, want 50ms", cfg.Peripheral.NotifyGap)
	}
	if cfg.Central.ScanWindow != 5*time.Second {
		t.Errorf("Central.ScanWindow = %v, want 5s", cfg.Central.ScanWindow)
	}
	if cfg.Central.AuthDelay != 500*time.Millisecond {
		t.Errorf("Central.AuthDelay = %v, want 500ms", cfg.Central.AuthDelay)
	}
	if cfg.Central.P1Interval != 3*time.Second || cfg.Central.P2Interval != 4*time.Second {
		t.Errorf("Central intervals = %v/%v, want 3s/4s", cfg.Central.P1Interval, cfg.Central.P2Interval)
	}
	if cfg.MQTT.Enabled {
		t.Error("MQTT.Enabled should default to false")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return cfgPath
}

func TestLoad(t *testing.T) {
	cfgPath := writeConfig(t, `
log_level: debug
log_format: json
transport: hci
peripheral:
  role: p2
  name: LAB_P2
  pin: "4321"
  telemetry_interval: 2s
  led:
    chip: /dev/gpiochip0
    line: 17
central:
  pin: "4321"
  user_id: 42
  p2_interval: 1500ms
mqtt:
  enabled: true
  broker: tcp://broker:1883
  qos: 1
`)

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "debug" || cfg.LogFormat != "json" {
		t.Errorf("log = %q/%q, want debug/json", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.Transport != "hci" {
		t.Errorf("Transport = %q, want %q", cfg.Transport, "hci")
	}
	if cfg.Peripheral.Role != "p2" || cfg.Peripheral.Name != "LAB_P2" || cfg.Peripheral.PIN != "4321" {
		t.Errorf("Peripheral = %+v", cfg.Peripheral)
	}
	if cfg.Peripheral.TelemetryInterval != 2*time.Second {
		t.Errorf("Peripheral.TelemetryInterval = %v, want 2s", cfg.Peripheral.TelemetryInterval)
	}
	if cfg.Peripheral.DriftInterval != 5*time.Second {
		t.Errorf("Peripheral.DriftInterval = %v, want default 5s", cfg.Peripheral.DriftInterval)
	}
	if cfg.Peripheral.LED.Chip != "/dev/gpiochip0" || cfg.Peripheral.LED.Line != 17 {
		t.Errorf("Peripheral.LED = %+v", cfg.Peripheral.LED)
	}
	if cfg.Central.UserID != 42 {
		t.Errorf("Central.UserID = %d, want 42", cfg.Central.UserID)
	}
	if cfg.Central.P2Interval != 1500*time.Millisecond {
		t.Errorf("Central.P2Interval = %v, want 1.5s", cfg.Central.P2Interval)
	}
	if cfg.Central.P1Interval != 3*time.Second {
		t.Errorf("Central.P1Interval = %v, want default 3s", cfg.Central.P1Interval)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker != "tcp://broker:1883" || cfg.MQTT.QoS != 1 {
		t.Errorf("MQTT = %+v", cfg.MQTT)
	}
	if cfg.MQTT.TopicPrefix != "blegate" {
		t.Errorf("MQTT.TopicPrefix = %q, want default %q", cfg.MQTT.TopicPrefix, "blegate")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadLEDChipVerbatim(t *testing.T) {
	cfg, err := Load(writeConfig(t, "peripheral:\n  led:\n    chip: /dev/gpiochip1\n    line: 17\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Peripheral.LED.Chip != "/dev/gpiochip1" || cfg.Peripheral.LED.Line != 17 {
		t.Errorf("Peripheral.LED = %+v", cfg.Peripheral.LED)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestResolve(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, src, err := Resolve("")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if src != "" || cfg.Transport != "tinygo" {
		t.Errorf("Resolve() = %q from %q, want defaults", cfg.Transport, src)
	}

	written, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if _, src, err = Resolve(""); err != nil || src != written {
		t.Errorf("Resolve() source = %q, %v, want %q", src, err, written)
	}

	explicit := writeConfig(t, "transport: hci\n")
	cfg, src, err = Resolve(explicit)
	if err != nil || src != explicit || cfg.Transport != "hci" {
		t.Errorf("Resolve(%q) = %q from %q, %v", explicit, cfg.Transport, src, err)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, "central:\n  scan_window: soon\n"))
	if err == nil {
		t.Error("Load() should reject an unparseable duration")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: true,
		},
		{
			name:    "invalid log format",
			modify:  func(c *Config) { c.LogFormat = "xml" },
			wantErr: true,
		},
		{
			name:    "invalid transport",
			modify:  func(c *Config) { c.Transport = "serial" },
			wantErr: true,
		},
		{
			name:    "invalid role",
			modify:  func(c *Config) { c.Peripheral.Role = "p3" },
			wantErr: true,
		},
		{
			name:    "role is case insensitive",
			modify:  func(c *Config) { c.Peripheral.Role = "P2" },
			wantErr: false,
		},
		{
			name:    "pin too short",
			modify:  func(c *Config) { c.Peripheral.PIN = "123" },
			wantErr: true,
		},
		{
			name:    "pin too long",
			modify:  func(c *Config) { c.Central.PIN = "123456789" },
			wantErr: true,
		},
		{
			name:    "pin not numeric",
			modify:  func(c *Config) { c.Central.PIN = "12ab" },
			wantErr: true,
		},
		{
			name:    "eight digit pin",
			modify:  func(c *Config) { c.Central.PIN = "12345678" },
			wantErr: false,
		},
		{
			name:    "zero user id",
			modify:  func(c *Config) { c.Central.UserID = 0 },
			wantErr: true,
		},
		{
			name:    "zero scan window",
			modify:  func(c *Config) { c.Central.ScanWindow = 0 },
			wantErr: true,
		},
		{
			name:    "zero telemetry interval",
			modify:  func(c *Config) { c.Peripheral.TelemetryInterval = 0 },
			wantErr: true,
		},
		{
			name:    "zero notify gap",
			modify:  func(c *Config) { c.Peripheral.NotifyGap = 0 },
			wantErr: false,
		},
		{
			name: "mqtt without broker",
			modify: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.Broker = ""
			},
			wantErr: true,
		},
		{
			name: "mqtt bad qos",
			modify: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.QoS = 3
			},
			wantErr: true,
		},
		{
			name:    "disabled mqtt ignores broker",
			modify:  func(c *Config) { c.MQTT.Broker = "" },
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWriteDefault_CreatesFile(t *testing.T) {
	// Use a temp dir as fake home to avoid touching real config
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	expectedPath := filepath.Join(tmpHome, ".config", "blegate", "config.yaml")
	if path != expectedPath {
		t.Errorf("WriteDefault() path = %q, want %q", path, expectedPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}
	if !strings.HasPrefix(string(data), "# blegate") {
		t.Error("written config should start with header comment")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}
	if cfg.Central.AuthDelay != 500*time.Millisecond {
		t.Errorf("written config Central.AuthDelay = %v, want 500ms", cfg.Central.AuthDelay)
	}
	if cfg.Peripheral.PIN != "123456" {
		t.Errorf("written config Peripheral.PIN = %q, want %q", cfg.Peripheral.PIN, "123456")
	}
}

func TestWriteDefault_NoOpIfExists(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	configDir := filepath.Join(tmpHome, ".config", "blegate")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	existingContent := []byte("transport: hci\n")
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, existingContent, 0644); err != nil {
		t.Fatalf("failed to write existing config: %v", err)
	}

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if path != "" {
		t.Errorf("WriteDefault() path = %q, want empty string for existing file", path)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if string(data) != string(existingContent) {
		t.Error("WriteDefault() should not overwrite existing config file")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
