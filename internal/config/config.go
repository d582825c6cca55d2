package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	LogLevel   string           `yaml:"log_level"`
	LogFormat  string           `yaml:"log_format"` // "text", "json" or "auto"
	Transport  string           `yaml:"transport"`  // "tinygo" or "hci"
	Peripheral PeripheralConfig `yaml:"peripheral"`
	Central    CentralConfig    `yaml:"central"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
}

// PeripheralConfig holds settings for blegate-peripheral.
type PeripheralConfig struct {
	Role string `yaml:"role"` // "p1" or "p2"
	// Name overrides the advertised local name.
	Name              string        `yaml:"name"`
	PIN               string        `yaml:"pin"`
	DriftInterval     time.Duration `yaml:"drift_interval"`
	TelemetryInterval time.Duration `yaml:"telemetry_interval"`
	NotifyGap         time.Duration `yaml:"notify_gap"`
	LED               LEDConfig     `yaml:"led"`
}

// LEDConfig selects a GPIO character device line for the status LED.
// An empty Chip disables the LED.
type LEDConfig struct {
	Chip string `yaml:"chip"`
	Line uint32 `yaml:"line"`
}

// CentralConfig holds settings for blegate-central.
type CentralConfig struct {
	PIN         string        `yaml:"pin"`
	UserID      uint16        `yaml:"user_id"`
	ScanWindow  time.Duration `yaml:"scan_window"`
	RescanDelay time.Duration `yaml:"rescan_delay"`
	AuthDelay   time.Duration `yaml:"auth_delay"`
	P1Interval  time.Duration `yaml:"p1_interval"`
	P2Interval  time.Duration `yaml:"p2_interval"`
}

// MQTTConfig holds the telemetry bridge settings.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "blegate")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "auto",
		Transport: "tinygo",
		Peripheral: PeripheralConfig{
			Role:              "p1",
			PIN:               "123456",
			DriftInterval:     5 * time.Second,
			TelemetryInterval: 10 * time.Second,
			NotifyGap:         50 * time.Millisecond,
		},
		Central: CentralConfig{
			PIN:         "123456",
			UserID:      1,
			ScanWindow:  5 * time.Second,
			RescanDelay: time.Second,
			AuthDelay:   500 * time.Millisecond,
			P1Interval:  3 * time.Second,
			P2Interval:  4 * time.Second,
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    "blegate-central",
			TopicPrefix: "blegate",
		},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Resolve loads the config from path, or falls back to the default config
// path, or uses built-in defaults. It also returns the file that was read,
// "" for built-in defaults.
func Resolve(path string) (*Config, string, error) {
	if path != "" {
		cfg, err := Load(path)
		return cfg, path, err
	}

	defaultPath := DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := Load(defaultPath)
		if err != nil {
			return nil, "", fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, defaultPath, nil
	}

	return Default(), "", nil
}

const defaultHeader = `# blegate configuration
# Durations use Go syntax: 500ms, 5s, 1m.
# transport: tinygo (BlueZ / CoreBluetooth) or hci (raw Linux HCI socket).
`

// WriteDefault writes the default config to DefaultConfigPath if no file
// exists there. It returns the written path, or "" if a file was already
// present.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("checking config file: %w", err)
	}

	body, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), body...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	switch c.LogFormat {
	case "text", "json", "auto":
	default:
		return fmt.Errorf("log_format must be text, json, or auto, got %q", c.LogFormat)
	}

	switch c.Transport {
	case "tinygo", "hci":
	default:
		return fmt.Errorf("transport must be \"tinygo\" or \"hci\", got %q", c.Transport)
	}

	switch strings.ToLower(c.Peripheral.Role) {
	case "p1", "p2":
	default:
		return fmt.Errorf("peripheral.role must be \"p1\" or \"p2\", got %q", c.Peripheral.Role)
	}
	if err := validatePIN("peripheral.pin", c.Peripheral.PIN); err != nil {
		return err
	}
	if c.Peripheral.DriftInterval <= 0 {
		return fmt.Errorf("peripheral.drift_interval must be > 0")
	}
	if c.Peripheral.TelemetryInterval <= 0 {
		return fmt.Errorf("peripheral.telemetry_interval must be > 0")
	}
	if c.Peripheral.NotifyGap < 0 {
		return fmt.Errorf("peripheral.notify_gap must be >= 0")
	}

	if err := validatePIN("central.pin", c.Central.PIN); err != nil {
		return err
	}
	if c.Central.UserID == 0 {
		return fmt.Errorf("central.user_id must be > 0")
	}
	for name, d := range map[string]time.Duration{
		"central.scan_window":  c.Central.ScanWindow,
		"central.rescan_delay": c.Central.RescanDelay,
		"central.auth_delay":   c.Central.AuthDelay,
		"central.p1_interval":  c.Central.P1Interval,
		"central.p2_interval":  c.Central.P2Interval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be > 0", name)
		}
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker must not be empty when mqtt is enabled")
		}
		if c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1, or 2, got %d", c.MQTT.QoS)
		}
	}

	return nil
}

// validatePIN requires 4 to 8 decimal digits.
func validatePIN(key, pin string) error {
	if len(pin) < 4 || len(pin) > 8 {
		return fmt.Errorf("%s must be 4 to 8 digits, got %d characters", key, len(pin))
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return fmt.Errorf("%s must contain only digits", key)
		}
	}
	return nil
}

// ParseLogLevel maps a config log level to slog. Unknown values mean info.
func ParseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
