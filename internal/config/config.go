package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Devices         map[string]string `yaml:"devices"` // name -> BLE address
	Update          UpdateConfig      `yaml:"update"`
	Receive         ReceiveConfig     `yaml:"receive"`
	RSSI            RSSIConfig        `yaml:"rssi"`
	ConnectTimeout  time.Duration     `yaml:"connect_timeout"`
	MaxFailCount    int               `yaml:"max_fail_count"`
	TopicPrefix     string            `yaml:"topic_prefix"`
	DiscoveryPrefix string            `yaml:"discovery_prefix"`
	HTTP            HTTPConfig        `yaml:"http"`
	LogLevel        string            `yaml:"log_level"`
}

// UpdateConfig holds sensor polling settings.
type UpdateConfig struct {
	MinInterval  time.Duration `yaml:"min_interval"`  // per-device throttle, floored at 60s
	PollInterval time.Duration `yaml:"poll_interval"` // how often the worker publishes state
}

// ReceiveConfig holds IR learning settings.
type ReceiveConfig struct {
	Timeout time.Duration `yaml:"timeout"` // wait per fragment
}

// RSSIConfig holds signal-strength reporting settings.
type RSSIConfig struct {
	Enabled  bool          `yaml:"enabled"`
	ScanTime time.Duration `yaml:"scan_time"` // passive scan per update
}

// HTTPConfig holds the command/metrics listener settings.
type HTTPConfig struct {
	Listen string `yaml:"listen"` // empty disables the listener
}

// namePattern restricts device names to single MQTT topic levels.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "mzbtir")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Devices: map[string]string{},
		Update: UpdateConfig{
			MinInterval:  300 * time.Second,
			PollInterval: 300 * time.Second,
		},
		Receive: ReceiveConfig{
			Timeout: 15 * time.Second,
		},
		RSSI: RSSIConfig{
			ScanTime: 5 * time.Second,
		},
		ConnectTimeout:  10 * time.Second,
		MaxFailCount:    5,
		TopicPrefix:     "mzbtir",
		DiscoveryPrefix: "homeassistant",
		HTTP: HTTPConfig{
			Listen: ":9120",
		},
		LogLevel: "info",
	}
}

// defaultFileHeader is written above the YAML produced by WriteDefault.
const defaultFileHeader = `# mzbtir configuration
#
# devices maps a device name (used in topics and on the command line) to the
# BLE address of a Meizu btir remote, for example:
#
#   devices:
#     living_room: "68:3E:34:CC:E0:67"
#
`

// WriteDefault writes the default config to DefaultConfigPath if no file
// exists there yet. It returns the path written, or "" if a file was
// already present.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultFileHeader), data...), 0o644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
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
	if cfg.Devices == nil {
		cfg.Devices = map[string]string{}
	}

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	for _, name := range c.DeviceNames() {
		if !namePattern.MatchString(name) {
			return fmt.Errorf("devices: name %q must match %s", name, namePattern)
		}
		if c.Devices[name] == "" {
			return fmt.Errorf("devices.%s: address must not be empty", name)
		}
	}

	if c.Update.MinInterval <= 0 {
		return fmt.Errorf("update.min_interval must be > 0")
	}

	if c.Update.PollInterval <= 0 {
		return fmt.Errorf("update.poll_interval must be > 0")
	}

	if c.Receive.Timeout <= 0 {
		return fmt.Errorf("receive.timeout must be > 0")
	}

	if c.RSSI.Enabled && c.RSSI.ScanTime <= 0 {
		return fmt.Errorf("rssi.scan_time must be > 0")
	}

	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout must be > 0")
	}

	if c.MaxFailCount < 0 {
		return fmt.Errorf("max_fail_count must be >= 0, got %d", c.MaxFailCount)
	}

	if c.TopicPrefix == "" {
		return fmt.Errorf("topic_prefix must not be empty")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// DeviceNames returns the configured device names in sorted order.
func (c *Config) DeviceNames() []string {
	names := make([]string, 0, len(c.Devices))
	for name := range c.Devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
