package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

const DefaultConfigPath = "/etc/npresenced/config.yaml"

// DaemonName and Version are reported in presence lines (spec.md §4.7)
// and the version command; Version is overridden at build time via
// -ldflags -X github.com/npresenced/npresenced/internal/config.Version=<tag>.
const DaemonName = "npresenced"

var Version = "0.01"

var addrPattern = regexp.MustCompile(`^\d+\.\d+\.\d+\.\d+$`)

var validLogLevels = map[string]bool{
	"LOG_EMERG": true, "LOG_ALERT": true, "LOG_CRIT": true, "LOG_ERR": true,
	"LOG_WARNING": true, "LOG_NOTICE": true, "LOG_INFO": true, "LOG_DEBUG": true,
}

var validLogTargets = map[string]bool{"syslog": true, "stdout": true}

// Config is npresenced's full runtime configuration: the union of what can
// be set in the YAML file and what can be overridden on the command line.
type Config struct {
	BluetoothDevice string `yaml:"bluetoothdevice"`
	ListenAddress   string `yaml:"listenaddress"`
	ListenPort      int    `yaml:"listenport"`
	Daemonize       bool   `yaml:"daemon"`
	Fast            bool   `yaml:"fast"`
	LogLevel        string `yaml:"loglevel"`
	LogTarget       string `yaml:"logtarget"`
	Debug           bool   `yaml:"debug"`

	Scanner ScannerConfig `yaml:"scanner"`
	Metrics MetricsConfig `yaml:"metrics"`
	History HistoryConfig `yaml:"history"`
}

// ScannerConfig holds the tunables of spec.md §4.4's scan loop.
type ScannerConfig struct {
	DownThreshold       int `yaml:"down_threshold"`        // default 2
	RetrySleepSeconds   int `yaml:"retry_sleep_seconds"`   // default 1
	CleanupIntervalSec  int `yaml:"cleanup_interval_sec"`  // default 900
	CleanupMaxAgeSec    int `yaml:"cleanup_max_age_sec"`   // default 1800
	StatsIntervalInfo   int `yaml:"stats_interval_info"`   // default 300
	StatsIntervalDebug  int `yaml:"stats_interval_debug"`  // default 60
	DumpIntervalSec     int `yaml:"dump_interval_sec"`     // default 10
}

// MetricsConfig enables the optional Prometheus scrape endpoint
// (SPEC_FULL.md DOMAIN STACK: metrics).
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // e.g. "0.0.0.0:9333"
}

// HistoryConfig enables the optional SQLite edge-transition log
// (SPEC_FULL.md DOMAIN STACK: persistent state).
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads and parses the config file, expanding env vars, the same way
// the teacher's internal/config.Load does.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns the defaults from spec.md §4.4 and §6.
func DefaultConfig() *Config {
	return &Config{
		BluetoothDevice: "hci0",
		ListenAddress:   "0.0.0.0",
		ListenPort:      5333,
		LogLevel:        "LOG_INFO",
		LogTarget:       "stdout",
		Scanner: ScannerConfig{
			DownThreshold:      2,
			RetrySleepSeconds:  1,
			CleanupIntervalSec: 900,
			CleanupMaxAgeSec:   1800,
			StatsIntervalInfo:  300,
			StatsIntervalDebug: 60,
			DumpIntervalSec:    10,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: "0.0.0.0:9333",
		},
		History: HistoryConfig{
			Enabled: false,
			Path:    "/var/lib/npresenced/history.db",
		},
	}
}

// Validate checks the config for the constraints spec.md §6 names.
func (c *Config) Validate() error {
	if !addrPattern.MatchString(c.ListenAddress) {
		return fmt.Errorf("listenaddress %q must match \\d+.\\d+.\\d+.\\d+", c.ListenAddress)
	}
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("listenport %d out of range", c.ListenPort)
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid loglevel: %s", c.LogLevel)
	}
	if !validLogTargets[c.LogTarget] {
		return fmt.Errorf("invalid logtarget: %s (must be syslog or stdout)", c.LogTarget)
	}
	if c.Scanner.DownThreshold <= 0 {
		return fmt.Errorf("scanner.down_threshold must be positive")
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("metrics.address is required when metrics is enabled")
	}
	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history.path is required when history is enabled")
	}
	return nil
}

// ListenAddr formats the listen address/port pair for net.Listen.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ListenAddress, c.ListenPort)
}
