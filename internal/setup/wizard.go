// Package setup implements the interactive npresenced setup wizard: a
// guided prompt sequence that writes a working config.yaml.
package setup

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/npresenced/npresenced/internal/config"
)

// defaultConfigTemplate seeds a fresh config file before the wizard edits it
// in place. Keep in sync with config.DefaultConfig.
const defaultConfigTemplate = `# npresenced configuration
bluetoothdevice: "hci0"
listenaddress: "0.0.0.0"
listenport: 5333
daemon: false
fast: false
loglevel: "LOG_INFO"
logtarget: "stdout"
debug: false

scanner:
  down_threshold: 2
  retry_sleep_seconds: 1
  cleanup_interval_sec: 900
  cleanup_max_age_sec: 1800
  stats_interval_info: 300
  stats_interval_debug: 60
  dump_interval_sec: 10

metrics:
  enabled: false
  address: "0.0.0.0:9333"

history:
  enabled: false
  path: "/var/lib/npresenced/history.db"
`

// Run is the entry point for the interactive setup wizard.
func Run(configPath string) error {
	fmt.Println()
	fmt.Println("npresenced setup")
	fmt.Println("-----------------")
	fmt.Println()

	if err := ensureConfig(configPath); err != nil {
		return err
	}

	r := bufio.NewReader(os.Stdin)
	cfg := config.DefaultConfig()

	fmt.Printf("  Bluetooth radio id [%s]: ", cfg.BluetoothDevice)
	if v := strings.TrimSpace(readLine(r)); v != "" {
		cfg.BluetoothDevice = v
	}

	fmt.Printf("  Listen address [%s]: ", cfg.ListenAddress)
	if v := strings.TrimSpace(readLine(r)); v != "" {
		cfg.ListenAddress = v
	}

	fmt.Printf("  Listen port [%d]: ", cfg.ListenPort)
	if v := strings.TrimSpace(readLine(r)); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.ListenPort = p
		} else {
			fmt.Printf("  could not parse %q as a port, keeping %d\n", v, cfg.ListenPort)
		}
	}

	fmt.Print("  Enable fast-presence slot packing? [y/N]: ")
	cfg.Fast = readBool(r, false)

	fmt.Print("  Enable Prometheus metrics endpoint? [y/N]: ")
	cfg.Metrics.Enabled = readBool(r, false)
	if cfg.Metrics.Enabled {
		fmt.Printf("  Metrics listen address [%s]: ", cfg.Metrics.Address)
		if v := strings.TrimSpace(readLine(r)); v != "" {
			cfg.Metrics.Address = v
		}
	}

	fmt.Print("  Enable persistent edge-transition history (SQLite)? [y/N]: ")
	cfg.History.Enabled = readBool(r, false)
	if cfg.History.Enabled {
		fmt.Printf("  History database path [%s]: ", cfg.History.Path)
		if v := strings.TrimSpace(readLine(r)); v != "" {
			cfg.History.Path = v
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid answers: %w", err)
	}

	if err := writeConfig(configPath, cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	fmt.Printf("\n  config written to %s\n", configPath)

	fmt.Print("\n  Lookup helper requires a terminal with no echo for secrets; none needed here.\n")
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Println("  setup complete.")
	}
	return nil
}

// ensureConfig seeds path with defaultConfigTemplate if nothing is there
// yet, so the prompts below always have a file to rewrite in place rather
// than needing to distinguish "first run" from "re-run" logic later on.
func ensureConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	dir := path[:strings.LastIndexByte(path, '/')]
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0600); err != nil {
		return fmt.Errorf("creating default config: %w", err)
	}
	fmt.Printf("  no config found, seeded defaults at %s\n\n", path)
	return nil
}

// writeConfig renders cfg back out as YAML, reusing the same field names
// config.Load expects.
func writeConfig(path string, cfg *config.Config) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "bluetoothdevice: %q\n", cfg.BluetoothDevice)
	fmt.Fprintf(&sb, "listenaddress: %q\n", cfg.ListenAddress)
	fmt.Fprintf(&sb, "listenport: %d\n", cfg.ListenPort)
	fmt.Fprintf(&sb, "daemon: %t\n", cfg.Daemonize)
	fmt.Fprintf(&sb, "fast: %t\n", cfg.Fast)
	fmt.Fprintf(&sb, "loglevel: %q\n", cfg.LogLevel)
	fmt.Fprintf(&sb, "logtarget: %q\n", cfg.LogTarget)
	fmt.Fprintf(&sb, "debug: %t\n\n", cfg.Debug)

	fmt.Fprintln(&sb, "scanner:")
	fmt.Fprintf(&sb, "  down_threshold: %d\n", cfg.Scanner.DownThreshold)
	fmt.Fprintf(&sb, "  retry_sleep_seconds: %d\n", cfg.Scanner.RetrySleepSeconds)
	fmt.Fprintf(&sb, "  cleanup_interval_sec: %d\n", cfg.Scanner.CleanupIntervalSec)
	fmt.Fprintf(&sb, "  cleanup_max_age_sec: %d\n", cfg.Scanner.CleanupMaxAgeSec)
	fmt.Fprintf(&sb, "  stats_interval_info: %d\n", cfg.Scanner.StatsIntervalInfo)
	fmt.Fprintf(&sb, "  stats_interval_debug: %d\n", cfg.Scanner.StatsIntervalDebug)
	fmt.Fprintf(&sb, "  dump_interval_sec: %d\n\n", cfg.Scanner.DumpIntervalSec)

	fmt.Fprintln(&sb, "metrics:")
	fmt.Fprintf(&sb, "  enabled: %t\n", cfg.Metrics.Enabled)
	fmt.Fprintf(&sb, "  address: %q\n\n", cfg.Metrics.Address)

	fmt.Fprintln(&sb, "history:")
	fmt.Fprintf(&sb, "  enabled: %t\n", cfg.History.Enabled)
	fmt.Fprintf(&sb, "  path: %q\n", cfg.History.Path)

	return os.WriteFile(path, []byte(sb.String()), 0600)
}

// readLine reads one raw answer line for the prompts above, stripping the
// trailing newline but not surrounding spaces (callers trim as needed).
func readLine(r *bufio.Reader) string {
	line, _ := r.ReadString('\n')
	return strings.TrimRight(line, "\r\n")
}

// readBool parses a [y/N]-style answer: an empty answer takes defaultVal,
// "y"/"yes" is true, "n"/"no" is false, and anything else is treated as a
// mistyped answer and re-falls-back to defaultVal with a note, the same way
// an unparsable listen port above keeps the previous value instead of
// silently misreading the input.
func readBool(r *bufio.Reader, defaultVal bool) bool {
	line := strings.ToLower(strings.TrimSpace(readLine(r)))
	switch line {
	case "":
		return defaultVal
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		fmt.Printf("  could not parse %q as y/n, keeping %t\n", line, defaultVal)
		return defaultVal
	}
}
