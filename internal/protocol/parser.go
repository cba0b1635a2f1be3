// Package protocol implements the line-oriented command parser of
// spec.md §4.6: subscribe, now, ping, stop, and the "ignore anything else"
// fallback.
package protocol

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/npresenced/npresenced/internal/config"
	"github.com/npresenced/npresenced/internal/logging"
	"github.com/npresenced/npresenced/internal/presence"
	"github.com/npresenced/npresenced/internal/scanner"
	"github.com/npresenced/npresenced/internal/session"
	"github.com/npresenced/npresenced/internal/subscription"
)

var subscribePattern = regexp.MustCompile(`^([0-9a-fA-F]{2}:){5}[0-9a-fA-F]{2}\s*\|\s*[1-9]\d*$`)
var macPattern = regexp.MustCompile(`^([0-9a-fA-F]{2}:){5}[0-9a-fA-F]{2}$`)

// Result is what the Dispatcher writes back to the client and whether the
// connection should then be closed.
type Result struct {
	Response   string // empty means no response line (malformed input)
	Disconnect bool
}

// Handle recognizes one trimmed input line and applies its effect to sess
// and registry, per the table in spec.md §4.6.
func Handle(line string, sess *session.Session, registry *subscription.Registry, table *presence.Table, sessionCount int, now int64) Result {
	line = strings.TrimSpace(line)

	switch {
	case line == "now":
		sess.ForceNow()
		return Result{Response: "command accepted"}

	case line == "ping":
		st := scanner.ComputeStats(table, now)
		return Result{Response: formatPong(sessionCount, st), Disconnect: true}

	case line == "stop":
		if sess.HasSubscription() {
			registry.Unset(sess.MAC)
			sess.MAC = ""
		}
		return Result{Response: "no command running"}

	case subscribePattern.MatchString(line):
		mac, interval := parseSubscribe(line)
		sess.Subscribe(mac, interval)
		registry.Set(mac, interval)
		return Result{Response: "command accepted"}

	default:
		logging.Warningf("protocol: unrecognized command %q", line)
		return Result{}
	}
}

func parseSubscribe(line string) (mac string, interval int) {
	parts := strings.SplitN(line, "|", 2)
	mac = strings.ToLower(strings.TrimSpace(parts[0]))
	interval, _ = strconv.Atoi(strings.TrimSpace(parts[1]))
	return mac, interval
}

// formatPong builds the "pong [...]" response (spec.md §4.6).
func formatPong(clients int, st scanner.Stats) string {
	minAge, maxAge := "%", "%"
	if st.HasAges {
		minAge = strconv.FormatInt(st.MinAge, 10)
		maxAge = strconv.FormatInt(st.MaxAge, 10)
	}
	return fmt.Sprintf("pong [clients=%d;devices=%d;min_age=%s;max_age=%s]", clients, st.Devices, minAge, maxAge)
}

// ValidMAC reports whether s is a colon-separated MAC address; hex digits
// of either case are accepted.
func ValidMAC(s string) bool {
	return macPattern.MatchString(s)
}

// FormatUpdate renders the present/absence line of spec.md §4.7.
func FormatUpdate(present bool, deviceName string) string {
	if present {
		return fmt.Sprintf("present;device_name=%s;model=lan-%s;daemon=%s V%s",
			deviceName, config.DaemonName, config.DaemonName, config.Version)
	}
	return fmt.Sprintf("absence;model=lan-%s;daemon=%s V%s", config.DaemonName, config.DaemonName, config.Version)
}
