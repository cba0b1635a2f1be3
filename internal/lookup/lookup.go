// Package lookup invokes the external Bluetooth name-lookup binary and
// interprets its output, per spec.md §6 "External name-lookup tool": a
// non-empty trimmed stdout means the device is present and names it; an
// empty stdout or a non-zero exit means it is not. The invocation is
// injectable so the Scanner can be tested without a real radio, matching
// the teacher's `runIPNeigh func() ([]byte, error)` pattern in
// internal/watchers/network.go.
package lookup

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// ReservedMAC is the address used for one-shot T_probe calibration
// (spec.md §4.1): reserved and expected to never answer.
const ReservedMAC = "11:22:33:44:55:66"

// Binary is the external tool's executable name, resolved via PATH.
const Binary = "hcitool"

// Lookup invokes the external name-lookup tool for a configured radio.
type Lookup struct {
	device string
	run    func(ctx context.Context, mac string) ([]byte, error)
}

// New builds a Lookup bound to the given radio id (spec.md §6
// --bluetoothdevice/-b, e.g. "hci0").
func New(device string) *Lookup {
	l := &Lookup{device: device}
	l.run = l.execLookup
	return l
}

// NewFunc builds a Lookup backed by a caller-supplied probe function,
// bypassing os/exec entirely. Used by other packages' tests (e.g. the
// Scanner's) that need to drive probe outcomes without a real radio.
func NewFunc(fn func(ctx context.Context, mac string) ([]byte, error)) *Lookup {
	return &Lookup{run: fn}
}

func (l *Lookup) execLookup(ctx context.Context, mac string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, Binary, "-i", l.device, "name", mac)
	return cmd.Output()
}

// Probe runs one blocking name lookup for mac. present is false for every
// per-probe failure (empty output, non-zero exit, spawn failure) — spec.md
// §7 treats these identically, so Probe intentionally swallows the error.
func (l *Lookup) Probe(ctx context.Context, mac string) (name string, present bool) {
	out, err := l.run(ctx, mac)
	if err != nil {
		return "", false
	}
	name = strings.TrimSpace(string(out))
	if name == "" {
		return "", false
	}
	return name, true
}

// CheckAvailable reports whether the lookup binary can be found on PATH.
// Called once at startup; its absence is exit code 4 (spec.md §6).
func CheckAvailable() error {
	_, err := exec.LookPath(Binary)
	return err
}

// Calibrate measures T_probe by invoking the lookup tool once against the
// reserved, never-answering MAC and timing the elapsed wall-clock seconds
// (spec.md §4.1). It is a one-shot, fast-presence-only startup step.
func Calibrate(ctx context.Context, l *Lookup) time.Duration {
	start := time.Now()
	l.Probe(ctx, ReservedMAC)
	return time.Since(start)
}
