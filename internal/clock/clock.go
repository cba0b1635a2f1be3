// Package clock provides npresenced's monotonic time source and the
// one-shot T_probe calibration of spec.md §4.1.
package clock

import (
	"context"
	"time"

	"github.com/npresenced/npresenced/internal/lookup"
)

// Clock hands out monotonic seconds relative to its own creation. Go's
// time.Time carries a monotonic reading internally, so Since(start) is
// immune to wall-clock adjustments (NTP steps, DST) the way a raw
// time.Now().Unix() delta would not be.
type Clock struct {
	start time.Time
}

// New creates a Clock whose epoch is "now".
func New() *Clock {
	return &Clock{start: time.Now()}
}

// Now returns monotonic seconds since the Clock was created.
func (c *Clock) Now() int64 {
	return int64(time.Since(c.start).Seconds())
}

// TProbe is the process-global calibrated probe latency (spec.md §4.1),
// expressed in whole seconds to match the slot-packing arithmetic of
// spec.md §4.4. It is 0 until Calibrate runs, which matches "fast presence
// disabled" behavior (T_probe treated as 0, schedule() collapses to
// per-MAC intervals).
var TProbe int64

// Calibrate invokes the external lookup once against a reserved MAC and
// records the elapsed wall-clock seconds into TProbe. Call only when fast
// presence is enabled (spec.md §4.1); the caller is expected to log the
// resulting value.
func Calibrate(ctx context.Context, l *lookup.Lookup) int64 {
	d := lookup.Calibrate(ctx, l)
	TProbe = int64(d.Seconds())
	if TProbe < 1 {
		// A near-instant reserved-MAC probe (no radio present, fast failure)
		// would otherwise collapse slot-packing to no-op spacing at all.
		TProbe = 1
	}
	return TProbe
}
