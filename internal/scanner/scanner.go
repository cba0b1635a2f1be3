// Package scanner implements the Scanner (spec.md §4.4): the single
// blocking worker that walks the Subscription Registry, probes each MAC
// through the external lookup tool, applies the up/down hysteresis state
// machine, updates the Presence Table, and packs probes into
// non-colliding time slots when fast presence is enabled.
package scanner

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/npresenced/npresenced/internal/clock"
	"github.com/npresenced/npresenced/internal/config"
	"github.com/npresenced/npresenced/internal/logging"
	"github.com/npresenced/npresenced/internal/lookup"
	"github.com/npresenced/npresenced/internal/presence"
	"github.com/npresenced/npresenced/internal/subscription"
	"github.com/npresenced/npresenced/pkg/models"
)

// RefreshSlackSeconds is the constant slack baked into the persistently-
// present refresh condition (spec.md §4.4 step 3, §9 open question 3):
// kept fixed rather than scaled by interval, for compatibility.
const RefreshSlackSeconds = 5

// tracker is the Scanner's private per-MAC bookkeeping (spec.md §3).
type tracker struct {
	downCount    int
	nextProbeAt  int64
	lastProbeAt  int64
	lastName     string
	pendingForce bool
}

func freshTracker(downThreshold int) *tracker {
	return &tracker{downCount: downThreshold + 1}
}

// EdgeObserver is notified whenever the Scanner detects an up/down
// transition; used to wire the Prometheus edge counter and the SQLite
// history log (SPEC_FULL.md DOMAIN STACK) without the Scanner importing
// either package directly.
type EdgeObserver func(mac string, edge models.Edge, name string)

// ProbeObserver is notified after every completed probe, success or
// failure; used to drive the Prometheus probe counters.
type ProbeObserver func(mac string, success bool)

// Scanner is the single-threaded scan loop.
type Scanner struct {
	cfg      config.ScannerConfig
	fast     bool
	registry *subscription.Registry
	table    *presence.Table
	lookup   *lookup.Lookup
	clk      *clock.Clock

	trackers map[string]*tracker
	onEdge   EdgeObserver
	onProbe  ProbeObserver
}

// New builds a Scanner. onEdge may be nil.
func New(cfg config.ScannerConfig, fast bool, registry *subscription.Registry, table *presence.Table, l *lookup.Lookup, clk *clock.Clock, onEdge EdgeObserver) *Scanner {
	return &Scanner{
		cfg:      cfg,
		fast:     fast,
		registry: registry,
		table:    table,
		lookup:   l,
		clk:      clk,
		trackers: make(map[string]*tracker),
		onEdge:   onEdge,
	}
}

// OnProbe installs the probe-observer hook; called once during daemon
// wiring, before Run starts.
func (s *Scanner) OnProbe(fn ProbeObserver) {
	s.onProbe = fn
}

// Run loops until ctx is cancelled (spec.md §5: the Scanner never exits on
// its own; only the process's overall shutdown stops it).
func (s *Scanner) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.step(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(s.cfg.RetrySleepSeconds) * time.Second):
		}
	}
}

// step runs one full pass over the Subscription Registry (spec.md §4.4
// steps 1–3).
func (s *Scanner) step(ctx context.Context) {
	subs := s.registry.Snapshot()
	live := make(map[string]bool, len(subs))

	for _, sub := range subs {
		live[sub.MAC] = true
		s.probeOne(ctx, sub.MAC, sub.Interval)
	}

	// Discard trackers for MACs no longer subscribed.
	for mac := range s.trackers {
		if !live[mac] {
			delete(s.trackers, mac)
		}
	}

	s.refreshPersistent(live)
}

// probeOne runs spec.md §4.4 steps 2.a–2.g for a single MAC.
func (s *Scanner) probeOne(ctx context.Context, mac string, interval int) {
	t, ok := s.trackers[mac]
	if !ok {
		t = freshTracker(s.cfg.DownThreshold)
		s.trackers[mac] = t
	}

	now := s.clk.Now()
	if now < t.nextProbeAt {
		return
	}

	name, present := s.lookup.Probe(ctx, mac)
	if s.onProbe != nil {
		s.onProbe(mac, present)
	}

	if present {
		if t.downCount >= s.cfg.DownThreshold {
			t.pendingForce = true
			s.emitEdge(mac, models.EdgeUp, name)
		}
		t.downCount = 0
		t.lastProbeAt = s.clk.Now()
		t.lastName = name
	} else {
		t.downCount++
		switch {
		case t.downCount == s.cfg.DownThreshold:
			t.pendingForce = true
			t.lastProbeAt = 1 // sentinel distant-past value
			s.emitEdge(mac, models.EdgeDown, t.lastName)
		case t.downCount < s.cfg.DownThreshold:
			t.nextProbeAt = 0
		}
	}

	t.nextProbeAt = s.schedule(mac, interval, t)

	if t.pendingForce || t.downCount < s.cfg.DownThreshold {
		s.table.Upsert(mac, t.lastName, "", t.lastProbeAt)
		if t.pendingForce {
			s.registry.MarkForce(mac)
		}
		t.pendingForce = false
	}
}

func (s *Scanner) emitEdge(mac string, edge models.Edge, name string) {
	logging.Noticef("scanner: %s edge on %s (%s)", edge, mac, name)
	if s.onEdge != nil {
		s.onEdge(mac, edge, name)
	}
}

// refreshPersistent implements spec.md §4.4 step 3: keep the Presence
// Table's timestamp moving for devices that are up but whose probe slot
// has slipped further than interval-RefreshSlackSeconds.
func (s *Scanner) refreshPersistent(live map[string]bool) {
	now := s.clk.Now()
	for mac := range live {
		t := s.trackers[mac]
		if t == nil || t.downCount >= s.cfg.DownThreshold {
			continue
		}
		sub, ok := s.lookupInterval(mac)
		if !ok {
			continue
		}
		if now-t.lastProbeAt > int64(sub)-RefreshSlackSeconds {
			t.lastProbeAt = now
			s.table.Upsert(mac, t.lastName, "", t.lastProbeAt)
		}
	}
}

func (s *Scanner) lookupInterval(mac string) (int, bool) {
	for _, sub := range s.registry.Snapshot() {
		if sub.MAC == mac {
			return sub.Interval, true
		}
	}
	return 0, false
}

// schedule implements spec.md §4.4's slot-packing algorithm. t is the
// tracker for mac, already updated by this iteration's probe result.
func (s *Scanner) schedule(mac string, interval int, t *tracker) int64 {
	now := s.clk.Now()
	desired := now + int64(interval)

	if !s.fast || clockTProbe() <= 0 {
		return desired
	}

	if t.downCount < s.cfg.DownThreshold {
		return s.upvote(mac, desired, now, interval)
	}
	return s.downvote(mac, desired, interval)
}

// clockTProbe indirects through the clock package's process-global TProbe
// so tests can exercise schedule() without depending on calibration order.
var clockTProbe = func() int64 { return clock.TProbe }

// upvote spreads an up-tracked MAC's next probe away from collisions with
// other trackers' slots, but never delays past this MAC's own interval
// budget (spec.md §4.4). Per spec's literal algorithm this frequently
// degrades to "no delay": pushing desired forward and then re-clamping it
// to now+interval can simply restore the original, possibly-colliding,
// value. The packing is documented as best-effort, not exact.
func (s *Scanner) upvote(mac string, desired, now int64, interval int) int64 {
	tProbe := clockTProbe()
	for other, ot := range s.trackers {
		if other == mac || ot.nextProbeAt == 0 {
			continue
		}
		if desired >= ot.nextProbeAt-tProbe && desired <= ot.nextProbeAt+tProbe {
			desired = ot.nextProbeAt + tProbe
		}
	}
	if budget := now + int64(interval); desired > budget {
		desired = budget
	}
	return desired
}

// downvote searches forward offsets for a gap between other trackers'
// slots, bounded to 30% of the MAC's interval (spec.md §4.4).
func (s *Scanner) downvote(mac string, desired int64, interval int) int64 {
	tProbe := clockTProbe()
	maxOffset := int64(float64(interval) * 0.3)

	for i := int64(0); i <= maxOffset; i += tProbe {
		collision := false
		for other, ot := range s.trackers {
			if other == mac || ot.nextProbeAt == 0 {
				continue
			}
			if ot.nextProbeAt >= desired && ot.nextProbeAt < desired+i {
				collision = true
				break
			}
		}
		if collision {
			return desired + i
		}
	}
	return desired
}

// Stats is a point-in-time summary for the "ping" command (spec.md §4.6)
// and the periodic Stats task (spec.md §4.8).
type Stats struct {
	Devices int
	MinAge  int64
	MaxAge  int64
	HasAges bool
}

// ComputeStats walks the Presence Table once, computing min/max age.
func ComputeStats(table *presence.Table, now int64) Stats {
	var st Stats
	table.Iterate(func(d models.Device) {
		age := d.Age(now)
		if !st.HasAges || age < st.MinAge {
			st.MinAge = age
		}
		if !st.HasAges || age > st.MaxAge {
			st.MaxAge = age
		}
		st.HasAges = true
		st.Devices++
	})
	return st
}

// Dump renders every tracked device for the debug-only Dump task
// (spec.md §4.8), one line per device.
func Dump(table *presence.Table, now int64) []string {
	var lines []string
	table.Iterate(func(d models.Device) {
		age := strconv.FormatInt(d.Age(now), 10)
		prevAge := strconv.FormatInt(now-d.PrevTimestamp, 10)
		lines = append(lines, strings.TrimSpace(d.String()+" age="+age+" prev_age="+prevAge))
	})
	return lines
}
