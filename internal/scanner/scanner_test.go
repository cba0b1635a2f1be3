package scanner

import (
	"context"
	"errors"
	"testing"

	"github.com/npresenced/npresenced/internal/clock"
	"github.com/npresenced/npresenced/internal/config"
	"github.com/npresenced/npresenced/internal/lookup"
	"github.com/npresenced/npresenced/internal/presence"
	"github.com/npresenced/npresenced/internal/subscription"
	"github.com/npresenced/npresenced/pkg/models"
)

func testScanner(t *testing.T, present func(mac string) (string, bool)) (*Scanner, *presence.Table, *subscription.Registry) {
	t.Helper()
	reg := subscription.New()
	tbl := presence.New()
	l := lookup.NewFunc(func(ctx context.Context, mac string) ([]byte, error) {
		name, ok := present(mac)
		if !ok {
			return nil, errors.New("absent")
		}
		return []byte(name), nil
	})
	cfg := config.ScannerConfig{DownThreshold: 2, RetrySleepSeconds: 1}
	s := New(cfg, false, reg, tbl, l, clock.New(), nil)
	return s, tbl, reg
}

func TestProbeOne_FreshTrackerTreatsFirstSuccessAsEdge(t *testing.T) {
	var edges []models.Edge
	reg := subscription.New()
	tbl := presence.New()
	l := lookup.NewFunc(func(ctx context.Context, mac string) ([]byte, error) {
		return []byte("Phone"), nil
	})
	cfg := config.ScannerConfig{DownThreshold: 2, RetrySleepSeconds: 1}
	s := New(cfg, false, reg, tbl, l, clock.New(), func(mac string, e models.Edge, name string) {
		edges = append(edges, e)
	})

	reg.Set("aa:bb:cc:dd:ee:ff", 30)
	s.probeOne(context.Background(), "aa:bb:cc:dd:ee:ff", 30)

	if len(edges) != 1 || edges[0] != models.EdgeUp {
		t.Fatalf("expected a single up edge on first observation, got %v", edges)
	}
	d, ok := tbl.Read("aa:bb:cc:dd:ee:ff")
	if !ok || d.Name != "Phone" {
		t.Fatalf("expected presence table entry, got %+v ok=%v", d, ok)
	}
}

func TestProbeOne_DownEdgeAfterThreshold(t *testing.T) {
	var edges []models.Edge
	reg := subscription.New()
	tbl := presence.New()
	up := true
	l := lookup.NewFunc(func(ctx context.Context, mac string) ([]byte, error) {
		if up {
			return []byte("Phone"), nil
		}
		return nil, errors.New("absent")
	})
	cfg := config.ScannerConfig{DownThreshold: 2, RetrySleepSeconds: 1}
	s := New(cfg, false, reg, tbl, l, clock.New(), func(mac string, e models.Edge, name string) {
		edges = append(edges, e)
	})
	reg.Set("aa:bb:cc:dd:ee:ff", 10)

	// First probe: up edge.
	s.probeOne(context.Background(), "aa:bb:cc:dd:ee:ff", 10)

	up = false
	tr := s.trackers["aa:bb:cc:dd:ee:ff"]
	tr.nextProbeAt = 0 // force immediate re-probe in the test

	// First failure: down_count=1, below threshold, no edge yet.
	s.probeOne(context.Background(), "aa:bb:cc:dd:ee:ff", 10)
	if len(edges) != 1 {
		t.Fatalf("expected no second edge yet, got %v", edges)
	}

	tr.nextProbeAt = 0
	// Second consecutive failure: down_count reaches threshold, down edge.
	s.probeOne(context.Background(), "aa:bb:cc:dd:ee:ff", 10)
	if len(edges) != 2 || edges[1] != models.EdgeDown {
		t.Fatalf("expected down edge after threshold failures, got %v", edges)
	}

	d, ok := tbl.Read("aa:bb:cc:dd:ee:ff")
	if !ok {
		t.Fatal("expected stale entry to remain readable")
	}
	if d.Timestamp != 1 {
		t.Errorf("expected sentinel timestamp=1 for stale entry, got %d", d.Timestamp)
	}
}

func TestProbeOne_SkipsBeforeNextProbeDeadline(t *testing.T) {
	calls := 0
	reg := subscription.New()
	tbl := presence.New()
	l := lookup.NewFunc(func(ctx context.Context, mac string) ([]byte, error) {
		calls++
		return []byte("Phone"), nil
	})
	cfg := config.ScannerConfig{DownThreshold: 2, RetrySleepSeconds: 1}
	s := New(cfg, false, reg, tbl, l, clock.New(), nil)
	reg.Set("aa:bb:cc:dd:ee:ff", 30)

	s.probeOne(context.Background(), "aa:bb:cc:dd:ee:ff", 30)
	firstCalls := calls
	s.probeOne(context.Background(), "aa:bb:cc:dd:ee:ff", 30) // same tick, should be skipped
	if calls != firstCalls {
		t.Errorf("expected probe to be skipped before next_probe_at, calls=%d", calls)
	}
}

func TestSchedule_FastDisabledReturnsDesired(t *testing.T) {
	s, _, _ := testScanner(t, func(mac string) (string, bool) { return "X", true })
	tr := freshTracker(2)
	tr.downCount = 0
	now := s.clk.Now()
	got := s.schedule("aa:bb:cc:dd:ee:ff", 30, tr)
	if got != now+30 {
		t.Errorf("expected desired=now+interval when fast disabled, got %d (now=%d)", got, now)
	}
}

func TestDownvote_FindsGapBetweenCollisions(t *testing.T) {
	reg := subscription.New()
	tbl := presence.New()
	l := lookup.NewFunc(func(ctx context.Context, mac string) ([]byte, error) {
		return nil, errors.New("absent")
	})
	cfg := config.ScannerConfig{DownThreshold: 2, RetrySleepSeconds: 1}
	s := New(cfg, true, reg, tbl, l, clock.New(), nil)

	restore := clockTProbe
	clockTProbe = func() int64 { return 2 }
	defer func() { clockTProbe = restore }()

	now := s.clk.Now()
	s.trackers["other"] = &tracker{nextProbeAt: now + 10}

	got := s.downvote("mac", now+10, 100)
	if got == now+10 {
		t.Errorf("expected downvote to move off the colliding slot, got %d", got)
	}
}

func TestComputeStats(t *testing.T) {
	tbl := presence.New()
	tbl.Upsert("aa:aa:aa:aa:aa:aa", "A", "", 0)
	tbl.Upsert("bb:bb:bb:bb:bb:bb", "B", "", 10)

	st := ComputeStats(tbl, 20)
	if st.Devices != 2 {
		t.Errorf("expected 2 devices, got %d", st.Devices)
	}
	if st.MinAge != 10 || st.MaxAge != 20 {
		t.Errorf("expected min_age=10 max_age=20, got min=%d max=%d", st.MinAge, st.MaxAge)
	}
}

func TestComputeStats_Empty(t *testing.T) {
	tbl := presence.New()
	st := ComputeStats(tbl, 20)
	if st.HasAges {
		t.Error("expected HasAges=false for an empty table")
	}
}
