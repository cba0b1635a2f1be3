// Package daemon wires the Clock, Presence Table, Subscription Registry,
// Scanner, Dispatcher, and the optional metrics/history components into
// one running process (spec.md §2 SYSTEM OVERVIEW), the same role the
// teacher's internal/daemon.Daemon plays for its own watcher/notifier set.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/npresenced/npresenced/internal/clock"
	"github.com/npresenced/npresenced/internal/config"
	"github.com/npresenced/npresenced/internal/dispatcher"
	"github.com/npresenced/npresenced/internal/logging"
	"github.com/npresenced/npresenced/internal/lookup"
	"github.com/npresenced/npresenced/internal/metrics"
	"github.com/npresenced/npresenced/internal/presence"
	"github.com/npresenced/npresenced/internal/scanner"
	"github.com/npresenced/npresenced/internal/store"
	"github.com/npresenced/npresenced/internal/subscription"
	"github.com/npresenced/npresenced/pkg/models"
)

// ErrLookupUnavailable means the external name-lookup tool is missing from
// PATH (spec.md §6 exit code 4).
var ErrLookupUnavailable = errors.New("lookup tool unavailable")

// ErrBindFailed means the TCP listener could not be created (spec.md §6
// exit code 2).
var ErrBindFailed = errors.New("tcp bind failed")

// Daemon is the fully-wired npresenced process.
type Daemon struct {
	cfg      *config.Config
	table    *presence.Table
	registry *subscription.Registry
	clk      *clock.Clock
	scanner  *scanner.Scanner
	dispatch *dispatcher.Dispatcher
	listener net.Listener
	history  *store.Store
}

// New constructs every component per cfg but does not start them; call Run
// to block until shutdown.
func New(cfg *config.Config) (*Daemon, error) {
	lk := lookup.New(cfg.BluetoothDevice)
	if err := lookup.CheckAvailable(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupUnavailable, err)
	}

	clk := clock.New()
	if cfg.Fast {
		tProbe := clock.Calibrate(context.Background(), lk)
		logging.Infof("fast presence: calibrated T_probe=%ds", tProbe)
	}

	table := presence.New()
	registry := subscription.New()

	var hist *store.Store
	if cfg.History.Enabled {
		h, err := store.Open(cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("opening history store: %w", err)
		}
		hist = h
	}

	onEdge := func(mac string, edge models.Edge, name string) {
		metrics.Get().EdgesTotal.WithLabelValues(mac, edge.String()).Inc()
		if hist != nil {
			_ = hist.Record(models.Transition{
				MAC: mac, Edge: edge, Name: name, Timestamp: time.Now().Unix(),
			})
		}
	}

	scn := scanner.New(cfg.Scanner, cfg.Fast, registry, table, lk, clk, onEdge)
	scn.OnProbe(func(mac string, success bool) {
		metrics.Get().ProbesTotal.WithLabelValues(mac).Inc()
		if !success {
			metrics.Get().ProbeFailures.WithLabelValues(mac).Inc()
		}
	})

	ln, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBindFailed, err)
	}

	disp := dispatcher.New(cfg.Scanner, cfg.Debug, ln, registry, table, clk)

	return &Daemon{
		cfg:      cfg,
		table:    table,
		registry: registry,
		clk:      clk,
		scanner:  scn,
		dispatch: disp,
		listener: ln,
		history:  hist,
	}, nil
}

// Run blocks until ctx is canceled, running the Scanner, the optional
// metrics endpoint, and the Dispatcher concurrently.
func (d *Daemon) Run(ctx context.Context) error {
	go d.scanner.Run(ctx)

	if d.cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, d.cfg.Metrics.Address); err != nil {
				_ = err // dispatcher keeps serving even if the metrics endpoint fails
			}
		}()
	}

	return d.dispatch.Run(ctx)
}

// Close releases the listener and the optional history store. Call after
// Run returns.
func (d *Daemon) Close() error {
	if d.history != nil {
		d.history.Close()
	}
	return d.listener.Close()
}
