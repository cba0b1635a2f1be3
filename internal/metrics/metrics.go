// Package metrics exposes an optional Prometheus scrape endpoint: counters
// and gauges the Scanner and Dispatcher update as they run.
package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds every metric npresenced reports.
type Registry struct {
	DevicesTracked   prometheus.Gauge
	ProbesTotal      *prometheus.CounterVec
	ProbeFailures    *prometheus.CounterVec
	EdgesTotal       *prometheus.CounterVec
	SessionsActive   prometheus.Gauge
	CleanupRemoved   prometheus.Counter
}

// Get returns the global metrics registry, creating it on first use.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
	})
	return registry
}

func newRegistry() *Registry {
	r := &Registry{}

	r.DevicesTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "npresenced_devices_tracked",
		Help: "Current number of MACs present in the presence table",
	})

	r.ProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "npresenced_probes_total",
		Help: "Total probes issued by the scanner",
	}, []string{"mac"})

	r.ProbeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "npresenced_probe_failures_total",
		Help: "Total probe failures (device not reachable)",
	}, []string{"mac"})

	r.EdgesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "npresenced_edges_total",
		Help: "Total up/down edges detected",
	}, []string{"mac", "edge"})

	r.SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "npresenced_sessions_active",
		Help: "Current number of connected client sessions",
	})

	r.CleanupRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "npresenced_cleanup_removed_total",
		Help: "Total presence table entries removed by the cleanup task",
	})

	return r
}

// Serve starts the metrics HTTP endpoint and blocks until ctx is canceled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
