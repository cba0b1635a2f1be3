// Package dispatcher implements the Dispatcher / Main Loop (spec.md §4.7):
// accepts connections, multiplexes session sockets, dispatches commands
// through the Command Parser, emits present/absence lines on schedule, and
// runs the periodic cleanup/stats/dump tasks (§4.8).
//
// The source's main loop is a single-threaded zero-timeout poll with a
// ~250ms sleep between iterations. A goroutine-per-connection fan-in onto
// one owning loop is the idiomatic Go shape for the same contract: exactly
// one goroutine ever touches the Presence Table for is_present evaluation,
// the Subscription Registry for force-drain, and the session set, so the
// ordering guarantees of spec.md §5 hold without any extra locking here.
package dispatcher

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/npresenced/npresenced/internal/clock"
	"github.com/npresenced/npresenced/internal/config"
	"github.com/npresenced/npresenced/internal/logging"
	"github.com/npresenced/npresenced/internal/metrics"
	"github.com/npresenced/npresenced/internal/presence"
	"github.com/npresenced/npresenced/internal/protocol"
	"github.com/npresenced/npresenced/internal/scanner"
	"github.com/npresenced/npresenced/internal/session"
	"github.com/npresenced/npresenced/internal/subscription"
	"github.com/npresenced/npresenced/pkg/models"
)

// mainLoopSleep approximates the source's MAINLOOP_SLEEP_US (~250ms).
const mainLoopSleep = 250 * time.Millisecond

type lineEvent struct {
	sess *session.Session
	line string
}

// Dispatcher owns every client session and the periodic task schedule.
type Dispatcher struct {
	cfg      config.ScannerConfig
	debug    bool
	listener net.Listener
	registry *subscription.Registry
	table    *presence.Table
	clk      *clock.Clock

	mu       sync.Mutex
	sessions map[*session.Session]struct{}

	accepts chan net.Conn
	lines   chan lineEvent
	closed  chan *session.Session

	nextCleanup int64
	nextStats   int64
	nextDump    int64
}

// New creates a Dispatcher bound to an already-listening socket.
func New(cfg config.ScannerConfig, debug bool, listener net.Listener, registry *subscription.Registry, table *presence.Table, clk *clock.Clock) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		debug:    debug,
		listener: listener,
		registry: registry,
		table:    table,
		clk:      clk,
		sessions: make(map[*session.Session]struct{}),
		accepts:  make(chan net.Conn),
		lines:    make(chan lineEvent),
		closed:   make(chan *session.Session),
	}
}

// Run blocks, serving connections until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	go d.acceptLoop(ctx)

	ticker := time.NewTicker(mainLoopSleep)
	defer ticker.Stop()

	now := d.clk.Now()
	d.nextCleanup = now + int64(d.cfg.CleanupIntervalSec)
	d.nextStats = now + d.statsInterval()
	d.nextDump = now + int64(d.cfg.DumpIntervalSec)

	for {
		select {
		case <-ctx.Done():
			d.closeAll()
			return nil

		case conn := <-d.accepts:
			d.addSession(conn)

		case le := <-d.lines:
			d.handleLine(le)

		case sess := <-d.closed:
			d.removeSession(sess)

		case <-ticker.C:
			d.tick()
		}
	}
}

func (d *Dispatcher) acceptLoop(ctx context.Context) {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logging.Errf("dispatcher: accept: %v", err)
				return
			}
		}
		select {
		case d.accepts <- conn:
		case <-ctx.Done():
			conn.Close()
			return
		}
	}
}

func (d *Dispatcher) addSession(conn net.Conn) {
	sess := session.New(conn)
	d.mu.Lock()
	d.sessions[sess] = struct{}{}
	count := len(d.sessions)
	d.mu.Unlock()
	metrics.Get().SessionsActive.Set(float64(count))
	go d.readLoop(sess)
}

// readLoop reads INET_RECV_BUFFER-style newline-terminated lines off one
// connection and forwards them to the owning loop; it never touches shared
// state directly.
func (d *Dispatcher) readLoop(sess *session.Session) {
	scan := bufio.NewScanner(sess.Conn)
	for scan.Scan() {
		d.lines <- lineEvent{sess: sess, line: scan.Text()}
	}
	d.closed <- sess
}

func (d *Dispatcher) handleLine(le lineEvent) {
	d.mu.Lock()
	count := len(d.sessions)
	d.mu.Unlock()

	res := protocol.Handle(le.line, le.sess, d.registry, d.table, count, d.clk.Now())
	if res.Response != "" {
		fmt.Fprintf(le.sess.Conn, "%s\n", res.Response)
	}
	if res.Disconnect {
		le.sess.Conn.Close()
	}
}

func (d *Dispatcher) removeSession(sess *session.Session) {
	d.mu.Lock()
	delete(d.sessions, sess)
	count := len(d.sessions)
	d.mu.Unlock()
	metrics.Get().SessionsActive.Set(float64(count))

	sess.Conn.Close()
	if sess.HasSubscription() {
		d.registry.Unset(sess.MAC)
	}
}

func (d *Dispatcher) closeAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for sess := range d.sessions {
		sess.Conn.Close()
	}
}

// tick runs one iteration of the owning loop's scheduled work: drain forced
// MACs, emit due session updates, and run whichever periodic task is due.
func (d *Dispatcher) tick() {
	now := d.clk.Now()
	d.drainForce(now)
	d.emitDue(now)
	d.runPeriodic(now)
}

func (d *Dispatcher) drainForce(now int64) {
	forced := d.registry.DrainForce()
	if len(forced) == 0 {
		return
	}
	set := make(map[string]struct{}, len(forced))
	for _, mac := range forced {
		set[mac] = struct{}{}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for sess := range d.sessions {
		if _, ok := set[sess.MAC]; ok {
			sess.ForceNow()
		}
	}
}

func (d *Dispatcher) emitDue(now int64) {
	d.mu.Lock()
	due := make([]*session.Session, 0, len(d.sessions))
	for sess := range d.sessions {
		if sess.HasSubscription() && sess.Due(now) {
			due = append(due, sess)
		}
	}
	d.mu.Unlock()

	for _, sess := range due {
		present, name := d.isPresent(sess.MAC, sess.Interval, now)
		line := protocol.FormatUpdate(present, name)
		if _, err := fmt.Fprintf(sess.Conn, "%s\n", line); err != nil {
			logging.Warningf("dispatcher: write to session for %s: %v", sess.MAC, err)
			sess.Conn.Close()
			continue
		}
		sess.Reschedule(now)
	}
}

// isPresent implements spec.md §4.7's is_present predicate.
func (d *Dispatcher) isPresent(mac string, interval int, now int64) (present bool, name string) {
	dev, ok := d.table.Read(mac)
	if !ok {
		return false, ""
	}
	if now-dev.Timestamp > int64(interval) {
		return false, dev.Name
	}
	return true, dev.Name
}

func (d *Dispatcher) statsInterval() int64 {
	if d.debug {
		return int64(d.cfg.StatsIntervalDebug)
	}
	return int64(d.cfg.StatsIntervalInfo)
}

// runPeriodic performs whichever of cleanup/stats/dump has come due, in
// that priority order, at most once per tick.
func (d *Dispatcher) runPeriodic(now int64) {
	if now >= d.nextCleanup {
		d.cleanup(now)
		d.nextCleanup = now + int64(d.cfg.CleanupIntervalSec)
		return
	}
	if now >= d.nextStats {
		d.stats(now)
		d.nextStats = now + d.statsInterval()
		return
	}
	if d.debug && now >= d.nextDump {
		d.dump(now)
		d.nextDump = now + int64(d.cfg.DumpIntervalSec)
	}
}

// cleanup drops stale Presence Table entries no live session references
// (spec.md §4.8).
func (d *Dispatcher) cleanup(now int64) {
	referenced := make(map[string]struct{})
	d.mu.Lock()
	for sess := range d.sessions {
		if sess.HasSubscription() {
			referenced[sess.MAC] = struct{}{}
		}
	}
	d.mu.Unlock()

	var stale []string
	d.table.Iterate(func(dev models.Device) {
		if _, live := referenced[dev.MAC]; live {
			return
		}
		if dev.Age(now) > int64(d.cfg.CleanupMaxAgeSec) {
			stale = append(stale, dev.MAC)
		}
	})
	for _, mac := range stale {
		d.table.Remove(mac)
	}
	if len(stale) > 0 {
		metrics.Get().CleanupRemoved.Add(float64(len(stale)))
		logging.Infof("dispatcher: cleanup removed %d stale device(s)", len(stale))
	}
}

// stats logs client and device counts (spec.md §4.8).
func (d *Dispatcher) stats(now int64) {
	d.mu.Lock()
	clients := len(d.sessions)
	d.mu.Unlock()
	devices := d.table.Len()
	metrics.Get().DevicesTracked.Set(float64(devices))
	logging.Infof("dispatcher: stats clients=%d devices=%d", clients, devices)
}

// dump logs every known device's MAC, age, previous age, and name
// (spec.md §4.8, debug-only).
func (d *Dispatcher) dump(now int64) {
	for _, line := range scanner.Dump(d.table, now) {
		logging.Debugf("dispatcher: dump %s", line)
	}
}
