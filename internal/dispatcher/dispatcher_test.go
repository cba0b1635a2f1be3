package dispatcher

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/npresenced/npresenced/internal/clock"
	"github.com/npresenced/npresenced/internal/config"
	"github.com/npresenced/npresenced/internal/presence"
	"github.com/npresenced/npresenced/internal/subscription"
)

func testDispatcher(t *testing.T) (*Dispatcher, *presence.Table, *subscription.Registry, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	reg := subscription.New()
	tbl := presence.New()
	cfg := config.ScannerConfig{
		CleanupIntervalSec: 900,
		CleanupMaxAgeSec:   1800,
		StatsIntervalInfo:  300,
		StatsIntervalDebug: 60,
		DumpIntervalSec:    10,
	}
	d := New(cfg, false, ln, reg, tbl, clock.New())
	return d, tbl, reg, ln.Addr().String()
}

func TestDispatcher_SubscribeAndReceiveAbsence(t *testing.T) {
	d, _, _, addr := testDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)
	if _, err := conn.Write([]byte("aa:bb:cc:dd:ee:ff|1\n")); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	if line != "command accepted\n" {
		t.Fatalf("unexpected response: %q", line)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	update, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read update: %v", err)
	}
	if !strings.HasPrefix(update, "absence;") {
		t.Fatalf("expected an absence update line for a never-probed MAC, got %q", update)
	}
}

func TestDispatcher_PingDisconnects(t *testing.T) {
	d, _, _, addr := testDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("ping\n")); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if len(line) < 5 || line[:4] != "pong" {
		t.Fatalf("expected a pong response, got %q", line)
	}
	if _, err := reader.ReadString('\n'); err != io.EOF {
		t.Errorf("expected the server to close the connection after pong, got %v", err)
	}
}

func TestDispatcher_CleanupRemovesUnreferencedStaleEntries(t *testing.T) {
	d, tbl, _, _ := testDispatcher(t)
	tbl.Upsert("aa:bb:cc:dd:ee:ff", "Stale", "", 0)

	d.cleanup(int64(d.cfg.CleanupMaxAgeSec) + 1)

	if _, ok := tbl.Read("aa:bb:cc:dd:ee:ff"); ok {
		t.Error("expected stale, unreferenced entry to be removed")
	}
}

func TestDispatcher_CleanupKeepsFreshEntries(t *testing.T) {
	d, tbl, _, _ := testDispatcher(t)
	tbl.Upsert("aa:bb:cc:dd:ee:ff", "Fresh", "", 100)

	d.cleanup(150)

	if _, ok := tbl.Read("aa:bb:cc:dd:ee:ff"); !ok {
		t.Error("expected fresh entry to remain")
	}
}

func TestDispatcher_IsPresent(t *testing.T) {
	d, tbl, _, _ := testDispatcher(t)
	tbl.Upsert("aa:bb:cc:dd:ee:ff", "Phone", "", 100)

	present, name := d.isPresent("aa:bb:cc:dd:ee:ff", 30, 110)
	if !present || name != "Phone" {
		t.Errorf("expected present=true name=Phone, got present=%v name=%s", present, name)
	}

	present, _ = d.isPresent("aa:bb:cc:dd:ee:ff", 5, 200)
	if present {
		t.Error("expected stale entry to be reported absent")
	}

	present, _ = d.isPresent("unknown-mac", 30, 200)
	if present {
		t.Error("expected unknown MAC to be reported absent")
	}
}
