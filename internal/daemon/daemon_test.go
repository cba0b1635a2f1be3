package daemon

import (
	"errors"
	"net"
	"os"
	"testing"

	"github.com/npresenced/npresenced/internal/config"
	"github.com/npresenced/npresenced/internal/lookup"
)

// withEmptyPATH temporarily clears PATH so exec.LookPath can never find the
// lookup binary, then restores it.
func withEmptyPATH(t *testing.T) {
	t.Helper()
	old, had := os.LookupEnv("PATH")
	os.Setenv("PATH", t.TempDir())
	t.Cleanup(func() {
		if had {
			os.Setenv("PATH", old)
		} else {
			os.Unsetenv("PATH")
		}
	})
}

func TestNew_LookupUnavailable(t *testing.T) {
	withEmptyPATH(t)

	cfg := config.DefaultConfig()
	cfg.ListenPort = 0

	_, err := New(cfg)
	if !errors.Is(err, ErrLookupUnavailable) {
		t.Fatalf("expected ErrLookupUnavailable, got %v", err)
	}
}

func TestNew_BindFailed(t *testing.T) {
	// hcitool is unlikely to exist in the test environment either, so this
	// test only exercises the bind-failure path when a real lookup binary
	// happens to be on PATH; skip otherwise.
	if err := lookup.CheckAvailable(); err != nil {
		t.Skip("hcitool not present, cannot reach the bind-failure path")
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	addr := ln.Addr().(*net.TCPAddr)
	cfg := config.DefaultConfig()
	cfg.ListenAddress = "127.0.0.1"
	cfg.ListenPort = addr.Port

	_, err = New(cfg)
	if !errors.Is(err, ErrBindFailed) {
		t.Fatalf("expected ErrBindFailed, got %v", err)
	}
}
