package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.ListenPort != 5333 {
		t.Errorf("expected default port 5333, got %d", cfg.ListenPort)
	}
}

func TestLoad_ParsesYAMLAndExpandsEnv(t *testing.T) {
	os.Setenv("NPRESENCED_TEST_ADDR", "192.168.1.1")
	defer os.Unsetenv("NPRESENCED_TEST_ADDR")

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "listenaddress: \"${NPRESENCED_TEST_ADDR}\"\nlistenport: 6000\nfast: true\n"
	if err := os.WriteFile(path, []byte(yaml), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddress != "192.168.1.1" {
		t.Errorf("expected expanded address, got %q", cfg.ListenAddress)
	}
	if cfg.ListenPort != 6000 {
		t.Errorf("expected overridden port 6000, got %d", cfg.ListenPort)
	}
	if !cfg.Fast {
		t.Error("expected fast=true")
	}
}

func TestValidate_RejectsBadAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddress = "not-an-ip"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for malformed listen address")
	}
}

func TestValidate_RejectsBadLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "LOG_BOGUS"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown loglevel")
	}
}

func TestValidate_RejectsBadLogTarget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogTarget = "kafka"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown logtarget")
	}
}

func TestListenAddr(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddress = "0.0.0.0"
	cfg.ListenPort = 5333
	if got, want := cfg.ListenAddr(), "0.0.0.0:5333"; got != want {
		t.Errorf("ListenAddr() = %q, want %q", got, want)
	}
}
