package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessiond.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDaemonConfigOverlay(t *testing.T) {
	path := writeConfig(t, `
backend = "bolt"
data = "/var/lib/sessiond/records.db"
sweep_interval_seconds = 30
default_ttl_seconds = 900
debug = true
`)
	cfg := defaultDaemonConfig()
	if err := loadDaemonConfig(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend != "bolt" || cfg.Data != "/var/lib/sessiond/records.db" {
		t.Errorf("backend/data = %q/%q", cfg.Backend, cfg.Data)
	}
	if cfg.SweepSeconds != 30 || cfg.DefaultTTLSeconds != 900 || !cfg.Debug {
		t.Errorf("sweep/ttl/debug = %d/%d/%v", cfg.SweepSeconds, cfg.DefaultTTLSeconds, cfg.Debug)
	}
	// Fields the file does not mention keep their defaults.
	want := defaultDaemonConfig()
	if cfg.Network != want.Network || cfg.Addr != want.Addr {
		t.Errorf("network/addr = %q/%q, want defaults", cfg.Network, cfg.Addr)
	}
}

func TestLoadDaemonConfigErrors(t *testing.T) {
	cfg := defaultDaemonConfig()
	if err := loadDaemonConfig(filepath.Join(t.TempDir(), "absent.toml"), &cfg); err == nil {
		t.Error("missing file loaded, want error")
	}
	path := writeConfig(t, "backend = [broken")
	if err := loadDaemonConfig(path, &cfg); err == nil {
		t.Error("malformed toml loaded, want error")
	}
}

func TestApplyFlagsWinOverFile(t *testing.T) {
	t.Cleanup(func() {
		for k := range explicitFlags {
			delete(explicitFlags, k)
		}
	})

	cfg := defaultDaemonConfig()
	cfg.Backend = "bolt" // as if set by the config file
	cfg.CacheSize = 128

	*backend = "leveldb"
	explicitFlags["backend"] = true
	applyFlags(&cfg)

	if cfg.Backend != "leveldb" {
		t.Errorf("backend = %q, want explicit flag to win", cfg.Backend)
	}
	if cfg.CacheSize != 128 {
		t.Errorf("cache size = %d, want file value kept", cfg.CacheSize)
	}
}

func TestOpenBackendUnknown(t *testing.T) {
	cfg := defaultDaemonConfig()
	cfg.Backend = "postgres"
	if _, err := openBackend(cfg); err == nil {
		t.Error("unknown backend opened, want error")
	}
}

func TestOpenBackendCached(t *testing.T) {
	cfg := defaultDaemonConfig()
	cfg.Backend = "bolt"
	cfg.Data = filepath.Join(t.TempDir(), "records.db")
	cfg.CacheSize = 64
	b, err := openBackend(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()
	if err := b.Put("k", []byte("v"), 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	if value, _, err := b.Get("k"); err != nil || string(value) != "v" {
		t.Errorf("get = %q, %v", value, err)
	}
}
