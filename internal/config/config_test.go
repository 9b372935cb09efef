package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Network != "testnet" {
		t.Errorf("default network = %q, want testnet", cfg.Network)
	}
	if cfg.Fee.TargetBlocks != 6 {
		t.Errorf("default fee target = %d, want 6", cfg.Fee.TargetBlocks)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("default log level = %q, want info", cfg.Logging.Level)
	}

	// The default config file is written on first load.
	if _, err := os.Stat(filepath.Join(dir, ConfigFileName)); err != nil {
		t.Errorf("config file should exist after first Load(): %v", err)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Network = "mainnet"
	cfg.RPC.URL = "http://127.0.0.1:8332"
	cfg.RPC.User = "alice"
	cfg.Fee.TargetBlocks = 2

	if err := cfg.Save(filepath.Join(dir, ConfigFileName)); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if got.Network != "mainnet" {
		t.Errorf("network = %q, want mainnet", got.Network)
	}
	if got.RPC.URL != "http://127.0.0.1:8332" {
		t.Errorf("rpc url = %q", got.RPC.URL)
	}
	if got.RPC.User != "alice" {
		t.Errorf("rpc user = %q, want alice", got.RPC.User)
	}
	if got.Fee.TargetBlocks != 2 {
		t.Errorf("fee target = %d, want 2", got.Fee.TargetBlocks)
	}
}

func TestLoadPartialConfigKeepsDefaults(t *testing.T) {
	dir := t.TempDir()

	partial := []byte("network: mainnet\n")
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), partial, 0600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Network != "mainnet" {
		t.Errorf("network = %q, want mainnet", cfg.Network)
	}
	if cfg.Fee.TargetBlocks != 6 {
		t.Errorf("unset fee target should keep default 6, got %d", cfg.Fee.TargetBlocks)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("network: [bad"), 0600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	if _, err := Load(dir); err == nil {
		t.Error("Load() should fail on malformed YAML")
	}
}
