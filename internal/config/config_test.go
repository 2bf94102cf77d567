package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loteria.yaml")
	data := []byte("server:\n  url: ws://play.example.com/ws\n  ping_interval: 15s\nlog:\n  level: debug\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.URL != "ws://play.example.com/ws" {
		t.Errorf("url = %q", cfg.Server.URL)
	}
	if cfg.Server.PingInterval != 15*time.Second {
		t.Errorf("ping interval = %v", cfg.Server.PingInterval)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("level = %q", cfg.Log.Level)
	}
	// Keys the file does not mention keep their defaults.
	if cfg.Server.DialTimeout != 10*time.Second {
		t.Errorf("dial timeout = %v", cfg.Server.DialTimeout)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loteria.yaml")
	if err := os.WriteFile(path, []byte("server:\n  url: ws://file.example.com/ws\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("LOTERIA_SERVER_URL", "ws://env.example.com/ws")
	t.Setenv("LOTERIA_DIAL_TIMEOUT", "3s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.URL != "ws://env.example.com/ws" {
		t.Errorf("url = %q, env should win over the file", cfg.Server.URL)
	}
	if cfg.Server.DialTimeout != 3*time.Second {
		t.Errorf("dial timeout = %v", cfg.Server.DialTimeout)
	}
}

func TestLoadMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loteria.yaml")
	if err := os.WriteFile(path, []byte("server: [not a mapping"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected a parse error")
	}
}
