package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Proxy.Listen != "localhost:9090" {
		t.Errorf("Proxy.Listen = %q, want localhost:9090", cfg.Proxy.Listen)
	}
	if cfg.Proxy.UpstreamURL != "https://api.anthropic.com" {
		t.Errorf("Proxy.UpstreamURL = %q, want https://api.anthropic.com", cfg.Proxy.UpstreamURL)
	}
	if cfg.Proxy.SessionHeader != "X-Spindle-Session" {
		t.Errorf("Proxy.SessionHeader = %q, want X-Spindle-Session", cfg.Proxy.SessionHeader)
	}
	if cfg.API.Listen != "localhost:9091" {
		t.Errorf("API.Listen = %q, want localhost:9091", cfg.API.Listen)
	}
	if cfg.Journal.QueueMaxSize != 4096 {
		t.Errorf("Journal.QueueMaxSize = %d, want 4096", cfg.Journal.QueueMaxSize)
	}
	if cfg.Retention.SpindlesTTLDays != 30 {
		t.Errorf("Retention.SpindlesTTLDays = %d, want 30", cfg.Retention.SpindlesTTLDays)
	}
	if cfg.Dump.Enabled {
		t.Error("Dump.Enabled = true, want false by default")
	}
}

func TestLoadMissingFileGeneratesToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if !strings.HasPrefix(cfg.API.Token, "spindle_") {
		t.Errorf("Token = %q, want spindle_ prefix", cfg.API.Token)
	}
	if len(cfg.API.Token) != len("spindle_")+64 {
		t.Errorf("Token length = %d, want %d", len(cfg.API.Token), len("spindle_")+64)
	}

	// The generated token must have been persisted
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	info, _ := os.Stat(path)
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file mode = %o, want 0600", perm)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Proxy.Listen = "localhost:7777"
	cfg.Proxy.UpstreamTimeoutS = 600
	cfg.Journal.Path = "/tmp/custom.jsonl"
	cfg.API.Token = "spindle_testtoken"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.Proxy.Listen != "localhost:7777" {
		t.Errorf("Proxy.Listen = %q, want localhost:7777", loaded.Proxy.Listen)
	}
	if loaded.Proxy.UpstreamTimeoutS != 600 {
		t.Errorf("Proxy.UpstreamTimeoutS = %d, want 600", loaded.Proxy.UpstreamTimeoutS)
	}
	if loaded.Journal.Path != "/tmp/custom.jsonl" {
		t.Errorf("Journal.Path = %q, want /tmp/custom.jsonl", loaded.Journal.Path)
	}
	if loaded.API.Token != "spindle_testtoken" {
		t.Errorf("API.Token = %q, want spindle_testtoken", loaded.API.Token)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.API.Token = "spindle_filetoken"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	t.Setenv("SPINDLE_LISTEN", "localhost:8888")
	t.Setenv("SPINDLE_UPSTREAM_URL", "http://localhost:1234")
	t.Setenv("SPINDLE_JOURNAL_PATH", "/tmp/env.jsonl")
	t.Setenv("SPINDLE_DB_PATH", "/tmp/env.db")
	t.Setenv("SPINDLE_API_TOKEN", "spindle_envtoken")
	t.Setenv("SPINDLE_DUMP_DIR", "/tmp/envdumps")

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.Proxy.Listen != "localhost:8888" {
		t.Errorf("Proxy.Listen = %q, want env override", loaded.Proxy.Listen)
	}
	if loaded.Proxy.UpstreamURL != "http://localhost:1234" {
		t.Errorf("Proxy.UpstreamURL = %q, want env override", loaded.Proxy.UpstreamURL)
	}
	if loaded.Journal.Path != "/tmp/env.jsonl" {
		t.Errorf("Journal.Path = %q, want env override", loaded.Journal.Path)
	}
	if loaded.Store.DBPath != "/tmp/env.db" {
		t.Errorf("Store.DBPath = %q, want env override", loaded.Store.DBPath)
	}
	if loaded.API.Token != "spindle_envtoken" {
		t.Errorf("API.Token = %q, want env override", loaded.API.Token)
	}
	if !loaded.Dump.Enabled || loaded.Dump.Dir != "/tmp/envdumps" {
		t.Errorf("Dump = %+v, want enabled at /tmp/envdumps", loaded.Dump)
	}
}

func TestGenerateTokenUnique(t *testing.T) {
	a, err := generateToken()
	if err != nil {
		t.Fatalf("generateToken() error: %v", err)
	}
	b, err := generateToken()
	if err != nil {
		t.Fatalf("generateToken() error: %v", err)
	}
	if a == b {
		t.Error("two generated tokens are identical")
	}
}

func TestUpstreamTimeout(t *testing.T) {
	tests := []struct {
		seconds int
		want    time.Duration
	}{
		{0, 30 * time.Minute},
		{-5, 30 * time.Minute},
		{60, time.Minute},
		{1800, 30 * time.Minute},
	}
	for _, tt := range tests {
		p := ProxyConfig{UpstreamTimeoutS: tt.seconds}
		if got := p.UpstreamTimeout(); got != tt.want {
			t.Errorf("UpstreamTimeout(%d) = %v, want %v", tt.seconds, got, tt.want)
		}
	}
}
