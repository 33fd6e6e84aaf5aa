package config

import (
	"os"
	"testing"
	"time"
)

const testYAML = `
data_dir: /var/lib/toolweave
cache:
  addr: "${TW_REDIS_ADDR}"
  ttl: 10m
defaults:
  handshake_timeout: 5s
  call_timeout: 30s
  chain_timeout: 2m
metrics:
  listen: ":9090"
schedules:
  - name: nightly-digest
    spec: "0 3 * * *"
    chain_id: digest
    input: "daily"
    vars:
      CHANNEL: reports
`

func TestParse(t *testing.T) {
	os.Setenv("TW_REDIS_ADDR", "localhost:6379")
	defer os.Unsetenv("TW_REDIS_ADDR")

	cfg, err := Parse([]byte(testYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.DataDir != "/var/lib/toolweave" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.Cache.Addr != "localhost:6379" {
		t.Errorf("Cache.Addr = %q, env not expanded", cfg.Cache.Addr)
	}
	if cfg.Cache.TTL != "10m" {
		t.Errorf("Cache.TTL = %q", cfg.Cache.TTL)
	}
	if cfg.Metrics.Listen != ":9090" {
		t.Errorf("Metrics.Listen = %q", cfg.Metrics.Listen)
	}
	if len(cfg.Schedules) != 1 {
		t.Fatalf("Schedules = %d, want 1", len(cfg.Schedules))
	}
	s := cfg.Schedules[0]
	if s.Name != "nightly-digest" || s.Spec != "0 3 * * *" || s.ChainID != "digest" {
		t.Errorf("schedule = %+v", s)
	}
	if s.Vars["CHANNEL"] != "reports" {
		t.Errorf("schedule vars = %v", s.Vars)
	}
}

func TestParseUnsetEnvLeftAlone(t *testing.T) {
	os.Unsetenv("TW_REDIS_ADDR")
	cfg, err := Parse([]byte(testYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Cache.Addr != "${TW_REDIS_ADDR}" {
		t.Errorf("Cache.Addr = %q, want placeholder preserved", cfg.Cache.Addr)
	}
}

func TestParseDefaultsDataDir(t *testing.T) {
	cfg, err := Parse([]byte("cache:\n  addr: localhost:6379\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.DataDir == "" {
		t.Error("DataDir not defaulted")
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		in       string
		fallback time.Duration
		want     time.Duration
		wantErr  bool
	}{
		{"", 30 * time.Second, 30 * time.Second, false},
		{"5s", time.Minute, 5 * time.Second, false},
		{"2m30s", 0, 2*time.Minute + 30*time.Second, false},
		{"bogus", time.Second, 0, true},
	}
	for _, tt := range tests {
		got, err := Duration(tt.in, tt.fallback)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Duration(%q): want error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("Duration(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Duration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
