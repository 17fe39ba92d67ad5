package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Scheduler.TickInterval != 4*time.Second {
		t.Errorf("expected tick interval 4s, got %v", cfg.Scheduler.TickInterval)
	}

	if cfg.Scheduler.RunTimeout != 180*time.Second {
		t.Errorf("expected run timeout 180s, got %v", cfg.Scheduler.RunTimeout)
	}

	if cfg.Scheduler.ContinueCooldown != 120*time.Second {
		t.Errorf("expected continue cooldown 120s, got %v", cfg.Scheduler.ContinueCooldown)
	}

	if cfg.Scheduler.BlockedCooldown != 60*time.Second {
		t.Errorf("expected blocked cooldown 60s, got %v", cfg.Scheduler.BlockedCooldown)
	}

	if cfg.Scheduler.ExternalBlockedCooldown != time.Hour {
		t.Errorf("expected external blocked cooldown 1h, got %v", cfg.Scheduler.ExternalBlockedCooldown)
	}

	if cfg.Scheduler.RateLimitCooldown != time.Hour {
		t.Errorf("expected rate limit cooldown 1h, got %v", cfg.Scheduler.RateLimitCooldown)
	}

	if cfg.Scheduler.StallThreshold != 20*time.Second {
		t.Errorf("expected stall threshold 20s, got %v", cfg.Scheduler.StallThreshold)
	}

	if cfg.Supervisor.Name != "jarvis" {
		t.Errorf("expected supervisor 'jarvis', got %q", cfg.Supervisor.Name)
	}

	if cfg.Intervention.Window != 24*time.Hour {
		t.Errorf("expected intervention window 24h, got %v", cfg.Intervention.Window)
	}

	if cfg.Paths.DataDir == "" {
		t.Error("expected a default data dir")
	}

	if cfg.Paths.ReportsDir == "" {
		t.Error("expected a default reports dir")
	}
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `gateway:
  url: wss://gw.example.net/rpc
  token: tok-abc123
anthropic:
  model: claude-sonnet-4-20250514
paths:
  data_dir: /var/lib/jarvis
scheduler:
  tick_interval: 2s
  run_timeout: 90s
supervisor:
  name: overseer
intervention:
  window: 6h
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath() error: %v", err)
	}

	if cfg.Gateway.URL != "wss://gw.example.net/rpc" {
		t.Errorf("gateway url = %q", cfg.Gateway.URL)
	}
	if cfg.Gateway.Token != "tok-abc123" {
		t.Errorf("gateway token = %q", cfg.Gateway.Token)
	}
	if cfg.Anthropic.Model != "claude-sonnet-4-20250514" {
		t.Errorf("model = %q", cfg.Anthropic.Model)
	}
	if cfg.Scheduler.TickInterval != 2*time.Second {
		t.Errorf("tick interval = %v, want 2s", cfg.Scheduler.TickInterval)
	}
	if cfg.Scheduler.RunTimeout != 90*time.Second {
		t.Errorf("run timeout = %v, want 90s", cfg.Scheduler.RunTimeout)
	}
	if cfg.Supervisor.Name != "overseer" {
		t.Errorf("supervisor = %q, want overseer", cfg.Supervisor.Name)
	}
	if cfg.Intervention.Window != 6*time.Hour {
		t.Errorf("intervention window = %v, want 6h", cfg.Intervention.Window)
	}

	// Unset values keep their defaults.
	if cfg.Scheduler.ContinueCooldown != 120*time.Second {
		t.Errorf("continue cooldown = %v, want default 120s", cfg.Scheduler.ContinueCooldown)
	}

	// Derived paths follow the configured data dir.
	if cfg.Paths.DataDir != "/var/lib/jarvis" {
		t.Errorf("data dir = %q", cfg.Paths.DataDir)
	}
	if cfg.Paths.ReportsDir != filepath.Join("/var/lib/jarvis", "reports") {
		t.Errorf("reports dir = %q", cfg.Paths.ReportsDir)
	}
	if cfg.Paths.HistoryDB != filepath.Join("/var/lib/jarvis", "history.db") {
		t.Errorf("history db = %q", cfg.Paths.HistoryDB)
	}
}

func TestLoadFromPath_MissingFile(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadRoster(t *testing.T) {
	tmpDir := t.TempDir()
	rosterPath := filepath.Join(tmpDir, "agents.yaml")

	content := `agents:
  - name: coder
    thinking: true
    notes: backend work
  - name: reviewer
  - name: ""
`
	if err := os.WriteFile(rosterPath, []byte(content), 0644); err != nil {
		t.Fatalf("write roster: %v", err)
	}

	roster, err := LoadRoster(rosterPath)
	if err != nil {
		t.Fatalf("LoadRoster() error: %v", err)
	}

	if !roster.Has("coder") || !roster.Has("reviewer") {
		t.Error("expected coder and reviewer in roster")
	}
	if roster.Has("") {
		t.Error("nameless roster entry should be skipped")
	}
	if !roster.Thinking("coder") {
		t.Error("coder should have thinking enabled")
	}
	if roster.Thinking("reviewer") {
		t.Error("reviewer should not have thinking enabled")
	}

	agents := roster.Agents()
	if len(agents) != 2 {
		t.Fatalf("Agents() returned %d, want 2", len(agents))
	}
	if agents[0].Name != "coder" || agents[1].Name != "reviewer" {
		t.Errorf("Agents() not sorted by name: %v", agents)
	}
}

func TestLoadRoster_MissingFileIsEmpty(t *testing.T) {
	roster, err := LoadRoster(filepath.Join(t.TempDir(), "agents.yaml"))
	if err != nil {
		t.Fatalf("LoadRoster() error for missing file: %v", err)
	}
	if len(roster.Agents()) != 0 {
		t.Errorf("expected empty roster, got %v", roster.Agents())
	}
}

func TestLoadRoster_BadYAML(t *testing.T) {
	tmpDir := t.TempDir()
	rosterPath := filepath.Join(tmpDir, "agents.yaml")
	if err := os.WriteFile(rosterPath, []byte(":\tnot yaml"), 0644); err != nil {
		t.Fatalf("write roster: %v", err)
	}

	if _, err := LoadRoster(rosterPath); err == nil {
		t.Error("expected parse error for malformed roster")
	}
}
