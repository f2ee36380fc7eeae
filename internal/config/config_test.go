package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_WritesDefaultsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Defaults.Model != "sonnet-4" {
		t.Errorf("default model = %s", cfg.Defaults.Model)
	}
	if time.Duration(cfg.Defaults.HeartbeatInterval) != 15*time.Minute {
		t.Errorf("default interval = %s", time.Duration(cfg.Defaults.HeartbeatInterval))
	}
	if _, err := os.Stat(path); err != nil {
		t.Error("defaults were not written to disk")
	}

	// The written file must round-trip.
	again, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if again.Defaults.Model != cfg.Defaults.Model || again.TickTimeout != cfg.TickTimeout {
		t.Error("written defaults do not round-trip")
	}
}

func TestLoad_FileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
  "data_dir": "/tmp/vigil-data",
  "tick_timeout": "45s",
  "defaults": {"model": "haiku-3.5", "heartbeat_interval": "1h", "max_context_messages": 20},
  "active_hours": {"start_hour": 8, "end_hour": 22}
}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DataDir != "/tmp/vigil-data" {
		t.Errorf("data_dir = %s", cfg.DataDir)
	}
	if time.Duration(cfg.TickTimeout) != 45*time.Second {
		t.Errorf("tick_timeout = %s", time.Duration(cfg.TickTimeout))
	}
	if cfg.Defaults.Model != "haiku-3.5" {
		t.Errorf("model = %s", cfg.Defaults.Model)
	}
	if time.Duration(cfg.Defaults.HeartbeatInterval) != time.Hour {
		t.Errorf("interval = %s", time.Duration(cfg.Defaults.HeartbeatInterval))
	}
	if cfg.ActiveHours.StartHour != 8 || cfg.ActiveHours.EndHour != 22 {
		t.Errorf("active hours = %+v", cfg.ActiveHours)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	t.Setenv("ANTHROPIC_BASE_URL", "http://localhost:9999")
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Engine.APIKey != "env-key" {
		t.Errorf("api key = %s", cfg.Engine.APIKey)
	}
	if cfg.Engine.BaseURL != "http://localhost:9999" {
		t.Errorf("base url = %s", cfg.Engine.BaseURL)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Errorf("telegram token = %s", cfg.Telegram.Token)
	}
}

func TestLoad_BadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"tick_timeout": "soon"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestInActiveWindow(t *testing.T) {
	at := func(hour int) time.Time {
		return time.Date(2025, 6, 1, hour, 30, 0, 0, time.Local)
	}

	var cfg Config

	// start == end disables the window.
	if !cfg.InActiveWindow(at(3)) {
		t.Error("disabled window should always pass")
	}

	cfg.ActiveHours.StartHour, cfg.ActiveHours.EndHour = 8, 22
	for hour, want := range map[int]bool{7: false, 8: true, 12: true, 21: true, 22: false, 23: false} {
		if got := cfg.InActiveWindow(at(hour)); got != want {
			t.Errorf("8-22 window at %d:30 = %v, want %v", hour, got, want)
		}
	}

	// Wrapping midnight: quiet during the day, active overnight.
	cfg.ActiveHours.StartHour, cfg.ActiveHours.EndHour = 22, 8
	for hour, want := range map[int]bool{21: false, 22: true, 2: true, 7: true, 8: false, 12: false} {
		if got := cfg.InActiveWindow(at(hour)); got != want {
			t.Errorf("22-8 window at %d:30 = %v, want %v", hour, got, want)
		}
	}
}
