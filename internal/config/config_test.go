package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}
	if len(cfg.Scoring.Landmarks) == 0 {
		t.Error("expected default landmarks")
	}
	if cfg.Schedule.Concurrency != 4 {
		t.Errorf("expected concurrency 4, got %d", cfg.Schedule.Concurrency)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
database:
  path: /tmp/gems.db
schedule:
  score_interval: 2h
scoring:
  landmarks: ["vieux port"]
alerts:
  min_score: 90
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Database.Path != "/tmp/gems.db" {
		t.Errorf("expected db path override, got %q", cfg.Database.Path)
	}
	if got := cfg.Schedule.ParseScoreInterval(); got != 2*time.Hour {
		t.Errorf("expected 2h score interval, got %s", got)
	}
	if len(cfg.Scoring.Landmarks) != 1 || cfg.Scoring.Landmarks[0] != "vieux port" {
		t.Errorf("expected landmarks to be replaced, got %v", cfg.Scoring.Landmarks)
	}
	if cfg.Alerts.MinScore != 90 {
		t.Errorf("expected min score 90, got %v", cfg.Alerts.MinScore)
	}
	if cfg.Alerts.MinLocalMentions != 1 {
		t.Errorf("expected default local mention floor 1, got %d", cfg.Alerts.MinLocalMentions)
	}
	// Unspecified sections keep defaults.
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port, got %d", cfg.Server.Port)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GEMRADAR_DB_PATH", "/data/env.db")
	t.Setenv("REDDIT_CLIENT_ID", "id")
	t.Setenv("REDDIT_CLIENT_SECRET", "secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Path != "/data/env.db" {
		t.Errorf("expected env db path, got %q", cfg.Database.Path)
	}
	if !cfg.Reddit.Enabled || cfg.Reddit.ClientSecret != "secret" {
		t.Error("expected reddit to be enabled from env")
	}
}

func TestParseIntervalFallbacks(t *testing.T) {
	s := ScheduleConfig{CollectInterval: "bogus", ScoreInterval: ""}
	if s.ParseCollectInterval() != time.Hour {
		t.Errorf("expected 1h fallback, got %s", s.ParseCollectInterval())
	}
	if s.ParseScoreInterval() != 6*time.Hour {
		t.Errorf("expected 6h fallback, got %s", s.ParseScoreInterval())
	}
	if (BlogsConfig{}).ParseMaxAge() != 7*24*time.Hour {
		t.Error("expected 7 day max age fallback")
	}
}
