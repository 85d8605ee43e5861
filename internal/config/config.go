package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Log        LogConfig        `yaml:"log"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Reddit     RedditConfig     `yaml:"reddit"`
	Blogs      BlogsConfig      `yaml:"blogs"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Server     ServerConfig     `yaml:"server"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig configures the zerolog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// ScheduleConfig configures collection and scoring intervals.
type ScheduleConfig struct {
	CollectInterval string `yaml:"collect_interval"`
	ScoreInterval   string `yaml:"score_interval"`
	// Concurrency bounds how many cities are scored at once.
	Concurrency int `yaml:"concurrency"`
}

// ParseCollectInterval returns the collect interval as time.Duration.
func (s ScheduleConfig) ParseCollectInterval() time.Duration {
	d, err := time.ParseDuration(s.CollectInterval)
	if err != nil {
		return time.Hour
	}
	return d
}

// ParseScoreInterval returns the scoring interval as time.Duration.
func (s ScheduleConfig) ParseScoreInterval() time.Duration {
	d, err := time.ParseDuration(s.ScoreInterval)
	if err != nil {
		return 6 * time.Hour
	}
	return d
}

// RedditConfig for the Reddit collector. Subreddits are set per city.
type RedditConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ClientID     string  `yaml:"client_id"`
	ClientSecret string  `yaml:"client_secret"`
	Limit        int     `yaml:"limit"`
	RatePerSec   float64 `yaml:"rate_per_sec"`
}

// BlogsConfig for the RSS and article page collectors. Feeds are set per city.
type BlogsConfig struct {
	Enabled bool   `yaml:"enabled"`
	MaxAge  string `yaml:"max_age"`
}

// ParseMaxAge returns how far back feed entries are accepted.
func (b BlogsConfig) ParseMaxAge() time.Duration {
	d, err := time.ParseDuration(b.MaxAge)
	if err != nil {
		return 7 * 24 * time.Hour
	}
	return d
}

// ClassifierConfig extends the built-in mention heuristics.
type ClassifierConfig struct {
	LocalIndicators []string `yaml:"local_indicators"`
	Stopwords       []string `yaml:"stopwords"`
}

// ScoringConfig configures the gem scorer.
type ScoringConfig struct {
	Landmarks []string `yaml:"landmarks"`
}

// AlertsConfig configures alert destinations.
type AlertsConfig struct {
	MinScore         float64       `yaml:"min_score"`
	MinLocalMentions int           `yaml:"min_local_mentions"`
	Slack            SlackConfig   `yaml:"slack"`
	Discord          DiscordConfig `yaml:"discord"`
	Webhook          WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook alerts.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./gemradar.db"},
		Log:      LogConfig{Level: "info", Format: "console"},
		Schedule: ScheduleConfig{
			CollectInterval: "1h",
			ScoreInterval:   "6h",
			Concurrency:     4,
		},
		Reddit: RedditConfig{
			Enabled:    false,
			Limit:      50,
			RatePerSec: 1,
		},
		Blogs: BlogsConfig{
			Enabled: true,
			MaxAge:  "168h",
		},
		Scoring: ScoringConfig{
			Landmarks: []string{
				"tour eiffel", "champs-élysées", "notre-dame",
				"louvre", "sacré-cœur", "mont-saint-michel",
			},
		},
		Alerts: AlertsConfig{MinScore: 80, MinLocalMentions: 1},
		Server: ServerConfig{Port: 8080},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GEMRADAR_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("GEMRADAR_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("REDDIT_CLIENT_ID"); v != "" {
		cfg.Reddit.ClientID = v
		cfg.Reddit.Enabled = true
	}
	if v := os.Getenv("REDDIT_CLIENT_SECRET"); v != "" {
		cfg.Reddit.ClientSecret = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
}
