// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Conversions into domain types live next to the fields they read.
// - External errors are wrapped with this package's sentinel kinds.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fres-sudo/neuravia/internal/domain/game"
	"github.com/fres-sudo/neuravia/internal/domain/model"
	"github.com/fres-sudo/neuravia/internal/domain/scoring"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// MetricsEnabled exposes /metrics when true.
	MetricsEnabled bool `koanf:"metrics_enabled"`

	// MetricsRefreshMS is how often sampled gauges (memory, goroutines,
	// ledger size) are refreshed.
	MetricsRefreshMS int `koanf:"metrics_refresh_ms"`

	// QueueSize bounds the in-memory submission queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of ledger workers. One keeps per-patient
	// submissions in order.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the submission deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	Database DatabaseConfig `koanf:"database"`

	// Weights overrides the default weight per activity type.
	Weights map[string]float64 `koanf:"weights"`

	// WeightPolicy governs caller supplied weights: clamp, reject or passthrough.
	WeightPolicy string `koanf:"weight_policy"`

	// Difficulty holds the round settings per difficulty level.
	Difficulty DifficultyTable `koanf:"difficulty"`

	Session    SessionConfig    `koanf:"session"`
	Completion CompletionConfig `koanf:"completion"`
	Classifier ClassifierConfig `koanf:"classifier"`

	// EmojiCacheSize bounds the profession emoji cache.
	EmojiCacheSize int `koanf:"emoji_cache_size"`
}

// DatabaseConfig selects the ledger backend.
type DatabaseConfig struct {
	Driver string `koanf:"driver"` // memory, sqlite or pgx
	DSN    string `koanf:"dsn"`
}

// DifficultyTable is the configurable difficulty table.
type DifficultyTable struct {
	Mild     DifficultyConfig `koanf:"mild"`
	Moderate DifficultyConfig `koanf:"moderate"`
	Severe   DifficultyConfig `koanf:"severe"`
}

// DifficultyConfig is one row of the difficulty table.
type DifficultyConfig struct {
	TimerSeconds int `koanf:"timer_seconds"`
	ItemCount    int `koanf:"item_count"`
}

// SessionConfig tunes hosted game sessions.
type SessionConfig struct {
	TickMS               int `koanf:"tick_ms"`
	ResponseTimeoutTicks int `koanf:"response_timeout_ticks"`
	MaxLive              int `koanf:"max_live"`
}

// CompletionConfig configures the OpenAI-compatible completion client.
// An empty BaseURL disables it and notes adjustments fall back.
type CompletionConfig struct {
	BaseURL       string  `koanf:"base_url"`
	APIKey        string  `koanf:"api_key"`
	Model         string  `koanf:"model"`
	TimeoutMS     int     `koanf:"timeout_ms"`
	RatePerSecond float64 `koanf:"rate_per_second"`
	Burst         int     `koanf:"burst"`
}

// ClassifierConfig configures the MRI inference client.
type ClassifierConfig struct {
	URL       string `koanf:"url"`
	TimeoutMS int    `koanf:"timeout_ms"`
}

// New creates a Config populated with defaults.
func New() *Config {
	table := game.DefaultSettings()
	row := func(d game.Difficulty) DifficultyConfig {
		s := table.Lookup(d)
		return DifficultyConfig{TimerSeconds: s.TimerDuration, ItemCount: s.ItemCount}
	}

	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Addr:             ":9080",
		MetricsEnabled:   true,
		MetricsRefreshMS: 10_000,
		QueueSize:        1024,
		WorkerCount:      1,
		DedupeSize:       50_000,
		Database: DatabaseConfig{
			Driver: "memory",
		},
		Weights: map[string]float64{
			string(model.ActivityInitialAssessment): scoring.WeightInitialAssessment,
			string(model.ActivityMRIUpload):         scoring.WeightMRIUpload,
			string(model.ActivityWeeklyForm):        scoring.WeightWeeklyForm,
			string(model.ActivityGamePlayed):        scoring.WeightGamePlayed,
		},
		WeightPolicy: string(scoring.WeightPolicyClamp),
		Difficulty: DifficultyTable{
			Mild:     row(game.DifficultyMild),
			Moderate: row(game.DifficultyModerate),
			Severe:   row(game.DifficultySevere),
		},
		Session: SessionConfig{
			TickMS:               1000,
			ResponseTimeoutTicks: game.DefaultResponseTimeout,
			MaxLive:              256,
		},
		Completion: CompletionConfig{
			Model:         "gpt-4o-mini",
			TimeoutMS:     20_000,
			RatePerSecond: 2,
			Burst:         4,
		},
		Classifier: ClassifierConfig{
			URL:       "http://localhost:5000/process",
			TimeoutMS: 20_000,
		},
		EmojiCacheSize: 256,
	}
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Addr == "" {
		add("addr must not be empty")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		add("log_format %q is not text or json", c.LogFormat)
	}
	if c.MetricsRefreshMS < 100 {
		add("metrics_refresh_ms must be at least 100")
	}
	if c.QueueSize < 1 {
		add("queue_size must be positive")
	}
	if c.WorkerCount < 1 {
		add("worker_count must be positive")
	}
	switch c.Database.Driver {
	case "memory":
	case "sqlite", "pgx":
		if c.Database.DSN == "" {
			add("database.dsn is required for driver %q", c.Database.Driver)
		}
	default:
		add("database.driver %q is not memory, sqlite or pgx", c.Database.Driver)
	}
	if _, err := scoring.ParseWeightPolicy(c.WeightPolicy); err != nil {
		add("weight_policy: %v", err)
	}
	if _, err := c.ActivityWeights(); err != nil {
		add("weights: %v", err)
	}
	if _, err := c.SettingsTable(); err != nil {
		add("difficulty: %v", err)
	}
	if c.Session.TickMS < 10 {
		add("session.tick_ms must be at least 10")
	}
	if c.Session.ResponseTimeoutTicks < 1 {
		add("session.response_timeout_ticks must be positive")
	}
	if c.Session.MaxLive < 1 {
		add("session.max_live must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// ActivityWeights converts Weights into activity keyed weights in [0, 1].
func (c *Config) ActivityWeights() (map[model.ActivityType]float64, error) {
	out := make(map[model.ActivityType]float64, len(c.Weights))
	for k, w := range c.Weights {
		a, err := model.ParseActivityType(k)
		if err != nil {
			return nil, err
		}
		if w < 0 || w > 1 {
			return nil, fmt.Errorf("weight %v for %s outside [0, 1]", w, a)
		}
		out[a] = w
	}
	return out, nil
}

// SettingsTable converts Difficulty into the game settings table.
func (c *Config) SettingsTable() (game.SettingsTable, error) {
	table := game.SettingsTable{}
	for level, d := range map[game.Difficulty]DifficultyConfig{
		game.DifficultyMild:     c.Difficulty.Mild,
		game.DifficultyModerate: c.Difficulty.Moderate,
		game.DifficultySevere:   c.Difficulty.Severe,
	} {
		s := game.Settings{TimerDuration: d.TimerSeconds, ItemCount: d.ItemCount}
		if !s.Resolved() {
			return nil, fmt.Errorf("%s needs positive timer_seconds and item_count", level)
		}
		table[level] = s
	}
	return table, nil
}

// TickInterval is the period of a hosted session's clock.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Session.TickMS) * time.Millisecond
}

// Millis converts a millisecond setting into a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
