// Package config defines service configuration and how it is loaded.
package config

import (
	"fmt"
	"time"

	"github.com/okian/pointsboard/internal/domain/timeframe"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DatabasePath is the SQLite file holding the ledger.
	DatabasePath string `koanf:"database_path"`

	// RedisAddr selects the Redis cache. Empty keeps an in-process cache.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	CacheTTLSeconds int `koanf:"cache_ttl_seconds"`
	// CacheDepth is the minimum number of members written through per
	// leaderboard scope.
	CacheDepth int `koanf:"cache_depth"`

	// MaxLeaderboardLimit caps every limit parameter.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	ReadTimeoutMS  int `koanf:"read_timeout_ms"`
	WriteTimeoutMS int `koanf:"write_timeout_ms"`

	// WeekStart and Timezone fix calendar boundaries.
	WeekStart string `koanf:"week_start"`
	Timezone  string `koanf:"timezone"`

	// QueueSize bounds the award outbox.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of award workers.
	WorkerCount int `koanf:"worker_count"`
	// AwardMaxAttempts bounds retries of one outbox award.
	AwardMaxAttempts int `koanf:"award_max_attempts"`
	// DedupeSize sets how many submission ids are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// PointRules overrides point values of known actions.
	PointRules map[string]int64 `koanf:"point_rules"`

	// OtelEndpoint is an OTLP/HTTP endpoint. Empty disables tracing.
	OtelEndpoint string `koanf:"otel_endpoint"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		DatabasePath:        "points.db",
		CacheTTLSeconds:     300,
		CacheDepth:          100,
		MaxLeaderboardLimit: 100,
		ReadTimeoutMS:       2000,
		WriteTimeoutMS:      5000,
		WeekStart:           "monday",
		Timezone:            "UTC",
		QueueSize:           10_000,
		WorkerCount:         4,
		AwardMaxAttempts:    5,
		DedupeSize:          100_000,
		PointRules:          map[string]int64{},
	}
}

// CacheTTL is CacheTTLSeconds as a duration.
func (c *Config) CacheTTL() time.Duration { return time.Duration(c.CacheTTLSeconds) * time.Second }

// ReadTimeout bounds leaderboard and achievement reads.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMS) * time.Millisecond
}

// WriteTimeout bounds one atomic award unit.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMS) * time.Millisecond
}

// Location loads Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %w", ErrInvalidConfig, c.Timezone, err)
	}
	return loc, nil
}

// Weekday parses WeekStart.
func (c *Config) Weekday() (time.Weekday, error) {
	d, err := timeframe.ParseWeekday(c.WeekStart)
	if err != nil {
		return time.Monday, fmt.Errorf("%w: week_start: %w", ErrInvalidConfig, err)
	}
	return d, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("%w: database_path must not be empty", ErrInvalidConfig)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	positive := []struct {
		name  string
		value int
	}{
		{"cache_ttl_seconds", c.CacheTTLSeconds},
		{"cache_depth", c.CacheDepth},
		{"max_leaderboard_limit", c.MaxLeaderboardLimit},
		{"read_timeout_ms", c.ReadTimeoutMS},
		{"write_timeout_ms", c.WriteTimeoutMS},
		{"queue_size", c.QueueSize},
		{"worker_count", c.WorkerCount},
		{"award_max_attempts", c.AwardMaxAttempts},
		{"dedupe_size", c.DedupeSize},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfig, p.name, p.value)
		}
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("%w: redis_db must not be negative", ErrInvalidConfig)
	}
	for key, points := range c.PointRules {
		if points <= 0 {
			return fmt.Errorf("%w: point_rules.%s must be positive", ErrInvalidConfig, key)
		}
	}
	if _, err := c.Weekday(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
