package leaderboard

import (
	"time"

	"github.com/okian/pointsboard/internal/adapters/cache"
	"github.com/okian/pointsboard/internal/domain/timeframe"
	"github.com/okian/pointsboard/pkg/logger"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithCache enables cache-aside reads. Without it every read hits the store.
func WithCache(c cache.Cache) Option {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithCalendar sets the calendar used to compute timeframe windows.
func WithCalendar(c *timeframe.Calendar) Option {
	return func(e *Engine) {
		if c != nil {
			e.cal = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithTTL sets the lifetime of cached leaderboards and profiles.
func WithTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

// WithDepth sets the minimum number of members written through per scope,
// so later reads with a smaller limit are served from the cache.
func WithDepth(depth int) Option {
	return func(e *Engine) {
		if depth > 0 {
			e.depth = depth
		}
	}
}

// WithMaxLimit caps the limit accepted by read operations.
func WithMaxLimit(limit int) Option {
	return func(e *Engine) {
		if limit > 0 {
			e.maxLimit = limit
		}
	}
}
