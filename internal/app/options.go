package service

import (
	"time"

	"github.com/okian/pointsboard/internal/adapters/cache"
	"github.com/okian/pointsboard/internal/domain/rules"
	"github.com/okian/pointsboard/internal/domain/timeframe"
	"github.com/okian/pointsboard/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithCache puts a cache in front of the leaderboard reads.
func WithCache(c cache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithWorkerCount sets the number of award workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the award outbox capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many submission ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithMaxAttempts bounds how often a queued award is tried.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithRetryBackoff sets the first and the largest wait between attempts.
func WithRetryBackoff(initial, maxInterval time.Duration) Option {
	return func(s *Service) {
		s.retryInitial = initial
		s.retryMax = maxInterval
	}
}

// WithReadTimeout bounds leaderboard and achievement reads.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.readTimeout = d
		}
	}
}

// WithWriteTimeout bounds one atomic award unit.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// WithCacheTTL sets the TTL of cached leaderboards and profiles.
func WithCacheTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.cacheTTL = d
		}
	}
}

// WithCacheDepth sets how many members are written through per scope.
func WithCacheDepth(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.cacheDepth = n
		}
	}
}

// WithMaxLimit caps every limit parameter.
func WithMaxLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithCalendar fixes the zone and week start of windowed reads.
func WithCalendar(c *timeframe.Calendar) Option {
	return func(s *Service) {
		if c != nil {
			s.calendar = c
		}
	}
}

// WithRules replaces the rule table.
func WithRules(t *rules.Table) Option {
	return func(s *Service) {
		if t != nil {
			s.rules = t
		}
	}
}

// WithTiers replaces the achievement tiers.
func WithTiers(t *rules.Tiers) Option {
	return func(s *Service) {
		if t != nil {
			s.tiers = t
		}
	}
}
