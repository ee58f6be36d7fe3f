package worker

import (
	"time"

	"github.com/okian/pointsboard/internal/domain/model"
	"github.com/okian/pointsboard/pkg/logger"
)

// Option configures a Pool.
type Option func(*Pool)

// WithWorkers sets how many goroutines drain the queue.
func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithLogger sets a custom logger for the pool.
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.log = l
		}
	}
}

// WithMaxAttempts bounds how many times one award is tried.
func WithMaxAttempts(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithBackoff sets the first and the largest wait between attempts.
func WithBackoff(initial, maxInterval time.Duration) Option {
	return func(p *Pool) {
		if initial > 0 {
			p.initialInterval = initial
		}
		if maxInterval > 0 {
			p.maxInterval = maxInterval
		}
	}
}

// WithPermanent marks errors that retrying cannot fix, such as an unknown
// action or a missing user.
func WithPermanent(fn func(error) bool) Option {
	return func(p *Pool) {
		if fn != nil {
			p.permanent = fn
		}
	}
}

// WithOnDrop registers a callback for awards given up on.
func WithOnDrop(fn func(model.AwardRequest, error)) Option {
	return func(p *Pool) {
		p.onDrop = fn
	}
}
