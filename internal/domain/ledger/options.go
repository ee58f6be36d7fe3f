package ledger

import (
	"time"

	"github.com/okian/pointsboard/internal/domain/rules"
	"github.com/okian/pointsboard/internal/domain/timeframe"
	"github.com/okian/pointsboard/pkg/logger"
)

// Option applies a configuration option to the Ledger.
type Option func(*Ledger)

// WithRules sets the rule table used by AwardForAction.
func WithRules(t *rules.Table) Option {
	return func(l *Ledger) {
		if t != nil {
			l.rules = t
		}
	}
}

// WithCalendar sets the calendar used for timestamps and day buckets.
func WithCalendar(c *timeframe.Calendar) Option {
	return func(l *Ledger) {
		if c != nil {
			l.cal = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(l *Ledger) {
		if log != nil {
			l.log = log
		}
	}
}

// WithWriteTimeout bounds one atomic award unit.
func WithWriteTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.writeTimeout = d
		}
	}
}

// WithIDGenerator overrides transaction id generation.
func WithIDGenerator(gen func() string) Option {
	return func(l *Ledger) {
		if gen != nil {
			l.newID = gen
		}
	}
}
