// Package timeframe computes calendar windows for windowed leaderboards and
// daily idempotency buckets.
package timeframe

import (
	"fmt"
	"strings"
	"time"

	"github.com/okian/pointsboard/internal/domain/model"
)

// Clock returns the current time. Swapped in tests.
type Clock func() time.Time

// Calendar fixes the zone and first weekday used for window boundaries.
type Calendar struct {
	loc       *time.Location
	weekStart time.Weekday
	now       Clock
}

// Option applies a configuration option to the Calendar.
type Option func(*Calendar)

// WithLocation sets the zone calendar days are computed in.
func WithLocation(loc *time.Location) Option {
	return func(c *Calendar) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithWeekStart sets the first day of a week.
func WithWeekStart(day time.Weekday) Option {
	return func(c *Calendar) { c.weekStart = day }
}

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(c *Calendar) {
		if clock != nil {
			c.now = clock
		}
	}
}

// New returns a Calendar defaulting to UTC with Monday-start weeks.
func New(opts ...Option) *Calendar {
	c := &Calendar{loc: time.UTC, weekStart: time.Monday, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the current time in the calendar's zone.
func (c *Calendar) Now() time.Time { return c.now().In(c.loc) }

// StartOfDay truncates t to local midnight.
func (c *Calendar) StartOfDay(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}

// StartOfWeek returns local midnight of the most recent week-start day.
func (c *Calendar) StartOfWeek(t time.Time) time.Time {
	day := c.StartOfDay(t)
	back := (int(day.Weekday()) - int(c.weekStart) + 7) % 7
	return day.AddDate(0, 0, -back)
}

// StartOfMonth returns local midnight of the first of t's month.
func (c *Calendar) StartOfMonth(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, c.loc)
}

// Since returns the inclusive lower bound for tf at the current time, and
// false for the unbounded "all" timeframe.
func (c *Calendar) Since(tf model.Timeframe) (time.Time, bool, error) {
	now := c.Now()
	switch tf {
	case model.TimeframeAll, "":
		return time.Time{}, false, nil
	case model.TimeframeDay:
		return c.StartOfDay(now), true, nil
	case model.TimeframeWeek:
		return c.StartOfWeek(now), true, nil
	case model.TimeframeMonth:
		return c.StartOfMonth(now), true, nil
	default:
		return time.Time{}, false, fmt.Errorf("%w: %q", model.ErrInvalidTimeframe, tf)
	}
}

// DayBucket names the current calendar day, e.g. "2026-10-16".
func (c *Calendar) DayBucket() string {
	return c.StartOfDay(c.Now()).Format(time.DateOnly)
}

// ParseWeekday accepts full or three-letter English day names.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}
