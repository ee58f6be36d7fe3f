package loadgen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/okian/pointsboard/pkg/logger"
)

const progressEvery = time.Second

// Run executes one load run against cfg.BaseURL and verifies the result.
func Run(ctx context.Context, cfg *Config, log logger.Logger) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	c := newClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting load run",
		logger.String("base_url", cfg.BaseURL),
		logger.Int("users", cfg.Users),
		logger.Int("awards", cfg.Awards),
		logger.Int("workers", cfg.Workers),
		logger.Duration("settle", cfg.Settle))

	if err := c.health(ctx); err != nil {
		return stats, err
	}

	p := generate(cfg)
	stats.ExpectedPoints = p.sum()

	if err := registerUsers(ctx, c, cfg, p, stats, log); err != nil {
		return stats, fmt.Errorf("register users: %w", err)
	}
	if err := submitAwards(ctx, c, cfg, p, stats, log); err != nil {
		return stats, fmt.Errorf("submit awards: %w", err)
	}
	if stats.AwardsRejected > 0 {
		// Rejected awards never reach the ledger; the expected totals no
		// longer hold.
		return stats, fmt.Errorf("%w: %d awards rejected", ErrInconsistent, stats.AwardsRejected)
	}

	settleStart := time.Now()
	if err := awaitTotals(ctx, c, cfg, p, stats, log); err != nil {
		return stats, err
	}
	stats.SettleDuration = time.Since(settleStart)

	board, err := c.global(ctx, cfg.TopN)
	if err != nil {
		return stats, fmt.Errorf("global leaderboard: %w", err)
	}
	stats.BoardEntries = len(board)
	if err := verifyBoard(board, p.expected); err != nil {
		return stats, err
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	logStats(ctx, log, stats)
	return stats, nil
}

func registerUsers(ctx context.Context, c *client, cfg *Config, p plan, stats *Stats, log logger.Logger) error {
	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))
	for _, u := range p.users {
		g.Go(func() error {
			if _, err := c.register(gctx, u); err != nil {
				return fmt.Errorf("user %s: %w", u.ID, err)
			}
			done.Add(1)
			return nil
		})
	}
	err := g.Wait()
	stats.UsersRegistered = int(done.Load())
	log.Info(ctx, "users registered", logger.Int("count", stats.UsersRegistered))
	return err
}

// submitAwards posts every award. Individual failures are counted, not
// fatal; only cancellation stops the run.
func submitAwards(ctx context.Context, c *client, cfg *Config, p plan, stats *Stats, log logger.Logger) error {
	var submitted, accepted, duplicate, rejected, throttled atomic.Int64
	var last atomic.Int64
	last.Store(time.Now().UnixNano())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))
	for _, a := range p.awards {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := c.submit(gctx, a, func() { throttled.Add(1) })
			submitted.Add(1)
			switch {
			case err == nil && res.Duplicate:
				duplicate.Add(1)
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return err
			default:
				rejected.Add(1)
				if cfg.Verbose {
					log.Warn(gctx, "award rejected",
						logger.String("submission_id", a.SubmissionID),
						logger.Int("status", statusOf(err)),
						logger.Error(err))
				}
			}
			if now, prev := time.Now().UnixNano(), last.Load(); now-prev >= int64(progressEvery) && last.CompareAndSwap(prev, now) {
				log.Info(gctx, "submission progress",
					logger.Int64("submitted", submitted.Load()),
					logger.Int("total", len(p.awards)),
					logger.Int64("throttled", throttled.Load()))
			}
			return nil
		})
	}
	err := g.Wait()
	stats.AwardsSubmitted = int(submitted.Load())
	stats.AwardsAccepted = int(accepted.Load())
	stats.AwardsDuplicate = int(duplicate.Load())
	stats.AwardsRejected = int(rejected.Load())
	stats.AwardsThrottled = int(throttled.Load())
	log.Info(ctx, "awards submitted",
		logger.Int("accepted", stats.AwardsAccepted),
		logger.Int("duplicate", stats.AwardsDuplicate),
		logger.Int("rejected", stats.AwardsRejected),
		logger.Int("throttled", stats.AwardsThrottled))
	return err
}

// awaitTotals polls every user's total until all match the plan or
// cfg.Settle elapses.
func awaitTotals(ctx context.Context, c *client, cfg *Config, p plan, stats *Stats, log logger.Logger) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		matched, err := checkTotals(ctx, c, cfg, p)
		stats.TotalsVerified = matched
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		if matched < len(p.users) {
			return struct{}{}, fmt.Errorf("%w: %d/%d users", ErrNotSettled, matched, len(p.users))
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(cfg.Settle),
		backoff.WithNotify(func(err error, d time.Duration) {
			log.Debug(ctx, "waiting for totals", logger.Error(err), logger.Duration("retry_in", d))
		}))
	return err
}

// checkTotals returns how many users currently hold their expected total.
func checkTotals(ctx context.Context, c *client, cfg *Config, p plan) (int, error) {
	var matched atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))
	for _, u := range p.users {
		g.Go(func() error {
			r, err := c.rank(gctx, u.ID)
			if err != nil {
				if statusOf(err) == http.StatusNotFound {
					return nil
				}
				return fmt.Errorf("rank %s: %w", u.ID, err)
			}
			if r.User.TotalPoints == p.expected[u.ID] {
				matched.Add(1)
			}
			return nil
		})
	}
	err := g.Wait()
	return int(matched.Load()), err
}

func logStats(ctx context.Context, log logger.Logger, s *Stats) {
	var perSecond float64
	if s.Duration > 0 {
		perSecond = float64(s.AwardsSubmitted) / s.Duration.Seconds()
	}
	log.Info(ctx, "load run completed",
		logger.Int("users", s.UsersRegistered),
		logger.Int("submitted", s.AwardsSubmitted),
		logger.Int("accepted", s.AwardsAccepted),
		logger.Int("duplicate", s.AwardsDuplicate),
		logger.Int("throttled", s.AwardsThrottled),
		logger.Int("totals_verified", s.TotalsVerified),
		logger.Int("board_entries", s.BoardEntries),
		logger.Int64("expected_points", s.ExpectedPoints),
		logger.Duration("settle", s.SettleDuration),
		logger.Duration("duration", s.Duration),
		logger.Float64("awards_per_second", perSecond))
}
