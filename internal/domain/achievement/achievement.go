// Package achievement derives achievement tiers from users' point totals.
// Nothing here is persisted: earned status is a pure function of the total.
package achievement

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/pointsboard/internal/adapters/repository"
	"github.com/okian/pointsboard/internal/domain/model"
	"github.com/okian/pointsboard/internal/domain/rules"
	"github.com/okian/pointsboard/pkg/logger"
)

const defaultMaxLimit = 100

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithTiers replaces the default tiers.
func WithTiers(t *rules.Tiers) Option {
	return func(e *Engine) {
		if t != nil {
			e.tiers = t
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

// WithMaxLimit caps GetAchievementLeaderboard's limit.
func WithMaxLimit(limit int) Option {
	return func(e *Engine) {
		if limit > 0 {
			e.maxLimit = limit
		}
	}
}

// Engine answers achievement queries.
type Engine struct {
	store    repository.Store
	tiers    *rules.Tiers
	log      logger.Logger
	maxLimit int
}

// New creates an Engine over store.
func New(store repository.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		tiers:    rules.DefaultTiers(),
		log:      logger.Discard(),
		maxLimit: defaultMaxLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ratio is points/required clamped to [0, 1].
func ratio(points, required int64) float64 {
	if required <= 0 {
		return 1
	}
	return math.Max(0, math.Min(1, float64(points)/float64(required)))
}

// Progress lists every tier with the progress a total of points represents.
func Progress(tiers *rules.Tiers, points int64) []model.AchievementProgress {
	all := tiers.All()
	out := make([]model.AchievementProgress, len(all))
	for i, a := range all {
		out[i] = model.AchievementProgress{
			Achievement: a,
			Progress:    ratio(points, a.PointsRequired),
			IsEarned:    points >= a.PointsRequired,
		}
	}
	return out
}

// MilestonesFor summarises the earned tiers and the next one at points.
func MilestonesFor(tiers *rules.Tiers, points int64) model.Milestones {
	m := model.Milestones{
		CurrentPoints:      points,
		EarnedAchievements: tiers.Earned(points),
		ProgressToNext:     1,
	}
	if next, ok := tiers.Next(points); ok {
		m.NextAchievement = &next
		m.PointsToNext = next.PointsRequired - points
		m.ProgressToNext = ratio(points, next.PointsRequired)
	}
	return m
}

func (e *Engine) user(ctx context.Context, userID string) (model.User, error) {
	u, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return model.User{}, repository.AsDomainError(err)
	}
	return u, nil
}

// GetUserAchievementProgress returns progress toward every tier.
func (e *Engine) GetUserAchievementProgress(ctx context.Context, userID string) ([]model.AchievementProgress, error) {
	u, err := e.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Progress(e.tiers, u.TotalPoints), nil
}

// GetUserMilestones returns the user's earned tiers and the next target.
func (e *Engine) GetUserMilestones(ctx context.Context, userID string) (model.Milestones, error) {
	u, err := e.user(ctx, userID)
	if err != nil {
		return model.Milestones{}, err
	}
	return MilestonesFor(e.tiers, u.TotalPoints), nil
}

// GetAchievement looks up a tier definition.
func (e *Engine) GetAchievement(id string) (model.Achievement, error) {
	return e.tiers.Get(id)
}

// Achievements lists every tier in ascending order.
func (e *Engine) Achievements() []model.Achievement {
	return e.tiers.All()
}

// GetAchievementLeaderboard ranks users holding at least one tier by the
// number of tiers held, ties by user id.
func (e *Engine) GetAchievementLeaderboard(ctx context.Context, limit int) ([]model.AchievementRanking, error) {
	if limit < 1 || limit > e.maxLimit {
		return nil, fmt.Errorf("%w: %d (1..%d)", model.ErrInvalidLimit, limit, e.maxLimit)
	}
	counts, err := e.store.TopByThresholds(ctx, e.tiers.Thresholds(), limit)
	if err != nil {
		return nil, repository.AsDomainError(err)
	}
	ids := make([]string, 0, len(counts))
	for _, c := range counts {
		if c.Count == 0 {
			break
		}
		ids = append(ids, c.UserID)
	}
	users, err := e.store.GetUsers(ctx, ids)
	if err != nil {
		return nil, repository.AsDomainError(err)
	}
	out := make([]model.AchievementRanking, len(ids))
	for i, id := range ids {
		u, ok := users[id]
		if !ok {
			e.log.Warn(ctx, "ranked user has no profile", logger.String("user_id", id))
			u = model.User{ID: id, TotalPoints: counts[i].TotalPoints}
		}
		out[i] = model.AchievementRanking{
			Rank:             i + 1,
			User:             u,
			AchievementCount: counts[i].Count,
			TotalPoints:      counts[i].TotalPoints,
		}
	}
	return out, nil
}

// GetAchievementStats reports how many users hold each tier.
func (e *Engine) GetAchievementStats(ctx context.Context) ([]model.AchievementStat, error) {
	total, err := e.store.CountUsers(ctx, math.MinInt64)
	if err != nil {
		return nil, repository.AsDomainError(err)
	}
	all := e.tiers.All()
	out := make([]model.AchievementStat, len(all))
	for i, a := range all {
		n, err := e.store.CountUsers(ctx, a.PointsRequired)
		if err != nil {
			return nil, repository.AsDomainError(err)
		}
		pct := 0.0
		if total > 0 {
			pct = math.Round(float64(n)/float64(total)*10000) / 100
		}
		out[i] = model.AchievementStat{Achievement: a, EarnedBy: n, Percentage: pct}
	}
	return out, nil
}
