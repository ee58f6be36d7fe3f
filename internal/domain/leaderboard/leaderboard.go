// Package leaderboard serves ranked views over the points ledger, using the
// cache as a best-effort accelerator in front of the store.
package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/pointsboard/internal/adapters/cache"
	"github.com/okian/pointsboard/internal/adapters/repository"
	"github.com/okian/pointsboard/internal/domain/ledger"
	"github.com/okian/pointsboard/internal/domain/model"
	"github.com/okian/pointsboard/internal/domain/timeframe"
	"github.com/okian/pointsboard/pkg/logger"
	"github.com/okian/pointsboard/pkg/metrics"
)

const (
	defaultTTL      = 5 * time.Minute
	defaultDepth    = 100
	defaultMaxLimit = 100

	scopeCommunity = "community"
	scopeAll       = "all"
	scopeGlobal    = "global"
	scopeProfile   = "profile"
)

var tracer = otel.Tracer("github.com/okian/pointsboard/internal/domain/leaderboard")

// Engine computes community and global rankings.
type Engine struct {
	store    repository.Store
	ledger   *ledger.Ledger
	cache    cache.Cache
	cal      *timeframe.Calendar
	log      logger.Logger
	ttl      time.Duration
	depth    int
	maxLimit int
}

// New creates an Engine. The ledger is used by BatchUpdate.
func New(store repository.Store, l *ledger.Ledger, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		ledger:   l,
		cal:      timeframe.New(),
		log:      logger.Discard(),
		ttl:      defaultTTL,
		depth:    defaultDepth,
		maxLimit: defaultMaxLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) checkLimit(limit int) error {
	if limit < 1 || limit > e.maxLimit {
		return fmt.Errorf("%w: %d (1..%d)", model.ErrInvalidLimit, limit, e.maxLimit)
	}
	return nil
}

// GetCommunityLeaderboard ranks users by points earned in communityID (every
// community when empty) within the timeframe window. Ties are broken by user
// id ascending. Entry.Points is the windowed sum; User.TotalPoints stays the
// all-time total.
func (e *Engine) GetCommunityLeaderboard(ctx context.Context, communityID string, tf model.Timeframe, limit int) ([]model.LeaderboardEntry, error) {
	if tf == "" {
		tf = model.TimeframeAll
	}
	if err := e.checkLimit(limit); err != nil {
		return nil, err
	}
	since, bounded, err := e.cal.Since(tf)
	if err != nil {
		return nil, err
	}
	window := string(model.TimeframeAll)
	if bounded {
		window = since.Format(time.DateOnly)
	}
	scope := scopeCommunity
	if communityID == "" {
		scope = scopeAll
	}
	ctx, span := tracer.Start(ctx, "leaderboard.community", trace.WithAttributes(
		attribute.String("community.id", communityID),
		attribute.String("timeframe", string(tf)),
		attribute.Int("limit", limit),
	))
	defer span.End()

	key := cache.LeaderboardKey(communityID, string(tf), window)
	return e.ranked(ctx, scope, key, limit, func(ctx context.Context, n int) ([]model.UserPoints, error) {
		return e.store.SumByUser(ctx, repository.SumFilter{CommunityID: communityID, Since: since, Limit: n})
	})
}

// GetGlobalLeaderboard ranks users by their all-time total.
func (e *Engine) GetGlobalLeaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	if err := e.checkLimit(limit); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "leaderboard.global", trace.WithAttributes(attribute.Int("limit", limit)))
	defer span.End()

	return e.ranked(ctx, scopeGlobal, cache.GlobalLeaderboardKey, limit, e.store.TopTotals)
}

// ranked is the cache-aside read path shared by both boards: serve from the
// cached set when it can answer, otherwise compute from the store and write
// the result through.
func (e *Engine) ranked(
	ctx context.Context,
	scope, key string,
	limit int,
	compute func(ctx context.Context, n int) ([]model.UserPoints, error),
) ([]model.LeaderboardEntry, error) {
	s := e.session(scope)
	points, hit := s.readRange(ctx, key, limit)
	trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("cache.hit", hit))
	if !hit {
		depth := max(limit, e.depth)
		start := time.Now()
		computed, err := compute(ctx, depth)
		if err != nil {
			return nil, repository.AsDomainError(err)
		}
		metrics.RecordLeaderboardCompute(scope, float64(time.Since(start).Milliseconds()))
		s.writeRange(ctx, key, computed, depth, e)
		if len(computed) > limit {
			computed = computed[:limit]
		}
		points = computed
	}
	return e.entries(ctx, s, points)
}

func (e *Engine) entries(ctx context.Context, s *session, points []model.UserPoints) ([]model.LeaderboardEntry, error) {
	ids := make([]string, len(points))
	for i, p := range points {
		ids[i] = p.UserID
	}
	users, err := e.profiles(ctx, s, ids)
	if err != nil {
		return nil, repository.AsDomainError(err)
	}
	out := make([]model.LeaderboardEntry, len(points))
	for i, p := range points {
		u, ok := users[p.UserID]
		if !ok {
			u = model.User{ID: p.UserID}
		}
		out[i] = model.LeaderboardEntry{Rank: i + 1, User: u, Points: p.Points}
	}
	return out, nil
}

// GetUserRank returns a user's position on the global board.
func (e *Engine) GetUserRank(ctx context.Context, userID string) (model.UserRank, error) {
	metrics.RecordRankRead()
	u, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return model.UserRank{}, repository.AsDomainError(err)
	}
	ahead, err := e.store.CountAhead(ctx, userID)
	if err != nil {
		return model.UserRank{}, repository.AsDomainError(err)
	}
	return model.UserRank{Rank: ahead + 1, User: u, Points: u.TotalPoints}, nil
}

// BatchUpdate applies updates atomically through the ledger and then
// invalidates the affected caches. Invalidation failures are logged only.
func (e *Engine) BatchUpdate(ctx context.Context, updates []model.PointsUpdate) ([]model.PointsTransaction, error) {
	txns, err := e.ledger.ApplyBatch(ctx, updates)
	if err != nil {
		return nil, err
	}
	users := make([]string, 0, len(updates))
	communities := make([]string, 0, len(updates))
	for _, u := range updates {
		users = append(users, u.UserID)
		communities = append(communities, u.CommunityID)
	}
	e.Invalidate(ctx, users, communities)
	return txns, nil
}

// Invalidate drops cached profiles of users and every leaderboard that may
// include their points: each named community, the cross-community boards and
// the global board. It never fails; errors are logged.
func (e *Engine) Invalidate(ctx context.Context, userIDs, communityIDs []string) {
	if e.cache == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	s := e.session(scopeProfile)

	profileKeys := make([]string, 0, len(userIDs))
	for _, id := range dedupe(userIDs) {
		profileKeys = append(profileKeys, cache.ProfileKey(id))
	}
	if len(profileKeys) > 0 && s.usable() {
		if err := e.cache.Del(ctx, profileKeys...); err != nil {
			s.fail(ctx, "del_profiles", cache.ProfileKey("*"), err)
		} else {
			metrics.RecordCacheInvalidation(scopeProfile)
		}
	}

	for _, c := range dedupe(communityIDs) {
		if c == "" || !s.usable() {
			continue
		}
		if err := e.cache.InvalidatePattern(ctx, cache.CommunityPattern(c)); err != nil {
			s.fail(ctx, "invalidate", cache.CommunityPattern(c), err)
			continue
		}
		metrics.RecordCacheInvalidation(scopeCommunity)
	}
	if s.usable() {
		if err := e.cache.InvalidatePattern(ctx, cache.AllCommunitiesPattern()); err != nil {
			s.fail(ctx, "invalidate", cache.AllCommunitiesPattern(), err)
		} else {
			metrics.RecordCacheInvalidation(scopeAll)
		}
	}
	if s.usable() {
		if err := e.cache.Del(ctx, cache.GlobalLeaderboardKey, cache.MetaKey(cache.GlobalLeaderboardKey)); err != nil {
			s.fail(ctx, "del", cache.GlobalLeaderboardKey, err)
		} else {
			metrics.RecordCacheInvalidation(scopeGlobal)
		}
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
