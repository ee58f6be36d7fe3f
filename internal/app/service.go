// Package service is the composition root: it wires the ledger, the read
// engines and the award outbox behind one API used by the HTTP layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/pointsboard/internal/adapters/cache"
	"github.com/okian/pointsboard/internal/adapters/mq/queue"
	"github.com/okian/pointsboard/internal/adapters/mq/worker"
	"github.com/okian/pointsboard/internal/adapters/repository"
	"github.com/okian/pointsboard/internal/domain/achievement"
	"github.com/okian/pointsboard/internal/domain/dedupe"
	"github.com/okian/pointsboard/internal/domain/leaderboard"
	"github.com/okian/pointsboard/internal/domain/ledger"
	"github.com/okian/pointsboard/internal/domain/model"
	"github.com/okian/pointsboard/internal/domain/rules"
	"github.com/okian/pointsboard/internal/domain/timeframe"
	"github.com/okian/pointsboard/pkg/logger"
	"github.com/okian/pointsboard/pkg/metrics"
)

const (
	defaultWorkerCount  = 4
	defaultQueueSize    = 10_000
	defaultDedupeSize   = 100_000
	defaultMaxAttempts  = 5
	defaultReadTimeout  = 2 * time.Second
	defaultWriteTimeout = 5 * time.Second
	defaultCacheTTL     = 5 * time.Minute
	defaultCacheDepth   = 100
	defaultMaxLimit     = 100
)

// Submission acknowledges an award handed to the outbox.
type Submission struct {
	ID        string `json:"submission_id"`
	Duplicate bool   `json:"duplicate"`
}

// Stats is a point-in-time view of the service for monitoring.
type Stats struct {
	Started        bool  `json:"started"`
	Workers        int   `json:"workers"`
	ActiveWorkers  int   `json:"active_workers"`
	QueueLength    int   `json:"queue_length"`
	QueueCapacity  int   `json:"queue_capacity"`
	DedupeSize     int64 `json:"dedupe_size"`
	CacheAvailable bool  `json:"cache_available"`
	TotalUsers     int   `json:"total_users"`
}

// Service implements the API dependencies for the points system.
type Service struct {
	mu sync.RWMutex

	store        repository.Store
	cache        cache.Cache
	ledger       *ledger.Ledger
	board        *leaderboard.Engine
	achievements *achievement.Engine
	deduper      dedupe.Deduper
	queue        *queue.InMemoryQueue
	pool         *worker.Pool

	rules    *rules.Table
	tiers    *rules.Tiers
	calendar *timeframe.Calendar

	workerCount  int
	queueSize    int
	dedupeSize   int
	maxAttempts  int
	retryInitial time.Duration
	retryMax     time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
	cacheTTL     time.Duration
	cacheDepth   int
	maxLimit     int

	started       bool
	cancelWorkers context.CancelFunc

	logger logger.Logger
}

// New wires the engines over store. The outbox runs only between Start and
// Stop; synchronous awards and reads work right away.
func New(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:        store,
		rules:        rules.NewTable(),
		tiers:        rules.DefaultTiers(),
		calendar:     timeframe.New(),
		workerCount:  defaultWorkerCount,
		queueSize:    defaultQueueSize,
		dedupeSize:   defaultDedupeSize,
		maxAttempts:  defaultMaxAttempts,
		readTimeout:  defaultReadTimeout,
		writeTimeout: defaultWriteTimeout,
		cacheTTL:     defaultCacheTTL,
		cacheDepth:   defaultCacheDepth,
		maxLimit:     defaultMaxLimit,
		logger:       logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.ledger = ledger.New(store,
		ledger.WithRules(s.rules),
		ledger.WithCalendar(s.calendar),
		ledger.WithLogger(s.logger.Named("ledger")),
		ledger.WithWriteTimeout(s.writeTimeout),
	)
	s.board = leaderboard.New(store, s.ledger,
		leaderboard.WithCache(s.cache),
		leaderboard.WithCalendar(s.calendar),
		leaderboard.WithLogger(s.logger.Named("leaderboard")),
		leaderboard.WithTTL(s.cacheTTL),
		leaderboard.WithDepth(s.cacheDepth),
		leaderboard.WithMaxLimit(s.maxLimit),
	)
	s.achievements = achievement.New(store,
		achievement.WithTiers(s.tiers),
		achievement.WithLogger(s.logger.Named("achievement")),
		achievement.WithMaxLimit(s.maxLimit),
	)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	return s
}

// Start launches the award outbox. Workers outlive ctx cancellation so
// Stop can drain them.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting points service...")

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	poolOpts := []worker.Option{
		worker.WithWorkers(s.workerCount),
		worker.WithMaxAttempts(s.maxAttempts),
		worker.WithPermanent(isPermanent),
		worker.WithOnDrop(s.dropped),
		worker.WithLogger(s.logger.Named("worker")),
	}
	if s.retryInitial > 0 || s.retryMax > 0 {
		poolOpts = append(poolOpts, worker.WithBackoff(s.retryInitial, s.retryMax))
	}
	s.pool = worker.NewPool(s.queue, s, poolOpts...)

	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelWorkers = cancel
	s.pool.Start(wctx)

	s.started = true
	s.logger.Info(ctx, "points service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop closes the outbox and waits for queued awards to be applied or for
// ctx to end, whichever comes first.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	pool, cancel := s.pool, s.cancelWorkers
	s.mu.Unlock()

	s.logger.Info(ctx, "stopping points service...")
	err := pool.Shutdown(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("stop workers: %w", err)
	}
	s.logger.Info(ctx, "points service stopped")
	return nil
}

// isPermanent reports award failures a retry cannot fix.
func isPermanent(err error) bool {
	return errors.Is(err, model.ErrUnknownAction) ||
		errors.Is(err, model.ErrAlreadyAwarded) ||
		errors.Is(err, model.ErrUserNotFound) ||
		errors.Is(err, model.ErrInvalidPoints)
}

func (s *Service) dropped(r model.AwardRequest, _ error) { //nolint:gocritic // callback signature
	s.deduper.Unrecord(context.Background(), r.SubmissionID)
}

func (s *Service) validateSubmission(r *model.AwardRequest) error {
	r.UserID = strings.TrimSpace(r.UserID)
	r.ActionKey = strings.TrimSpace(r.ActionKey)
	if r.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	if r.ActionKey == "" {
		return fmt.Errorf("%w: action_key is required", ErrInvalidRequest)
	}
	if r.FirstTime && r.CustomPoints != nil {
		return fmt.Errorf("%w: first-time awards use the rule value", ErrInvalidRequest)
	}
	points, _, err := s.rules.Resolve(r.ActionKey, r.CustomPoints)
	if err != nil {
		return err
	}
	if points <= 0 {
		return fmt.Errorf("%w: %d", model.ErrInvalidPoints, points)
	}
	return nil
}

// SubmitAward validates r and hands it to the outbox. A repeated
// submission id is acknowledged as a duplicate without being queued again.
// An empty id is replaced with a generated one.
func (s *Service) SubmitAward(ctx context.Context, r model.AwardRequest) (Submission, error) { //nolint:gocritic // request value
	if err := s.validateSubmission(&r); err != nil {
		return Submission{}, err
	}
	if r.SubmissionID == "" {
		r.SubmissionID = uuid.NewString()
	}
	if r.SubmittedAt.IsZero() {
		r.SubmittedAt = time.Now()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return Submission{}, ErrStopped
	}
	if s.deduper.SeenAndRecord(ctx, r.SubmissionID) {
		metrics.RecordAwardDuplicate(metrics.KindSubmission)
		s.logger.Debug(ctx, "duplicate submission, skipping",
			logger.String("submission_id", r.SubmissionID),
			logger.String("user_id", r.UserID))
		return Submission{ID: r.SubmissionID, Duplicate: true}, nil
	}
	if err := s.queue.Enqueue(ctx, r); err != nil {
		s.deduper.Unrecord(ctx, r.SubmissionID)
		switch {
		case errors.Is(err, queue.ErrFull):
			s.logger.Warn(ctx, "award queue full",
				logger.String("submission_id", r.SubmissionID),
				logger.String("user_id", r.UserID))
			return Submission{}, ErrBackpressure
		case errors.Is(err, queue.ErrClosed):
			return Submission{}, ErrStopped
		default:
			return Submission{}, err
		}
	}
	return Submission{ID: r.SubmissionID}, nil
}

// Apply writes one queued award and invalidates the caches it touches.
// It is what the outbox workers call. Retries of a request that already
// committed are no-ops.
func (s *Service) Apply(ctx context.Context, r model.AwardRequest) error { //nolint:gocritic // request value
	res, err := s.ledger.AwardSubmission(ctx, r)
	if err != nil {
		return err
	}
	if res != nil {
		s.invalidate(ctx, r.UserID, r.CommunityID)
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, userID, communityID string) {
	s.board.Invalidate(ctx, []string{userID}, []string{communityID})
}

// AwardForAction awards an action synchronously.
func (s *Service) AwardForAction(ctx context.Context, userID, communityID, actionKey, referenceID string, customPoints *int64) (model.AwardResult, error) {
	res, err := s.ledger.AwardForAction(ctx, userID, communityID, actionKey, referenceID, customPoints)
	if err != nil {
		return model.AwardResult{}, err
	}
	s.invalidate(ctx, userID, communityID)
	return res, nil
}

// AwardFirstTime awards an action at most once per user and community. A
// nil result means it had already been awarded.
func (s *Service) AwardFirstTime(ctx context.Context, userID, communityID, actionKey, referenceID string) (*model.AwardResult, error) {
	res, err := s.ledger.AwardFirstTime(ctx, userID, communityID, actionKey, referenceID)
	if err != nil || res == nil {
		return nil, err
	}
	s.invalidate(ctx, userID, communityID)
	return res, nil
}

// AwardDailyLoginBonus awards today's login bonus. A nil result means it
// was already claimed.
func (s *Service) AwardDailyLoginBonus(ctx context.Context, userID, communityID string) (*model.AwardResult, error) {
	res, err := s.ledger.AwardDailyLoginBonus(ctx, userID, communityID)
	if err != nil || res == nil {
		return nil, err
	}
	s.invalidate(ctx, userID, communityID)
	return res, nil
}

// BatchUpdate applies updates as one atomic unit.
func (s *Service) BatchUpdate(ctx context.Context, updates []model.PointsUpdate) ([]model.PointsTransaction, error) {
	return s.board.BatchUpdate(ctx, updates)
}

// RegisterUser creates or updates a user's profile. Points start at zero.
func (s *Service) RegisterUser(ctx context.Context, u model.User) (model.User, error) { //nolint:gocritic // profile value
	if err := s.store.PutUser(ctx, u); err != nil {
		if errors.Is(err, repository.ErrInvalidRecord) {
			return model.User{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		return model.User{}, repository.AsDomainError(err)
	}
	s.board.Invalidate(ctx, []string{u.ID}, nil)
	stored, err := s.store.GetUser(ctx, strings.TrimSpace(u.ID))
	if err != nil {
		return model.User{}, repository.AsDomainError(err)
	}
	return stored, nil
}

func (s *Service) read(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.readTimeout)
}

// CommunityLeaderboard ranks users by windowed points in a community.
func (s *Service) CommunityLeaderboard(ctx context.Context, communityID string, tf model.Timeframe, limit int) ([]model.LeaderboardEntry, error) {
	ctx, cancel := s.read(ctx)
	defer cancel()
	return s.board.GetCommunityLeaderboard(ctx, communityID, tf, limit)
}

// GlobalLeaderboard ranks users by all-time total.
func (s *Service) GlobalLeaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	ctx, cancel := s.read(ctx)
	defer cancel()
	return s.board.GetGlobalLeaderboard(ctx, limit)
}

// UserRank returns a user's global rank.
func (s *Service) UserRank(ctx context.Context, userID string) (model.UserRank, error) {
	ctx, cancel := s.read(ctx)
	defer cancel()
	return s.board.GetUserRank(ctx, userID)
}

// Transactions lists a user's transactions newest first.
func (s *Service) Transactions(ctx context.Context, userID, communityID string, limit int) ([]model.PointsTransaction, error) {
	if limit > s.maxLimit {
		return nil, fmt.Errorf("%w: %d (1..%d)", model.ErrInvalidLimit, limit, s.maxLimit)
	}
	ctx, cancel := s.read(ctx)
	defer cancel()
	return s.ledger.ListTransactions(ctx, userID, communityID, limit)
}

// AchievementProgress lists every tier with the user's progress.
func (s *Service) AchievementProgress(ctx context.Context, userID string) ([]model.AchievementProgress, error) {
	ctx, cancel := s.read(ctx)
	defer cancel()
	return s.achievements.GetUserAchievementProgress(ctx, userID)
}

// Milestones summarises earned tiers and the next one.
func (s *Service) Milestones(ctx context.Context, userID string) (model.Milestones, error) {
	ctx, cancel := s.read(ctx)
	defer cancel()
	return s.achievements.GetUserMilestones(ctx, userID)
}

// Achievement looks up one tier.
func (s *Service) Achievement(id string) (model.Achievement, error) {
	return s.achievements.GetAchievement(id)
}

// Achievements lists every tier in ascending threshold order.
func (s *Service) Achievements() []model.Achievement {
	return s.achievements.Achievements()
}

// AchievementLeaderboard ranks users by tiers earned.
func (s *Service) AchievementLeaderboard(ctx context.Context, limit int) ([]model.AchievementRanking, error) {
	ctx, cancel := s.read(ctx)
	defer cancel()
	return s.achievements.GetAchievementLeaderboard(ctx, limit)
}

// AchievementStats reports how many users hold each tier.
func (s *Service) AchievementStats(ctx context.Context) ([]model.AchievementStat, error) {
	ctx, cancel := s.read(ctx)
	defer cancel()
	return s.achievements.GetAchievementStats(ctx)
}

// Rules lists the rule table.
func (s *Service) Rules() []rules.Rule { return s.rules.Rules() }

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	st := Stats{
		Started:    s.started,
		Workers:    s.workerCount,
		DedupeSize: s.deduper.Size(),
	}
	if s.queue != nil {
		st.QueueLength = s.queue.Len()
		st.QueueCapacity = s.queue.Capacity()
	}
	if s.pool != nil {
		st.ActiveWorkers = s.pool.Active()
	}
	s.mu.RUnlock()

	ctx, cancel := s.read(ctx)
	defer cancel()
	if s.cache != nil {
		st.CacheAvailable = s.cache.Available(ctx)
	}
	n, err := s.store.CountUsers(ctx, 0)
	if err != nil {
		return st, repository.AsDomainError(err)
	}
	st.TotalUsers = n
	metrics.UpdateTotalUsers(n)
	return st, nil
}
