// Package ledger is the points ledger: it appends point transactions and
// moves each user's running total in the same atomic unit.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/pointsboard/internal/adapters/repository"
	"github.com/okian/pointsboard/internal/domain/model"
	"github.com/okian/pointsboard/internal/domain/rules"
	"github.com/okian/pointsboard/internal/domain/timeframe"
	"github.com/okian/pointsboard/pkg/logger"
	"github.com/okian/pointsboard/pkg/metrics"
)

const defaultWriteTimeout = 5 * time.Second

var tracer = otel.Tracer("github.com/okian/pointsboard/internal/domain/ledger")

// Ledger owns every write to the points transaction log.
type Ledger struct {
	store        repository.Store
	rules        *rules.Table
	cal          *timeframe.Calendar
	log          logger.Logger
	writeTimeout time.Duration
	newID        func() string
}

// New creates a Ledger over store.
func New(store repository.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:        store,
		rules:        rules.NewTable(),
		cal:          timeframe.New(),
		log:          logger.Discard(),
		writeTimeout: defaultWriteTimeout,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Rules returns the rule table in use.
func (l *Ledger) Rules() *rules.Table { return l.rules }

// DailyKey is the idempotency key of a daily bonus.
func DailyKey(userID, communityID, day, ruleKey string) string {
	return "daily:" + userID + ":" + communityID + ":" + day + ":" + ruleKey
}

// FirstTimeKey is the idempotency key of a once-per-community award.
func FirstTimeKey(userID, communityID, actionKey string) string {
	return "first:" + userID + ":" + communityID + ":" + actionKey
}

// SubmissionKey is the idempotency key of a queued award request.
func SubmissionKey(submissionID string) string {
	return "sub:" + submissionID
}

// guardKey is the idempotency key a rule carries on every award path: the
// daily key for the daily login rule, the first-time key for once-only
// rules, and none otherwise.
func (l *Ledger) guardKey(userID, communityID, actionKey string, at time.Time) string {
	switch {
	case actionKey == rules.ActionDailyLogin:
		return DailyKey(userID, communityID, l.cal.StartOfDay(at).Format(time.DateOnly), actionKey)
	case rules.OnceOnly(actionKey):
		return FirstTimeKey(userID, communityID, actionKey)
	default:
		return ""
	}
}

func (l *Ledger) transaction(u model.PointsUpdate, at time.Time) model.PointsTransaction {
	return model.PointsTransaction{
		ID:          l.newID(),
		UserID:      u.UserID,
		CommunityID: u.CommunityID,
		Points:      u.Points,
		Reason:      u.Reason,
		ActionKey:   u.ActionKey,
		ReferenceID: u.ReferenceID,
		CreatedAt:   at,
	}
}

func validate(u model.PointsUpdate) error {
	if u.UserID == "" {
		return fmt.Errorf("%w: empty user id", model.ErrUserNotFound)
	}
	if u.Points <= 0 {
		return fmt.Errorf("%w: %d", model.ErrInvalidPoints, u.Points)
	}
	return nil
}

// writeContext detaches the unit of work from caller cancellation and
// bounds it by the write timeout instead, so a unit either commits or rolls
// back as a whole.
func (l *Ledger) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), l.writeTimeout)
}

// commit inserts txn and increments the total in one unit. inserted is false
// when txn carried a dedupe key that was already used, or when once is set
// and the user already holds a transaction for the action.
func (l *Ledger) commit(ctx context.Context, kind string, txn model.PointsTransaction, once bool) (res model.AwardResult, inserted bool, err error) {
	if err := ctx.Err(); err != nil {
		return model.AwardResult{}, false, err
	}
	ctx, span := tracer.Start(ctx, "ledger."+kind, trace.WithAttributes(
		attribute.String("user.id", txn.UserID),
		attribute.String("community.id", txn.CommunityID),
		attribute.Int64("points", txn.Points),
	))
	defer span.End()

	wctx, cancel := l.writeContext(ctx)
	defer cancel()

	var total int64
	err = l.store.WithinTx(wctx, func(ctx context.Context, tx repository.Tx) error {
		if once {
			found, err := tx.HasAction(ctx, txn.UserID, txn.CommunityID, txn.ActionKey)
			if err != nil || found {
				return err
			}
		}
		ok, err := tx.InsertTransaction(ctx, txn)
		if err != nil || !ok {
			return err
		}
		inserted = true
		total, err = tx.IncrementTotal(ctx, txn.UserID, txn.Points)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "award failed")
		metrics.RecordAwardError(kind)
		l.log.Error(ctx, "award failed",
			logger.String("kind", kind),
			logger.String("user_id", txn.UserID),
			logger.String("community_id", txn.CommunityID),
			logger.Int64("points", txn.Points),
			logger.Error(err))
		return model.AwardResult{}, false, repository.AsDomainError(err)
	}
	if !inserted {
		span.SetAttributes(attribute.Bool("duplicate", true))
		metrics.RecordAwardDuplicate(kind)
		l.log.Debug(ctx, "award already applied",
			logger.String("kind", kind),
			logger.String("user_id", txn.UserID),
			logger.String("community_id", txn.CommunityID))
		return model.AwardResult{}, false, nil
	}
	metrics.RecordAward(kind, txn.Points)
	return model.AwardResult{Transaction: txn, NewTotal: total}, true, nil
}

// Award appends one transaction and increments the user's total atomically.
// An update naming the daily login or a once-only rule is guarded like
// AwardForAction.
func (l *Ledger) Award(ctx context.Context, u model.PointsUpdate) (model.AwardResult, error) {
	if err := validate(u); err != nil {
		return model.AwardResult{}, err
	}
	txn := l.transaction(u, l.cal.Now())
	txn.DedupeKey = l.guardKey(u.UserID, u.CommunityID, u.ActionKey, txn.CreatedAt)
	res, inserted, err := l.commit(ctx, metrics.KindAward, txn, rules.OnceOnly(u.ActionKey))
	if err != nil {
		return model.AwardResult{}, err
	}
	if !inserted {
		return model.AwardResult{}, fmt.Errorf("%w: %s for user %s", model.ErrAlreadyAwarded, u.ActionKey, u.UserID)
	}
	return res, nil
}

func (l *Ledger) actionUpdate(userID, communityID, actionKey, referenceID string, customPoints *int64) (model.PointsUpdate, error) {
	points, reason, err := l.rules.Resolve(actionKey, customPoints)
	if err != nil {
		return model.PointsUpdate{}, err
	}
	u := model.PointsUpdate{
		UserID:      userID,
		CommunityID: communityID,
		Points:      points,
		Reason:      reason,
		ActionKey:   actionKey,
		ReferenceID: referenceID,
	}
	return u, validate(u)
}

// AwardForAction resolves actionKey through the rule table (customPoints
// wins when set) and awards the result. The daily login and once-only
// rules keep their guarantees here too: a repeat fails with
// model.ErrAlreadyAwarded.
func (l *Ledger) AwardForAction(ctx context.Context, userID, communityID, actionKey, referenceID string, customPoints *int64) (model.AwardResult, error) {
	u, err := l.actionUpdate(userID, communityID, actionKey, referenceID, customPoints)
	if err != nil {
		return model.AwardResult{}, err
	}
	txn := l.transaction(u, l.cal.Now())
	txn.DedupeKey = l.guardKey(userID, communityID, actionKey, txn.CreatedAt)
	res, inserted, err := l.commit(ctx, metrics.KindAction, txn, rules.OnceOnly(actionKey))
	if err != nil {
		return model.AwardResult{}, err
	}
	if !inserted {
		return model.AwardResult{}, fmt.Errorf("%w: %s for user %s", model.ErrAlreadyAwarded, actionKey, userID)
	}
	return res, nil
}

// AwardSubmission applies a queued award request. The submission id is the
// idempotency key unless the rule carries its own, so a retried request
// never awards twice. A nil result with a nil error means the request, or
// the once-per-day or once-only award it asks for, was already applied.
func (l *Ledger) AwardSubmission(ctx context.Context, r model.AwardRequest) (*model.AwardResult, error) { //nolint:gocritic // request value
	if r.FirstTime {
		return l.AwardFirstTime(ctx, r.UserID, r.CommunityID, r.ActionKey, r.ReferenceID)
	}
	u, err := l.actionUpdate(r.UserID, r.CommunityID, r.ActionKey, r.ReferenceID, r.CustomPoints)
	if err != nil {
		return nil, err
	}
	txn := l.transaction(u, l.cal.Now())
	txn.DedupeKey = l.guardKey(r.UserID, r.CommunityID, r.ActionKey, txn.CreatedAt)
	if txn.DedupeKey == "" && r.SubmissionID != "" {
		txn.DedupeKey = SubmissionKey(r.SubmissionID)
	}
	res, inserted, err := l.commit(ctx, metrics.KindAction, txn, rules.OnceOnly(r.ActionKey))
	if err != nil || !inserted {
		return nil, err
	}
	return &res, nil
}

// CheckFirstTime reports whether the user has no transaction for actionKey
// in the community yet.
func (l *Ledger) CheckFirstTime(ctx context.Context, userID, communityID, actionKey string) (bool, error) {
	found, err := l.store.HasAction(ctx, userID, communityID, actionKey)
	if err != nil {
		return false, repository.AsDomainError(err)
	}
	return !found, nil
}

// AwardFirstTime awards actionKey at most once per user and community: it
// is skipped when any transaction for the action exists already. A nil
// result with a nil error means it was already awarded.
func (l *Ledger) AwardFirstTime(ctx context.Context, userID, communityID, actionKey, referenceID string) (*model.AwardResult, error) {
	points, reason, err := l.rules.Resolve(actionKey, nil)
	if err != nil {
		return nil, err
	}
	u := model.PointsUpdate{
		UserID:      userID,
		CommunityID: communityID,
		Points:      points,
		Reason:      reason,
		ActionKey:   actionKey,
		ReferenceID: referenceID,
	}
	if err := validate(u); err != nil {
		return nil, err
	}
	txn := l.transaction(u, l.cal.Now())
	txn.DedupeKey = FirstTimeKey(userID, communityID, actionKey)
	res, inserted, err := l.commit(ctx, metrics.KindFirstTime, txn, true)
	if err != nil || !inserted {
		return nil, err
	}
	return &res, nil
}

// AwardDailyLoginBonus awards the daily login rule once per user, community
// and calendar day. A nil result with a nil error means today's bonus was
// already claimed.
func (l *Ledger) AwardDailyLoginBonus(ctx context.Context, userID, communityID string) (*model.AwardResult, error) {
	rule := l.rules.MustLookup(rules.ActionDailyLogin)
	now := l.cal.Now()
	u := model.PointsUpdate{
		UserID:      userID,
		CommunityID: communityID,
		Points:      rule.Points,
		Reason:      rule.Description,
		ActionKey:   rule.Key,
	}
	if err := validate(u); err != nil {
		return nil, err
	}
	txn := l.transaction(u, now)
	txn.DedupeKey = DailyKey(userID, communityID, l.cal.StartOfDay(now).Format(time.DateOnly), rule.Key)
	res, inserted, err := l.commit(ctx, metrics.KindDailyLogin, txn, false)
	if err != nil || !inserted {
		return nil, err
	}
	return &res, nil
}

// ApplyBatch writes every update as one unit: all transactions are
// inserted, then each affected user's total moves once by their summed
// delta. Any failure rolls back the whole batch, including a daily login or
// once-only update that was already awarded (model.ErrAlreadyAwarded).
func (l *Ledger) ApplyBatch(ctx context.Context, updates []model.PointsUpdate) ([]model.PointsTransaction, error) {
	if len(updates) == 0 {
		return nil, nil
	}
	now := l.cal.Now()
	txns := make([]model.PointsTransaction, len(updates))
	deltas := make(map[string]int64)
	for i, u := range updates {
		if err := validate(u); err != nil {
			return nil, fmt.Errorf("update %d: %w", i, err)
		}
		txns[i] = l.transaction(u, now)
		txns[i].DedupeKey = l.guardKey(u.UserID, u.CommunityID, u.ActionKey, now)
		deltas[u.UserID] += u.Points
	}
	users := make([]string, 0, len(deltas))
	for id := range deltas {
		users = append(users, id)
	}
	sort.Strings(users)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "ledger.batch", trace.WithAttributes(
		attribute.Int("updates", len(updates)),
		attribute.Int("users", len(users)),
	))
	defer span.End()

	wctx, cancel := l.writeContext(ctx)
	defer cancel()

	err := l.store.WithinTx(wctx, func(ctx context.Context, tx repository.Tx) error {
		for i, t := range txns {
			if rules.OnceOnly(t.ActionKey) {
				found, err := tx.HasAction(ctx, t.UserID, t.CommunityID, t.ActionKey)
				if err != nil {
					return err
				}
				if found {
					return fmt.Errorf("update %d: %w: %s for user %s", i, model.ErrAlreadyAwarded, t.ActionKey, t.UserID)
				}
			}
			ok, err := tx.InsertTransaction(ctx, t)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("update %d: %w: %s for user %s", i, model.ErrAlreadyAwarded, t.ActionKey, t.UserID)
			}
		}
		for _, id := range users {
			if _, err := tx.IncrementTotal(ctx, id, deltas[id]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch failed")
		metrics.RecordAwardError(metrics.KindBatch)
		l.log.Error(ctx, "batch award failed",
			logger.Int("updates", len(updates)),
			logger.Int("users", len(users)),
			logger.Error(err))
		if errors.Is(err, model.ErrAlreadyAwarded) {
			return nil, err
		}
		return nil, repository.AsDomainError(err)
	}
	for _, t := range txns {
		metrics.RecordAward(metrics.KindBatch, t.Points)
	}
	return txns, nil
}

// ListTransactions returns a user's transactions newest first. An empty
// communityID lists every community.
func (l *Ledger) ListTransactions(ctx context.Context, userID, communityID string, limit int) ([]model.PointsTransaction, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", model.ErrInvalidLimit, limit)
	}
	if _, err := l.store.GetUser(ctx, userID); err != nil {
		return nil, repository.AsDomainError(err)
	}
	out, err := l.store.ListTransactions(ctx, repository.TransactionFilter{
		UserID:      userID,
		CommunityID: communityID,
		Limit:       limit,
	})
	if err != nil {
		if errors.Is(err, repository.ErrInvalidLimit) {
			return nil, fmt.Errorf("%w: %d", model.ErrInvalidLimit, limit)
		}
		return nil, repository.AsDomainError(err)
	}
	return out, nil
}
