// Package repository defines the durable store contract for the points
// ledger and its SQLite implementation.
package repository

import (
	"context"
	"time"

	"github.com/okian/pointsboard/internal/domain/model"
)

// SumFilter selects transactions for a windowed sum grouped by user.
type SumFilter struct {
	CommunityID string    // empty means every community
	Since       time.Time // zero means unbounded
	Limit       int
}

// TransactionFilter selects transactions for listing and counting.
type TransactionFilter struct {
	UserID      string
	CommunityID string
	ActionKey   string
	Reason      string
	Since       time.Time
	Until       time.Time // exclusive
	Limit       int       // 0 means no limit
}

// ThresholdCount is a user with the number of thresholds their total meets.
type ThresholdCount struct {
	UserID      string
	TotalPoints int64
	Count       int
}

// Tx is the write surface available inside one atomic unit of work.
type Tx interface {
	// InsertTransaction appends t. When t.DedupeKey is set and a row with the
	// same key exists, nothing is written and inserted is false.
	InsertTransaction(ctx context.Context, t model.PointsTransaction) (inserted bool, err error)

	// IncrementTotal adds delta to the user's running total and returns the
	// new value. Returns ErrNotFound for unknown users.
	IncrementTotal(ctx context.Context, userID string, delta int64) (int64, error)

	// HasAction is Store.HasAction read inside the unit.
	HasAction(ctx context.Context, userID, communityID, actionKey string) (bool, error)
}

// Store is the durable system of record. All ordered reads break ties by
// user id ascending.
type Store interface {
	// WithinTx runs fn as one all-or-nothing unit. Any error from fn rolls
	// the whole unit back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	PutUser(ctx context.Context, u model.User) error
	GetUser(ctx context.Context, userID string) (model.User, error)
	GetUsers(ctx context.Context, userIDs []string) (map[string]model.User, error)

	// HasAction reports whether any transaction exists for the user and
	// community with exactly this action key.
	HasAction(ctx context.Context, userID, communityID, actionKey string) (bool, error)

	// SumByUser aggregates points per user, ordered by sum desc.
	SumByUser(ctx context.Context, f SumFilter) ([]model.UserPoints, error)
	// TopTotals orders users by their denormalized total desc.
	TopTotals(ctx context.Context, limit int) ([]model.UserPoints, error)
	// CountAhead counts users ranked strictly before userID by total.
	CountAhead(ctx context.Context, userID string) (int, error)
	// CountUsers counts users whose total is at least minTotal.
	CountUsers(ctx context.Context, minTotal int64) (int, error)
	// TopByThresholds ranks users by how many thresholds their total meets,
	// then by total desc.
	TopByThresholds(ctx context.Context, thresholds []int64, limit int) ([]ThresholdCount, error)

	ListTransactions(ctx context.Context, f TransactionFilter) ([]model.PointsTransaction, error)
	CountTransactions(ctx context.Context, f TransactionFilter) (int, error)

	Close() error
}
