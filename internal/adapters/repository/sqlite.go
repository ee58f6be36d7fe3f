package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/pointsboard/internal/adapters/repository/migrations"
	"github.com/okian/pointsboard/internal/domain/model"
	"github.com/okian/pointsboard/pkg/metrics"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteStore is the SQLite-backed Store.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: storage path is required", ErrNotConfigured)
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite allows a single writer; one connection keeps transactions
	// serialized instead of surfacing SQLITE_BUSY to callers.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func observe(op string, start time.Time, err error) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Milliseconds()))
	if err != nil && !errors.Is(err, ErrNotFound) {
		metrics.RecordStoreError(op)
	}
}

// WithinTx runs fn inside a database transaction.
func (s *SQLiteStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) (err error) {
	start := time.Now()
	defer func() { observe("tx", start, err) }()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(ctx, &sqliteTx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) InsertTransaction(ctx context.Context, p model.PointsTransaction) (bool, error) {
	if p.ID == "" || p.UserID == "" {
		return false, fmt.Errorf("%w: transaction id and user id are required", ErrInvalidRecord)
	}
	var dedupe sql.NullString
	if p.DedupeKey != "" {
		dedupe = sql.NullString{String: p.DedupeKey, Valid: true}
	}
	res, err := t.tx.ExecContext(ctx, `
INSERT INTO points_transactions (
	id, user_id, community_id, points, reason, action_key, reference_id, dedupe_key, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (dedupe_key) DO NOTHING
`,
		p.ID, p.UserID, p.CommunityID, p.Points, p.Reason, p.ActionKey, p.ReferenceID, dedupe,
		p.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return false, fmt.Errorf("%w: user %s", ErrNotFound, p.UserID)
		}
		return false, fmt.Errorf("insert transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert transaction rows: %w", err)
	}
	return n == 1, nil
}

func (t *sqliteTx) IncrementTotal(ctx context.Context, userID string, delta int64) (int64, error) {
	var total int64
	err := t.tx.QueryRowContext(ctx,
		`UPDATE users SET total_points = total_points + ? WHERE id = ? RETURNING total_points`,
		delta, userID,
	).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	if err != nil {
		return 0, fmt.Errorf("increment total: %w", err)
	}
	return total, nil
}

func (t *sqliteTx) HasAction(ctx context.Context, userID, communityID, actionKey string) (bool, error) {
	return hasAction(ctx, t.tx, userID, communityID, actionKey)
}

// PutUser inserts or updates profile fields. total_points is never
// overwritten by PutUser; only the ledger moves it.
func (s *SQLiteStore) PutUser(ctx context.Context, u model.User) (err error) {
	start := time.Now()
	defer func() { observe("put_user", start, err) }()

	u.ID = strings.TrimSpace(u.ID)
	if u.ID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidRecord)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO users (id, username, display_name, avatar_url, total_points, created_at)
VALUES (?, ?, ?, ?, 0, ?)
ON CONFLICT (id) DO UPDATE SET
	username = excluded.username,
	display_name = excluded.display_name,
	avatar_url = excluded.avatar_url
`, u.ID, u.Username, u.DisplayName, u.AvatarURL, u.CreatedAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

const userColumns = `id, username, display_name, avatar_url, total_points, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (model.User, error) {
	var u model.User
	var createdAt int64
	if err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL, &u.TotalPoints, &createdAt); err != nil {
		return model.User{}, err
	}
	u.CreatedAt = time.UnixMilli(createdAt).UTC()
	return u, nil
}

// GetUser loads one user.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (u model.User, err error) {
	start := time.Now()
	defer func() { observe("get_user", start, err) }()

	u, err = scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUsers loads the users that exist among userIDs.
func (s *SQLiteStore) GetUsers(ctx context.Context, userIDs []string) (out map[string]model.User, err error) {
	start := time.Now()
	defer func() { observe("get_users", start, err) }()

	out = make(map[string]model.User, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	args := make([]any, len(userIDs))
	for i, id := range userIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id IN (`+placeholders(len(userIDs))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return out, nil
}

// HasAction reports whether the user already has a transaction for actionKey.
func (s *SQLiteStore) HasAction(ctx context.Context, userID, communityID, actionKey string) (found bool, err error) {
	start := time.Now()
	defer func() { observe("has_action", start, err) }()

	return hasAction(ctx, s.db, userID, communityID, actionKey)
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func hasAction(ctx context.Context, q rowQuerier, userID, communityID, actionKey string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `
SELECT 1 FROM points_transactions
WHERE user_id = ? AND community_id = ? AND action_key = ?
LIMIT 1`, userID, communityID, actionKey).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has action: %w", err)
	}
	return true, nil
}

// SumByUser aggregates points per user for the filter.
func (s *SQLiteStore) SumByUser(ctx context.Context, f SumFilter) (out []model.UserPoints, err error) {
	start := time.Now()
	defer func() { observe("sum_by_user", start, err) }()

	if f.Limit <= 0 {
		return nil, ErrInvalidLimit
	}
	var (
		where []string
		args  []any
	)
	if f.CommunityID != "" {
		where = append(where, "community_id = ?")
		args = append(args, f.CommunityID)
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since.UTC().UnixMilli())
	}
	query := `SELECT user_id, SUM(points) AS total FROM points_transactions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` GROUP BY user_id ORDER BY total DESC, user_id ASC LIMIT ?`
	args = append(args, f.Limit)

	return s.queryUserPoints(ctx, query, args...)
}

// TopTotals orders users by denormalized total.
func (s *SQLiteStore) TopTotals(ctx context.Context, limit int) (out []model.UserPoints, err error) {
	start := time.Now()
	defer func() { observe("top_totals", start, err) }()

	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	return s.queryUserPoints(ctx,
		`SELECT id, total_points FROM users ORDER BY total_points DESC, id ASC LIMIT ?`, limit)
}

func (s *SQLiteStore) queryUserPoints(ctx context.Context, query string, args ...any) ([]model.UserPoints, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query user points: %w", err)
	}
	defer rows.Close()
	var out []model.UserPoints
	for rows.Next() {
		var up model.UserPoints
		if err := rows.Scan(&up.UserID, &up.Points); err != nil {
			return nil, fmt.Errorf("scan user points: %w", err)
		}
		out = append(out, up)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user points: %w", err)
	}
	return out, nil
}

// CountAhead counts users ordered before userID (higher total, or equal
// total with a smaller id).
func (s *SQLiteStore) CountAhead(ctx context.Context, userID string) (n int, err error) {
	start := time.Now()
	defer func() { observe("count_ahead", start, err) }()

	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	err = s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM users
WHERE total_points > ? OR (total_points = ? AND id < ?)`,
		u.TotalPoints, u.TotalPoints, u.ID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count ahead: %w", err)
	}
	return n, nil
}

// CountUsers counts users with total_points >= minTotal.
func (s *SQLiteStore) CountUsers(ctx context.Context, minTotal int64) (n int, err error) {
	start := time.Now()
	defer func() { observe("count_users", start, err) }()

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE total_points >= ?`, minTotal).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// TopByThresholds ranks users by the number of thresholds met, then by
// total, then id.
func (s *SQLiteStore) TopByThresholds(ctx context.Context, thresholds []int64, limit int) (out []ThresholdCount, err error) {
	start := time.Now()
	defer func() { observe("top_by_thresholds", start, err) }()

	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	expr := "0"
	args := make([]any, 0, len(thresholds)+1)
	if len(thresholds) > 0 {
		parts := make([]string, len(thresholds))
		for i, th := range thresholds {
			parts[i] = "(CASE WHEN total_points >= ? THEN 1 ELSE 0 END)"
			args = append(args, th)
		}
		expr = strings.Join(parts, " + ")
	}
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, `
SELECT id, total_points, `+expr+` AS earned
FROM users
ORDER BY earned DESC, total_points DESC, id ASC
LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("top by thresholds: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tc ThresholdCount
		if err := rows.Scan(&tc.UserID, &tc.TotalPoints, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan threshold count: %w", err)
		}
		out = append(out, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate threshold counts: %w", err)
	}
	return out, nil
}

func transactionWhere(f TransactionFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.CommunityID != "" {
		where = append(where, "community_id = ?")
		args = append(args, f.CommunityID)
	}
	if f.ActionKey != "" {
		where = append(where, "action_key = ?")
		args = append(args, f.ActionKey)
	}
	if f.Reason != "" {
		where = append(where, "reason = ?")
		args = append(args, f.Reason)
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since.UTC().UnixMilli())
	}
	if !f.Until.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, f.Until.UTC().UnixMilli())
	}
	if len(where) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

// ListTransactions returns matching transactions newest first.
func (s *SQLiteStore) ListTransactions(ctx context.Context, f TransactionFilter) (out []model.PointsTransaction, err error) {
	start := time.Now()
	defer func() { observe("list_transactions", start, err) }()

	where, args := transactionWhere(f)
	query := `
SELECT id, user_id, community_id, points, reason, action_key, reference_id, COALESCE(dedupe_key, ''), created_at
FROM points_transactions` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			p         model.PointsTransaction
			createdAt int64
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.CommunityID, &p.Points, &p.Reason,
			&p.ActionKey, &p.ReferenceID, &p.DedupeKey, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		p.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// CountTransactions counts matching transactions.
func (s *SQLiteStore) CountTransactions(ctx context.Context, f TransactionFilter) (n int, err error) {
	start := time.Now()
	defer func() { observe("count_transactions", start, err) }()

	where, args := transactionWhere(f)
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM points_transactions`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "foreign key constraint failed")
}

var _ Store = (*SQLiteStore)(nil)
