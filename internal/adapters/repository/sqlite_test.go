package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okian/pointsboard/internal/domain/model"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(context.Background(), t.TempDir()+"/points.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func putUsers(t *testing.T, store *SQLiteStore, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if err := store.PutUser(context.Background(), model.User{ID: id, Username: id, DisplayName: strings.ToUpper(id)}); err != nil {
			t.Fatalf("put user %s: %v", id, err)
		}
	}
}

func award(t *testing.T, store *SQLiteStore, userID, community string, points int64, at time.Time) {
	t.Helper()
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		if _, err := tx.InsertTransaction(ctx, model.PointsTransaction{
			ID:          fmt.Sprintf("%s-%s-%d-%d", userID, community, points, at.UnixNano()),
			UserID:      userID,
			CommunityID: community,
			Points:      points,
			Reason:      "test",
			CreatedAt:   at,
		}); err != nil {
			return err
		}
		_, err := tx.IncrementTotal(ctx, userID, points)
		return err
	})
	if err != nil {
		t.Fatalf("award: %v", err)
	}
}

func TestSQLiteStore_MigrationsAreIdempotent(t *testing.T) {
	path := t.TempDir() + "/points.db"
	for i := 0; i < 2; i++ {
		store, err := OpenSQLite(context.Background(), path)
		if err != nil {
			t.Fatalf("open #%d: %v", i, err)
		}
		_ = store.Close()
	}
}

func TestSQLiteStore_PutUserKeepsTotal(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	putUsers(t, store, "u1")
	award(t, store, "u1", "c1", 40, time.Now())

	if err := store.PutUser(ctx, model.User{ID: "u1", Username: "renamed"}); err != nil {
		t.Fatalf("put user: %v", err)
	}
	u, err := store.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.Username != "renamed" || u.TotalPoints != 40 {
		t.Fatalf("user = %+v, want renamed with 40 points", u)
	}

	if _, err := store.GetUser(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get ghost err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_TxRollback(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	putUsers(t, store, "u1")

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.InsertTransaction(ctx, model.PointsTransaction{
			ID: "t1", UserID: "u1", Points: 5, Reason: "x", CreatedAt: time.Now(),
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	n, err := store.CountTransactions(ctx, TransactionFilter{UserID: "u1"})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("transactions = %d after rollback, want 0", n)
	}
}

func TestSQLiteStore_DedupeKey(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	putUsers(t, store, "u1")

	insert := func(id string) bool {
		var inserted bool
		err := store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			var err error
			inserted, err = tx.InsertTransaction(ctx, model.PointsTransaction{
				ID: id, UserID: "u1", Points: 5, Reason: "daily", DedupeKey: "daily:u1:c1:2026-10-16", CreatedAt: time.Now(),
			})
			return err
		})
		if err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
		return inserted
	}
	if !insert("a") {
		t.Fatal("first insert should succeed")
	}
	if insert("b") {
		t.Fatal("second insert with same dedupe key should be skipped")
	}
}

func TestSQLiteStore_UnknownUser(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	err := store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.IncrementTotal(ctx, "ghost", 10)
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("increment ghost err = %v, want ErrNotFound", err)
	}

	err = store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.InsertTransaction(ctx, model.PointsTransaction{ID: "t", UserID: "ghost", Points: 1, Reason: "x", CreatedAt: time.Now()})
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("insert for ghost err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_SumByUserOrderingAndWindow(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	putUsers(t, store, "alice", "bob", "carol", "dave")

	now := time.Date(2026, time.October, 16, 12, 0, 0, 0, time.UTC)
	award(t, store, "carol", "c1", 100, now)
	award(t, store, "alice", "c1", 100, now)
	award(t, store, "bob", "c1", 250, now.Add(-48*time.Hour))
	award(t, store, "dave", "c2", 500, now)

	all, err := store.SumByUser(ctx, SumFilter{CommunityID: "c1", Limit: 10})
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	want := []model.UserPoints{{UserID: "bob", Points: 250}, {UserID: "alice", Points: 100}, {UserID: "carol", Points: 100}}
	if fmt.Sprint(all) != fmt.Sprint(want) {
		t.Fatalf("sum = %v, want %v", all, want)
	}

	today, err := store.SumByUser(ctx, SumFilter{CommunityID: "c1", Since: now.Add(-time.Hour), Limit: 10})
	if err != nil {
		t.Fatalf("sum today: %v", err)
	}
	if len(today) != 2 || today[0].UserID != "alice" || today[1].UserID != "carol" {
		t.Fatalf("sum today = %v", today)
	}

	everywhere, err := store.SumByUser(ctx, SumFilter{Limit: 1})
	if err != nil {
		t.Fatalf("sum everywhere: %v", err)
	}
	if len(everywhere) != 1 || everywhere[0].UserID != "dave" {
		t.Fatalf("sum everywhere = %v", everywhere)
	}

	if _, err := store.SumByUser(ctx, SumFilter{}); !errors.Is(err, ErrInvalidLimit) {
		t.Fatalf("zero limit err = %v", err)
	}
}

func TestSQLiteStore_TotalsAndRanks(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	putUsers(t, store, "a", "b", "c", "d")
	award(t, store, "b", "c1", 300, time.Now())
	award(t, store, "c", "c1", 300, time.Now())
	award(t, store, "a", "c1", 50, time.Now())

	top, err := store.TopTotals(ctx, 10)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if got := fmt.Sprint(top); got != "[{b 300} {c 300} {a 50} {d 0}]" {
		t.Fatalf("top = %s", got)
	}

	ahead, err := store.CountAhead(ctx, "c")
	if err != nil {
		t.Fatalf("ahead: %v", err)
	}
	if ahead != 1 {
		t.Fatalf("ahead of c = %d, want 1", ahead)
	}

	n, err := store.CountUsers(ctx, 100)
	if err != nil || n != 2 {
		t.Fatalf("count >= 100 = %d, %v; want 2", n, err)
	}

	ranked, err := store.TopByThresholds(ctx, []int64{10, 100, 250, 500}, 3)
	if err != nil {
		t.Fatalf("thresholds: %v", err)
	}
	if len(ranked) != 3 || ranked[0].UserID != "b" || ranked[0].Count != 3 || ranked[2].UserID != "a" || ranked[2].Count != 1 {
		t.Fatalf("ranked = %+v", ranked)
	}
}

func TestSQLiteStore_TopByThresholdsBreaksTiesByTotal(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	putUsers(t, store, "a", "b", "c")
	award(t, store, "a", "c1", 120, time.Now())
	award(t, store, "b", "c1", 240, time.Now())
	award(t, store, "c", "c1", 120, time.Now())

	ranked, err := store.TopByThresholds(ctx, []int64{10, 100, 250}, 10)
	if err != nil {
		t.Fatalf("thresholds: %v", err)
	}
	var ids []string
	for _, r := range ranked {
		ids = append(ids, r.UserID)
	}
	if got := fmt.Sprint(ids); got != "[b a c]" {
		t.Fatalf("order = %s, want [b a c]", got)
	}
}

func TestSQLiteStore_ListTransactionsAndHasAction(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	putUsers(t, store, "u1")

	base := time.Date(2026, time.October, 16, 8, 0, 0, 0, time.UTC)
	for i, key := range []string{"POST_CREATED", "FIRST_POST", "COMMENT_CREATED"} {
		i, key := i, key
		err := store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			_, err := tx.InsertTransaction(ctx, model.PointsTransaction{
				ID: key, UserID: "u1", CommunityID: "c1", Points: 1, Reason: key, ActionKey: key,
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
			})
			return err
		})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	list, err := store.ListTransactions(ctx, TransactionFilter{UserID: "u1", Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "COMMENT_CREATED" || list[1].ID != "FIRST_POST" {
		t.Fatalf("list = %+v", list)
	}

	ok, err := store.HasAction(ctx, "u1", "c1", "POST")
	if err != nil || ok {
		t.Fatalf("HasAction(POST) = %v, %v; substring must not match", ok, err)
	}
	ok, err = store.HasAction(ctx, "u1", "c1", "FIRST_POST")
	if err != nil || !ok {
		t.Fatalf("HasAction(FIRST_POST) = %v, %v", ok, err)
	}
}

func TestSQLiteStore_ConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	putUsers(t, store, "u1")

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
				if _, err := tx.InsertTransaction(ctx, model.PointsTransaction{
					ID: fmt.Sprintf("t-%d", i), UserID: "u1", Points: int64(i%5 + 1), Reason: "x", CreatedAt: time.Now(),
				}); err != nil {
					return err
				}
				_, err := tx.IncrementTotal(ctx, "u1", int64(i%5+1))
				return err
			})
			if err != nil {
				t.Errorf("award %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	u, err := store.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	sums, err := store.SumByUser(ctx, SumFilter{Limit: 1})
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if u.TotalPoints != sums[0].Points || u.TotalPoints != 120 {
		t.Fatalf("total = %d, sum = %d, want 120", u.TotalPoints, sums[0].Points)
	}
}

func TestAsDomainError(t *testing.T) {
	if AsDomainError(nil) != nil {
		t.Fatal("nil should stay nil")
	}
	nf := AsDomainError(fmt.Errorf("lookup: %w", ErrNotFound))
	if !errors.Is(nf, model.ErrUserNotFound) || !errors.Is(nf, ErrNotFound) {
		t.Fatalf("not found mapped to %v", nf)
	}
	other := AsDomainError(errors.New("disk full"))
	if !errors.Is(other, model.ErrPersistence) {
		t.Fatalf("generic error mapped to %v", other)
	}
}
