package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"
)

type fixture struct {
	name    string
	cache   Cache
	advance func(time.Duration)
	outage  func()
}

func fixtures(t *testing.T) []fixture {
	mr := miniredis.RunT(t)
	rc := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rc.Close() })

	var (
		mu  sync.Mutex
		now = time.Date(2026, time.October, 16, 9, 0, 0, 0, time.UTC)
	)
	mc := NewMemory(WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}))

	return []fixture{
		{name: "redis", cache: rc, advance: mr.FastForward, outage: mr.Close},
		{name: "memory", cache: mc, advance: func(d time.Duration) {
			mu.Lock()
			now = now.Add(d)
			mu.Unlock()
		}, outage: func() { mc.SetAvailable(false) }},
	}
}

func TestCacheContract(t *testing.T) {
	for _, f := range fixtures(t) {
		f := f
		Convey(fmt.Sprintf("Given a %s cache", f.name), t, func() {
			ctx := context.Background()
			c := f.cache

			Convey("Key/value entries round-trip and expire", func() {
				So(c.Set(ctx, "user:profile:u1", []byte(`{"id":"u1"}`), time.Minute), ShouldBeNil)
				got, err := c.Get(ctx, "user:profile:u1")
				So(err, ShouldBeNil)
				So(string(got), ShouldEqual, `{"id":"u1"}`)

				f.advance(2 * time.Minute)
				_, err = c.Get(ctx, "user:profile:u1")
				So(errors.Is(err, ErrMiss), ShouldBeTrue)
			})

			Convey("Del removes keys", func() {
				So(c.Set(ctx, "a", []byte("1"), 0), ShouldBeNil)
				So(c.Del(ctx, "a", "missing"), ShouldBeNil)
				_, err := c.Get(ctx, "a")
				So(errors.Is(err, ErrMiss), ShouldBeTrue)
			})

			Convey("Sorted sets order by score desc then id asc", func() {
				key := LeaderboardKey("c1", "week", "2026-10-12")
				So(c.SortedSetAdd(ctx, key, time.Minute,
					Member{ID: "carol", Score: 100},
					Member{ID: "bob", Score: 250},
					Member{ID: "alice", Score: 100},
					Member{ID: "dave", Score: 5},
				), ShouldBeNil)

				all, err := c.SortedSetRangeDesc(ctx, key, 0, -1)
				So(err, ShouldBeNil)
				So(all, ShouldResemble, []Member{
					{ID: "bob", Score: 250},
					{ID: "alice", Score: 100},
					{ID: "carol", Score: 100},
					{ID: "dave", Score: 5},
				})

				page, err := c.SortedSetRangeDesc(ctx, key, 1, 2)
				So(err, ShouldBeNil)
				So(page, ShouldResemble, []Member{{ID: "alice", Score: 100}, {ID: "carol", Score: 100}})

				Convey("And re-adding a member moves it", func() {
					So(c.SortedSetAdd(ctx, key, time.Minute, Member{ID: "dave", Score: 300}), ShouldBeNil)
					top, err := c.SortedSetRangeDesc(ctx, key, 0, 0)
					So(err, ShouldBeNil)
					So(top, ShouldResemble, []Member{{ID: "dave", Score: 300}})
				})

				Convey("And a missing set reads as empty", func() {
					none, err := c.SortedSetRangeDesc(ctx, "leaderboard:nope", 0, 9)
					So(err, ShouldBeNil)
					So(none, ShouldBeEmpty)
				})
			})

			Convey("Pattern invalidation only touches matching keys", func() {
				week := LeaderboardKey("c1", "week", "2026-10-12")
				other := LeaderboardKey("c2", "week", "2026-10-12")
				So(c.SortedSetAdd(ctx, week, time.Minute, Member{ID: "u", Score: 1}), ShouldBeNil)
				So(c.Set(ctx, MetaKey(week), []byte("x"), time.Minute), ShouldBeNil)
				So(c.SortedSetAdd(ctx, other, time.Minute, Member{ID: "u", Score: 1}), ShouldBeNil)

				So(c.InvalidatePattern(ctx, CommunityPattern("c1")), ShouldBeNil)

				gone, err := c.SortedSetRangeDesc(ctx, week, 0, -1)
				So(err, ShouldBeNil)
				So(gone, ShouldBeEmpty)
				_, err = c.Get(ctx, MetaKey(week))
				So(errors.Is(err, ErrMiss), ShouldBeTrue)

				kept, err := c.SortedSetRangeDesc(ctx, other, 0, -1)
				So(err, ShouldBeNil)
				So(kept, ShouldHaveLength, 1)
			})

			Convey("An outage is reported, not hidden", func() {
				So(c.Available(ctx), ShouldBeTrue)
				f.outage()
				So(c.Available(ctx), ShouldBeFalse)
				_, err := c.Get(ctx, "anything")
				So(errors.Is(err, ErrUnavailable), ShouldBeTrue)
				So(errors.Is(c.Set(ctx, "k", []byte("v"), 0), ErrUnavailable), ShouldBeTrue)
			})
		})
	}
}

func TestKeys(t *testing.T) {
	cases := []struct {
		got, want string
	}{
		{LeaderboardKey("c1", "day", "2026-10-16"), "leaderboard:community:c1:day:2026-10-16"},
		{LeaderboardKey("", "all", "all"), "leaderboard:all:all:all"},
		{MetaKey(GlobalLeaderboardKey), "leaderboard:global:meta"},
		{ProfileKey("u1"), "user:profile:u1"},
		{CommunityPattern("a*b"), `leaderboard:community:a\*b:*`},
		{EscapeGlob("plain"), "plain"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("got %q, want %q", tc.got, tc.want)
		}
	}
}

func TestSortedSetLargeRange(t *testing.T) {
	s := newSortedSet()
	for i := 0; i < 500; i++ {
		s.add(fmt.Sprintf("u%03d", i), int64(i%50))
	}
	if s.len() != 500 {
		t.Fatalf("len = %d", s.len())
	}
	all := s.rangeDesc(0, -1)
	for i := 1; i < len(all); i++ {
		if less(all[i].Score, all[i].ID, all[i-1].Score, all[i-1].ID) {
			t.Fatalf("out of order at %d: %v before %v", i, all[i-1], all[i])
		}
	}
	page := s.rangeDesc(120, 129)
	if len(page) != 10 || page[0] != all[120] || page[9] != all[129] {
		t.Fatalf("page mismatch: %v", page)
	}
	if got := s.rangeDesc(600, 700); got != nil {
		t.Fatalf("out of range = %v", got)
	}
}
