package loadgen

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/pointsboard/internal/adapters/cache"
	"github.com/okian/pointsboard/internal/adapters/http/api"
	"github.com/okian/pointsboard/internal/adapters/repository"
	service "github.com/okian/pointsboard/internal/app"
	"github.com/okian/pointsboard/pkg/logger"
)

func startService(t *testing.T, queueSize int) string {
	t.Helper()
	ctx := context.Background()
	store, err := repository.OpenSQLite(ctx, filepath.Join(t.TempDir(), "points.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	svc := service.New(store,
		service.WithCache(cache.NewMemory()),
		service.WithWorkerCount(2),
		service.WithQueueSize(queueSize),
		service.WithRetryBackoff(time.Millisecond, 5*time.Millisecond),
	)
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	mux := http.NewServeMux()
	api.NewServer(svc).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		_ = svc.Stop(ctx)
		_ = store.Close()
	})
	return srv.URL
}

func testConfig(url string) *Config {
	return &Config{
		BaseURL:     url,
		Users:       12,
		Awards:      120,
		Communities: 3,
		MaxPoints:   40,
		TopN:        10,
		Workers:     4,
		Timeout:     5 * time.Second,
		Settle:      10 * time.Second,
		Seed:        7,
	}
}

func TestRun(t *testing.T) {
	Convey("Given a running points service", t, func() {
		url := startService(t, 1000)
		ctx := context.Background()

		Convey("A load run converges and verifies", func() {
			stats, err := Run(ctx, testConfig(url), logger.Discard())
			So(err, ShouldBeNil)
			So(stats.UsersRegistered, ShouldEqual, 12)
			So(stats.AwardsSubmitted, ShouldEqual, 120)
			So(stats.AwardsDuplicate, ShouldBeGreaterThan, 0)
			So(stats.AwardsAccepted+stats.AwardsDuplicate, ShouldEqual, 120)
			So(stats.TotalsVerified, ShouldEqual, 12)
			So(stats.BoardEntries, ShouldEqual, 10)
		})
	})

	Convey("Given a service with a tiny queue", t, func() {
		url := startService(t, 1)
		cfg := testConfig(url)
		cfg.Workers = 8

		Convey("Throttled submissions are retried until accepted", func() {
			stats, err := Run(context.Background(), cfg, logger.Discard())
			So(err, ShouldBeNil)
			So(stats.AwardsRejected, ShouldEqual, 0)
			So(stats.TotalsVerified, ShouldEqual, 12)
		})
	})

	Convey("Given no service", t, func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		Convey("The health check fails", func() {
			_, err := Run(context.Background(), testConfig(srv.URL), logger.Discard())
			So(errors.Is(err, ErrUnhealthy), ShouldBeTrue)
		})
	})
}

func TestGenerate(t *testing.T) {
	Convey("Given a seeded config", t, func() {
		cfg := &Config{Users: 5, Awards: 50, MaxPoints: 10, Seed: 42}
		p := generate(cfg)

		Convey("Expected totals count each submission id once", func() {
			So(p.users, ShouldHaveLength, 5)
			So(p.awards, ShouldHaveLength, 50)
			seen := map[string]bool{}
			want := map[string]int64{}
			for _, a := range p.awards {
				So(a.CustomPoints, ShouldBeGreaterThanOrEqualTo, 1)
				So(a.CustomPoints, ShouldBeLessThanOrEqualTo, 10)
				if seen[a.SubmissionID] {
					continue
				}
				seen[a.SubmissionID] = true
				want[a.UserID] += a.CustomPoints
			}
			for id, v := range want {
				So(p.expected[id], ShouldEqual, v)
			}
			So(len(seen), ShouldBeLessThan, 50)
		})

		Convey("No users means no awards", func() {
			p := generate(&Config{Awards: 10, Seed: 1})
			So(p.awards, ShouldBeEmpty)
			So(p.sum(), ShouldBeZeroValue)
		})
	})
}

func TestVerifyBoard(t *testing.T) {
	entry := func(rank int, id string, pts int64) boardEntry {
		return boardEntry{Rank: rank, User: user{ID: id}, Points: pts}
	}
	cases := []struct {
		name  string
		board []boardEntry
		ok    bool
	}{
		{"ordered", []boardEntry{entry(1, "a", 9), entry(2, "b", 5), entry(3, "c", 5)}, true},
		{"tie out of order", []boardEntry{entry(1, "b", 5), entry(2, "a", 5)}, false},
		{"points ascending", []boardEntry{entry(1, "a", 1), entry(2, "b", 5)}, false},
		{"rank gap", []boardEntry{entry(1, "a", 9), entry(3, "b", 5)}, false},
		{"wrong total", []boardEntry{entry(1, "a", 8)}, false},
		{"foreign user", []boardEntry{entry(1, "x", 100), entry(2, "a", 9)}, true},
		{"empty", nil, true},
	}
	expected := map[string]int64{"a": 9, "b": 5, "c": 5}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := verifyBoard(tc.board, expected)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}
