package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/pointsboard/internal/config"
	"github.com/okian/pointsboard/pkg/logger"
)

func init() {
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		panic(err)
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.New()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "points.db")
	cfg.WorkerCount = 1
	cfg.PointRules = map[string]int64{"POST_CREATED": 12}
	return cfg
}

func post(h http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
	return w
}

func TestBuild(t *testing.T) {
	convey.Convey("Given a configuration", t, func() {
		ctx := context.Background()
		cfg := testConfig(t)

		convey.Convey("When built with the in-process cache", func() {
			a, err := build(ctx, cfg, logger.Get())
			convey.So(err, convey.ShouldBeNil)
			defer a.close(ctx)
			convey.So(a.svc.Start(ctx), convey.ShouldBeNil)
			defer func() { _ = a.svc.Stop(ctx) }()

			convey.Convey("Then the routes serve the wired service", func() {
				w := post(a.handler, "/users", `{"id":"alice","username":"alice"}`)
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)

				_, err := a.svc.AwardForAction(ctx, "alice", "c1", "POST_CREATED", "p1", nil)
				convey.So(err, convey.ShouldBeNil)

				w = get(a.handler, "/leaderboard/global?limit=5")
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Body.String(), convey.ShouldContainSubstring, `"points":12`)

				convey.So(get(a.handler, "/openapi.yaml").Code, convey.ShouldEqual, http.StatusOK)
				convey.So(get(a.handler, "/healthz").Code, convey.ShouldEqual, http.StatusOK)
			})
		})

		convey.Convey("When built against Redis", func() {
			mr := miniredis.RunT(t)
			cfg.RedisAddr = mr.Addr()

			a, err := build(ctx, cfg, logger.Get())
			convey.So(err, convey.ShouldBeNil)
			defer a.close(ctx)

			convey.So(a.cache.Available(ctx), convey.ShouldBeTrue)
			w := post(a.handler, "/users", `{"id":"bob"}`)
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			w = get(a.handler, "/leaderboard?limit=5")
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("When the timezone is invalid", func() {
			cfg.Timezone = "Nowhere/Special"
			_, err := build(ctx, cfg, logger.Get())
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given a built application", t, func() {
		ctx := context.Background()
		a, err := build(ctx, testConfig(t), logger.Get())
		convey.So(err, convey.ShouldBeNil)
		defer a.close(ctx)

		convey.Convey("Then the updaters run without panicking", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
			convey.So(func() { updateServiceMetrics(ctx, a.svc) }, convey.ShouldNotPanic)
		})

		convey.Convey("Then the loops stop with their context", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			startSystemMetricsUpdater(cctx)
			startServiceMetricsUpdater(cctx, a.svc)
		})
	})
}
