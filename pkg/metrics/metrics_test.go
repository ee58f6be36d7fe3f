package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager on it", func() {
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then metrics are registered under the service prefix", func() {
				So(manager, ShouldNotBeNil)
				manager.awardsTotal.WithLabelValues(KindAward).Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "points_board_awards_total")
			})
		})
	})
}

func TestAwardMetrics(t *testing.T) {
	Convey("Given the global manager", t, func() {
		before := testutil.ToFloat64(globalManager.awardsTotal.WithLabelValues(KindDailyLogin))
		pointsBefore := testutil.ToFloat64(globalManager.pointsAwarded)

		Convey("When a daily login award is recorded", func() {
			RecordAward(KindDailyLogin, 5)

			Convey("Then the counters move", func() {
				So(testutil.ToFloat64(globalManager.awardsTotal.WithLabelValues(KindDailyLogin)), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.pointsAwarded), ShouldEqual, pointsBefore+5)
			})
		})

		Convey("When duplicates, errors and drops are recorded", func() {
			dup := testutil.ToFloat64(globalManager.awardDuplicates.WithLabelValues(KindFirstTime))
			errs := testutil.ToFloat64(globalManager.awardErrors.WithLabelValues(KindBatch))
			dropped := testutil.ToFloat64(globalManager.awardDropped)

			RecordAwardDuplicate(KindFirstTime)
			RecordAwardError(KindBatch)
			RecordAwardDropped()

			Convey("Then each is counted once", func() {
				So(testutil.ToFloat64(globalManager.awardDuplicates.WithLabelValues(KindFirstTime)), ShouldEqual, dup+1)
				So(testutil.ToFloat64(globalManager.awardErrors.WithLabelValues(KindBatch)), ShouldEqual, errs+1)
				So(testutil.ToFloat64(globalManager.awardDropped), ShouldEqual, dropped+1)
			})
		})
	})
}

func TestCacheAndStoreMetrics(t *testing.T) {
	Convey("Given cache and store recorders", t, func() {
		hits := testutil.ToFloat64(globalManager.cacheRequests.WithLabelValues("community", CacheHit))
		storeErrs := testutil.ToFloat64(globalManager.storeErrors.WithLabelValues("sum_by_user"))

		Convey("When recording", func() {
			RecordCacheResult("community", CacheHit)
			RecordCacheInvalidation("community")
			RecordLeaderboardCompute("community", 3.5)
			RecordStoreLatency("sum_by_user", 1.2)
			RecordStoreError("sum_by_user")
			RecordRankRead()

			Convey("Then labelled counters reflect it", func() {
				So(testutil.ToFloat64(globalManager.cacheRequests.WithLabelValues("community", CacheHit)), ShouldEqual, hits+1)
				So(testutil.ToFloat64(globalManager.storeErrors.WithLabelValues("sum_by_user")), ShouldEqual, storeErrs+1)
			})
		})
	})
}

func TestOperationalMetrics(t *testing.T) {
	Convey("Given operational recorders", t, func() {
		Convey("Then none of them panic", func() {
			So(func() {
				UpdateQueueSize(10)
				UpdateQueueCapacity(100)
				UpdateQueueUtilization(0.1)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				RecordQueueProcessingLatency(2)
				UpdateWorkerCount(4)
				UpdateWorkerActiveCount(4)
				RecordWorkerProcessingLatency(3)
				RecordWorkerError()
				RecordWorkerRetry()
				RecordHTTPRequest("/leaderboard", "GET", "200")
				RecordHTTPRequestDuration("/leaderboard", "GET", "200", 1.5)
				RecordErrorByEndpoint("/awards", "POST", "400")
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.3)
				UpdateTotalUsers(3)
			}, ShouldNotPanic)
			So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 10)
			So(testutil.ToFloat64(globalManager.totalUsers), ShouldEqual, 3)
		})

		Convey("And the shared registry is exposed", func() {
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
