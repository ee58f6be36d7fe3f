package achievement

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/pointsboard/internal/adapters/repository"
	"github.com/okian/pointsboard/internal/domain/ledger"
	"github.com/okian/pointsboard/internal/domain/model"
	"github.com/okian/pointsboard/internal/domain/rules"
)

func newStore(t *testing.T, users ...string) *repository.SQLiteStore {
	t.Helper()
	store, err := repository.OpenSQLite(context.Background(), t.TempDir()+"/achievements.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	for _, id := range users {
		if err := store.PutUser(context.Background(), model.User{ID: id, Username: id}); err != nil {
			t.Fatalf("put user: %v", err)
		}
	}
	return store
}

func award(l *ledger.Ledger, userID string, points int64) {
	_, err := l.Award(context.Background(), model.PointsUpdate{UserID: userID, CommunityID: "C", Points: points, Reason: "test"})
	So(err, ShouldBeNil)
}

func ids(as []model.Achievement) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.ID
	}
	return out
}

func TestMilestonesScenario(t *testing.T) {
	Convey("Given user U who earned 10, 5, 2 and 15 points", t, func() {
		ctx := context.Background()
		store := newStore(t, "U")
		l := ledger.New(store)
		for _, action := range []string{
			rules.ActionPostCreated, rules.ActionCommentCreated, rules.ActionPostLiked, rules.ActionLessonCompleted,
		} {
			_, err := l.AwardForAction(ctx, "U", "C", action, "", nil)
			So(err, ShouldBeNil)
		}
		e := New(store)

		Convey("When reading milestones", func() {
			m, err := e.GetUserMilestones(ctx, "U")

			Convey("Then newcomer is earned and contributor is next", func() {
				So(err, ShouldBeNil)
				So(m.CurrentPoints, ShouldEqual, 32)
				So(ids(m.EarnedAchievements), ShouldResemble, []string{"newcomer"})
				So(m.NextAchievement, ShouldNotBeNil)
				So(m.NextAchievement.ID, ShouldEqual, "contributor")
				So(m.PointsToNext, ShouldEqual, 68)
				So(m.ProgressToNext, ShouldAlmostEqual, 0.32, 0.0001)
			})
		})

		Convey("When reading progress", func() {
			p, err := e.GetUserAchievementProgress(ctx, "U")

			Convey("Then earned tiers are capped at 1", func() {
				So(err, ShouldBeNil)
				So(p, ShouldHaveLength, 6)
				So(p[0].IsEarned, ShouldBeTrue)
				So(p[0].Progress, ShouldEqual, 1)
				So(p[1].IsEarned, ShouldBeFalse)
				So(p[1].Progress, ShouldAlmostEqual, 0.32, 0.0001)
			})
		})

		Convey("Unknown users are reported", func() {
			_, err := e.GetUserMilestones(ctx, "ghost")
			So(errors.Is(err, model.ErrUserNotFound), ShouldBeTrue)
			_, err = e.GetUserAchievementProgress(ctx, "ghost")
			So(errors.Is(err, model.ErrUserNotFound), ShouldBeTrue)
		})
	})
}

func TestPureDerivations(t *testing.T) {
	tiers := rules.DefaultTiers()

	Convey("Earned sets are monotonic in points", t, func() {
		points := []int64{0, 1, 9, 10, 11, 99, 100, 249, 250, 499, 500, 999, 1000, 2499, 2500, 10000}
		for i := 1; i < len(points); i++ {
			lower := ids(tiers.Earned(points[i-1]))
			higher := ids(tiers.Earned(points[i]))
			So(len(lower), ShouldBeLessThanOrEqualTo, len(higher))
			So(higher[:len(lower)], ShouldResemble, lower)
		}
	})

	Convey("With every tier earned there is no next achievement", t, func() {
		m := MilestonesFor(tiers, 5000)
		So(m.NextAchievement, ShouldBeNil)
		So(m.PointsToNext, ShouldEqual, 0)
		So(m.ProgressToNext, ShouldEqual, 1)
		So(m.EarnedAchievements, ShouldHaveLength, 6)
	})

	Convey("Progress never exceeds 1 or drops below 0", t, func() {
		for _, p := range Progress(tiers, 100000) {
			So(p.Progress, ShouldEqual, 1)
			So(p.IsEarned, ShouldBeTrue)
		}
		for _, p := range Progress(tiers, 0) {
			So(p.Progress, ShouldEqual, 0)
			So(p.IsEarned, ShouldBeFalse)
		}
	})
}

func TestAchievementLeaderboardAndStats(t *testing.T) {
	Convey("Given users at different tiers", t, func() {
		ctx := context.Background()
		store := newStore(t, "a", "b", "c", "d")
		l := ledger.New(store)
		award(l, "a", 260) // newcomer, contributor, regular
		award(l, "c", 300)
		award(l, "b", 15) // newcomer
		e := New(store)

		Convey("The achievement leaderboard ranks by tier count then total", func() {
			board, err := e.GetAchievementLeaderboard(ctx, 10)
			So(err, ShouldBeNil)
			So(board, ShouldHaveLength, 3)
			So(board[0].User.ID, ShouldEqual, "c")
			So(board[0].AchievementCount, ShouldEqual, 3)
			So(board[0].TotalPoints, ShouldEqual, 300)
			So(board[1].User.ID, ShouldEqual, "a")
			So(board[1].AchievementCount, ShouldEqual, 3)
			So(board[2].User.ID, ShouldEqual, "b")
			So(board[2].Rank, ShouldEqual, 3)
			So(board[2].TotalPoints, ShouldEqual, 15)

			_, err = e.GetAchievementLeaderboard(ctx, 0)
			So(errors.Is(err, model.ErrInvalidLimit), ShouldBeTrue)
		})

		Convey("Stats count holders as a share of all users", func() {
			stats, err := e.GetAchievementStats(ctx)
			So(err, ShouldBeNil)
			So(stats, ShouldHaveLength, 6)
			So(stats[0].Achievement.ID, ShouldEqual, "newcomer")
			So(stats[0].EarnedBy, ShouldEqual, 3)
			So(stats[0].Percentage, ShouldEqual, 75)
			So(stats[2].EarnedBy, ShouldEqual, 2)
			So(stats[2].Percentage, ShouldEqual, 50)
			So(stats[5].EarnedBy, ShouldEqual, 0)
		})

		Convey("Lookups by id", func() {
			a, err := e.GetAchievement("expert")
			So(err, ShouldBeNil)
			So(a.PointsRequired, ShouldEqual, 500)
			_, err = e.GetAchievement("nope")
			So(errors.Is(err, model.ErrAchievementNotFound), ShouldBeTrue)
			So(e.Achievements(), ShouldHaveLength, 6)
		})
	})
}
