package rules

import (
	"errors"
	"fmt"

	"github.com/okian/pointsboard/internal/domain/model"
)

// ErrUnorderedTiers is returned when tier thresholds are not strictly increasing.
var ErrUnorderedTiers = errors.New("achievement thresholds must be strictly increasing")

var defaultAchievements = []model.Achievement{
	{ID: "newcomer", Name: "Newcomer", Description: "Earned your first 10 points", PointsRequired: 10, BadgeIcon: "seedling"},
	{ID: "contributor", Name: "Contributor", Description: "Reached 100 points", PointsRequired: 100, BadgeIcon: "pencil"},
	{ID: "regular", Name: "Regular", Description: "Reached 250 points", PointsRequired: 250, BadgeIcon: "star"},
	{ID: "expert", Name: "Expert", Description: "Reached 500 points", PointsRequired: 500, BadgeIcon: "medal"},
	{ID: "master", Name: "Master", Description: "Reached 1000 points", PointsRequired: 1000, BadgeIcon: "trophy"},
	{ID: "legend", Name: "Legend", Description: "Reached 2500 points", PointsRequired: 2500, BadgeIcon: "crown"},
}

// Tiers is the immutable, ascending list of achievement definitions.
type Tiers struct {
	list []model.Achievement
	byID map[string]int
}

// DefaultTiers returns the built-in achievement tiers.
func DefaultTiers() *Tiers {
	t, err := NewTiers(defaultAchievements)
	if err != nil {
		panic(err)
	}
	return t
}

// NewTiers validates defs and copies them.
func NewTiers(defs []model.Achievement) (*Tiers, error) {
	t := &Tiers{
		list: make([]model.Achievement, len(defs)),
		byID: make(map[string]int, len(defs)),
	}
	copy(t.list, defs)
	for i, a := range t.list {
		if i > 0 && a.PointsRequired <= t.list[i-1].PointsRequired {
			return nil, fmt.Errorf("%w: %s", ErrUnorderedTiers, a.ID)
		}
		if a.PointsRequired <= 0 {
			return nil, fmt.Errorf("%w: %s has non-positive threshold", ErrUnorderedTiers, a.ID)
		}
		if _, dup := t.byID[a.ID]; dup {
			return nil, fmt.Errorf("duplicate achievement id %q", a.ID)
		}
		t.byID[a.ID] = i
	}
	return t, nil
}

// All returns a copy of the tiers in ascending threshold order.
func (t *Tiers) All() []model.Achievement {
	out := make([]model.Achievement, len(t.list))
	copy(out, t.list)
	return out
}

// Get looks up a tier by id.
func (t *Tiers) Get(id string) (model.Achievement, error) {
	i, ok := t.byID[id]
	if !ok {
		return model.Achievement{}, fmt.Errorf("%w: %s", model.ErrAchievementNotFound, id)
	}
	return t.list[i], nil
}

// Thresholds returns the ascending point thresholds.
func (t *Tiers) Thresholds() []int64 {
	out := make([]int64, len(t.list))
	for i, a := range t.list {
		out[i] = a.PointsRequired
	}
	return out
}

// EarnedCount is the number of tiers with PointsRequired <= points.
func (t *Tiers) EarnedCount(points int64) int {
	n := 0
	for _, a := range t.list {
		if a.PointsRequired > points {
			break
		}
		n++
	}
	return n
}

// Earned returns the tiers held at points.
func (t *Tiers) Earned(points int64) []model.Achievement {
	n := t.EarnedCount(points)
	out := make([]model.Achievement, n)
	copy(out, t.list[:n])
	return out
}

// Next returns the lowest tier above points, if any.
func (t *Tiers) Next(points int64) (model.Achievement, bool) {
	n := t.EarnedCount(points)
	if n == len(t.list) {
		return model.Achievement{}, false
	}
	return t.list[n], true
}
