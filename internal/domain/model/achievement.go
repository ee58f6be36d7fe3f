package model

// Achievement is a static tier definition.
type Achievement struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	PointsRequired int64  `json:"points_required"`
	BadgeIcon      string `json:"badge_icon"`
}

// AchievementProgress pairs a tier with a user's progress toward it.
// Progress is capped at 1.
type AchievementProgress struct {
	Achievement Achievement `json:"achievement"`
	Progress    float64     `json:"progress"`
	IsEarned    bool        `json:"is_earned"`
}

// Milestones summarises earned tiers and the next one.
type Milestones struct {
	CurrentPoints      int64         `json:"current_points"`
	EarnedAchievements []Achievement `json:"earned_achievements"`
	NextAchievement    *Achievement  `json:"next_achievement,omitempty"`
	PointsToNext       int64         `json:"points_to_next"`
	ProgressToNext     float64       `json:"progress_to_next"`
}

// AchievementRanking is one row of the achievement-count leaderboard.
type AchievementRanking struct {
	Rank             int   `json:"rank"`
	User             User  `json:"user"`
	AchievementCount int   `json:"achievement_count"`
	TotalPoints      int64 `json:"total_points"`
}

// AchievementStat reports how many users hold a tier.
type AchievementStat struct {
	Achievement Achievement `json:"achievement"`
	EarnedBy    int         `json:"earned_by"`
	Percentage  float64     `json:"percentage"`
}
