package model

// Timeframe selects the window a community leaderboard aggregates over.
type Timeframe string

const (
	TimeframeAll   Timeframe = "all"
	TimeframeDay   Timeframe = "day"
	TimeframeWeek  Timeframe = "week"
	TimeframeMonth Timeframe = "month"
)

// Valid reports whether t is a known timeframe.
func (t Timeframe) Valid() bool {
	switch t {
	case TimeframeAll, TimeframeDay, TimeframeWeek, TimeframeMonth:
		return true
	}
	return false
}

// UserPoints is an aggregated (user, points) pair.
type UserPoints struct {
	UserID string
	Points int64
}

// LeaderboardEntry is one ranked row. Points is the score the ranking was
// computed from (windowed for community boards); User.TotalPoints is always
// the all-time total and must not be read as the ranking score.
type LeaderboardEntry struct {
	Rank   int   `json:"rank"`
	User   User  `json:"user"`
	Points int64 `json:"points"`
}

// UserRank is a single user's position on the global board.
type UserRank struct {
	Rank   int   `json:"rank"`
	User   User  `json:"user"`
	Points int64 `json:"points"`
}
