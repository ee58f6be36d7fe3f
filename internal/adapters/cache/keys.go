package cache

import "strings"

const (
	leaderboardPrefix = "leaderboard:"
	profilePrefix     = "user:profile:"
	metaSuffix        = ":meta"
)

// GlobalLeaderboardKey holds the all-time total ranking.
const GlobalLeaderboardKey = leaderboardPrefix + "global"

// LeaderboardKey names the sorted set for a community (or every community
// when communityID is empty), timeframe and window start.
func LeaderboardKey(communityID, timeframe, window string) string {
	if communityID == "" {
		return leaderboardPrefix + "all:" + timeframe + ":" + window
	}
	return leaderboardPrefix + "community:" + communityID + ":" + timeframe + ":" + window
}

// MetaKey names the companion key describing how a sorted set was filled.
func MetaKey(setKey string) string { return setKey + metaSuffix }

// ProfileKey names a cached user profile.
func ProfileKey(userID string) string { return profilePrefix + userID }

// CommunityPattern matches every leaderboard key of one community.
func CommunityPattern(communityID string) string {
	return leaderboardPrefix + "community:" + EscapeGlob(communityID) + ":*"
}

// AllCommunitiesPattern matches every cross-community windowed leaderboard.
func AllCommunitiesPattern() string { return leaderboardPrefix + "all:*" }

// EscapeGlob quotes glob metacharacters so s matches literally.
func EscapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
