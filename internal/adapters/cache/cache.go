// Package cache defines the best-effort cache contract used by the
// leaderboard engine, with Redis and in-process implementations.
package cache

import (
	"context"
	"time"
)

// Member is one entry of a sorted set.
type Member struct {
	ID    string
	Score int64
}

// Cache is a lossy, TTL-bounded accelerator. Implementations return
// ErrUnavailable when the backend cannot be reached and ErrMiss for
// absent keys; callers decide whether to fall back.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	// InvalidatePattern deletes every key matching a glob pattern.
	InvalidatePattern(ctx context.Context, pattern string) error

	// SortedSetAdd upserts members into the set at key and refreshes its ttl.
	SortedSetAdd(ctx context.Context, key string, ttl time.Duration, members ...Member) error
	// SortedSetRangeDesc returns members ordered by score desc, then id asc.
	// start and stop are inclusive indexes; negative stop counts from the end.
	SortedSetRangeDesc(ctx context.Context, key string, start, stop int) ([]Member, error)

	// Available reports whether the backend is reachable right now.
	Available(ctx context.Context) bool
	Close() error
}
