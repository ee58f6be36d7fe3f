package leaderboard

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/okian/pointsboard/internal/adapters/cache"
	"github.com/okian/pointsboard/internal/domain/model"
	"github.com/okian/pointsboard/pkg/logger"
	"github.com/okian/pointsboard/pkg/metrics"
)

// setMeta describes a written-through sorted set. Depth is how many members
// were requested from the store; Count how many it returned. Count < Depth
// means the set holds the whole ranking.
type setMeta struct {
	Depth int `json:"depth"`
	Count int `json:"count"`
}

// session wraps the cache for one read or invalidation. After the first
// unavailability error it stops touching the cache.
type session struct {
	c     cache.Cache
	log   logger.Logger
	scope string
	down  bool
}

func (e *Engine) session(scope string) *session {
	return &session{c: e.cache, log: e.log, scope: scope, down: e.cache == nil}
}

func (s *session) usable() bool { return !s.down }

// fail records a swallowed cache error.
func (s *session) fail(ctx context.Context, op, key string, err error) {
	if errors.Is(err, cache.ErrUnavailable) {
		s.down = true
	}
	metrics.RecordCacheResult(s.scope, metrics.CacheError)
	s.log.Warn(ctx, "cache operation failed",
		logger.String("op", op),
		logger.String("scope", s.scope),
		logger.String("key", key),
		logger.Error(err))
}

// readRange serves the top limit members of key, reporting false when the
// cache cannot answer completely.
func (s *session) readRange(ctx context.Context, key string, limit int) ([]model.UserPoints, bool) {
	if !s.usable() {
		return nil, false
	}
	raw, err := s.c.Get(ctx, cache.MetaKey(key))
	if errors.Is(err, cache.ErrMiss) {
		metrics.RecordCacheResult(s.scope, metrics.CacheMiss)
		return nil, false
	}
	if err != nil {
		s.fail(ctx, "get_meta", key, err)
		return nil, false
	}
	var meta setMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		s.fail(ctx, "decode_meta", key, err)
		return nil, false
	}
	if limit > meta.Depth && meta.Count >= meta.Depth {
		metrics.RecordCacheResult(s.scope, metrics.CacheMiss)
		return nil, false
	}
	want := min(limit, meta.Count)
	if want == 0 {
		metrics.RecordCacheResult(s.scope, metrics.CacheHit)
		return []model.UserPoints{}, true
	}
	members, err := s.c.SortedSetRangeDesc(ctx, key, 0, want-1)
	if err != nil {
		s.fail(ctx, "range", key, err)
		return nil, false
	}
	if len(members) != want {
		// Set expired or was invalidated after the meta was read.
		metrics.RecordCacheResult(s.scope, metrics.CacheMiss)
		return nil, false
	}
	out := make([]model.UserPoints, len(members))
	for i, m := range members {
		out[i] = model.UserPoints{UserID: m.ID, Points: m.Score}
	}
	metrics.RecordCacheResult(s.scope, metrics.CacheHit)
	return out, true
}

// writeRange replaces the cached set at key with points computed for depth.
func (s *session) writeRange(ctx context.Context, key string, points []model.UserPoints, depth int, e *Engine) {
	if !s.usable() {
		return
	}
	if err := s.c.Del(ctx, key, cache.MetaKey(key)); err != nil {
		s.fail(ctx, "del", key, err)
		return
	}
	if len(points) > 0 {
		members := make([]cache.Member, len(points))
		for i, p := range points {
			members[i] = cache.Member{ID: p.UserID, Score: p.Points}
		}
		if err := s.c.SortedSetAdd(ctx, key, e.ttl, members...); err != nil {
			s.fail(ctx, "zadd", key, err)
			return
		}
	}
	raw, err := json.Marshal(setMeta{Depth: depth, Count: len(points)})
	if err != nil {
		s.fail(ctx, "encode_meta", key, err)
		return
	}
	if err := s.c.Set(ctx, cache.MetaKey(key), raw, e.ttl); err != nil {
		s.fail(ctx, "set_meta", key, err)
	}
}

// profiles resolves ids to users, preferring cached profiles and caching
// the ones loaded from the store.
func (e *Engine) profiles(ctx context.Context, s *session, ids []string) (map[string]model.User, error) {
	out := make(map[string]model.User, len(ids))
	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		if !s.usable() {
			missing = append(missing, id)
			continue
		}
		raw, err := s.c.Get(ctx, cache.ProfileKey(id))
		if err != nil {
			if !errors.Is(err, cache.ErrMiss) {
				s.fail(ctx, "get_profile", cache.ProfileKey(id), err)
			}
			missing = append(missing, id)
			continue
		}
		var u model.User
		if err := json.Unmarshal(raw, &u); err != nil {
			s.fail(ctx, "decode_profile", cache.ProfileKey(id), err)
			missing = append(missing, id)
			continue
		}
		out[id] = u
	}
	if len(missing) == 0 {
		return out, nil
	}
	loaded, err := e.store.GetUsers(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, u := range loaded {
		out[id] = u
		if !s.usable() {
			continue
		}
		raw, err := json.Marshal(u)
		if err != nil {
			continue
		}
		if err := s.c.Set(ctx, cache.ProfileKey(id), raw, e.ttl); err != nil {
			s.fail(ctx, "set_profile", cache.ProfileKey(id), err)
		}
	}
	return out, nil
}
