package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPingTimeout = 250 * time.Millisecond
	scanCount          = 200
)

// RedisOption configures a RedisCache.
type RedisOption func(*RedisCache)

// WithPingTimeout bounds the reachability probe used by Available.
func WithPingTimeout(d time.Duration) RedisOption {
	return func(c *RedisCache) {
		if d > 0 {
			c.pingTimeout = d
		}
	}
}

// RedisCache implements Cache on Redis. Sorted sets store negated scores
// so an ascending ZRANGE yields score desc with members ascending on ties.
type RedisCache struct {
	client      redis.UniversalClient
	pingTimeout time.Duration
}

// NewRedis wraps an existing client.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *RedisCache {
	c := &RedisCache{client: client, pingTimeout: defaultPingTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DialRedis builds a client for addr. The connection is lazy; an
// unreachable server surfaces later as ErrUnavailable.
func DialRedis(addr, password string, db int, opts ...RedisOption) *RedisCache {
	return NewRedis(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), opts...)
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, wrap(err)
	}
	return b, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return wrap(c.client.Set(ctx, key, value, ttl).Err())
}

func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return wrap(c.client.Del(ctx, keys...).Err())
}

func (c *RedisCache) InvalidatePattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return wrap(err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return wrap(err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// SortedSetAdd stores scores negated so an ascending ZRANGE yields points
// descending with equal scores ordered by member ascending.
func (c *RedisCache) SortedSetAdd(ctx context.Context, key string, ttl time.Duration, members ...Member) error {
	if len(members) == 0 {
		return nil
	}
	zs := make([]redis.Z, len(members))
	for i, m := range members {
		zs[i] = redis.Z{Score: -float64(m.Score), Member: m.ID}
	}
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, key, zs...)
		if ttl > 0 {
			p.Expire(ctx, key, ttl)
		}
		return nil
	})
	return wrap(err)
}

func (c *RedisCache) SortedSetRangeDesc(ctx context.Context, key string, start, stop int) ([]Member, error) {
	zs, err := c.client.ZRangeWithScores(ctx, key, int64(start), int64(stop)).Result()
	if err != nil {
		return nil, wrap(err)
	}
	out := make([]Member, 0, len(zs))
	for _, z := range zs {
		id, ok := z.Member.(string)
		if !ok {
			id = fmt.Sprint(z.Member)
		}
		out = append(out, Member{ID: id, Score: int64(-z.Score)})
	}
	return out, nil
}

func (c *RedisCache) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.pingTimeout)
	defer cancel()
	return c.client.Ping(ctx).Err() == nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

var _ Cache = (*RedisCache)(nil)
