package cache

import (
	"context"
	"fmt"
	"path"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *MemoryCache) {
		if now != nil {
			c.now = now
		}
	}
}

type entry struct {
	value     []byte
	set       *sortedSet
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryCache is an in-process Cache used when no Redis address is
// configured. It can be switched off to simulate an outage.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
	down    atomic.Bool
}

// NewMemory creates an empty MemoryCache.
func NewMemory(opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetAvailable toggles simulated availability.
func (c *MemoryCache) SetAvailable(ok bool) { c.down.Store(!ok) }

func (c *MemoryCache) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if c.down.Load() {
		return ErrUnavailable
	}
	return nil
}

// lookup returns the live entry for key, dropping it if expired. Caller holds mu.
func (c *MemoryCache) lookup(key string) (*entry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if e.expired(c.now()) {
		delete(c.entries, key)
		return nil, false
	}
	return e, true
}

func (c *MemoryCache) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lookup(key)
	if !ok || e.set != nil {
		return nil, ErrMiss
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	v := make([]byte, len(value))
	copy(v, value)
	c.mu.Lock()
	c.entries[key] = &entry{value: v, expiresAt: c.expiry(ttl)}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Del(ctx context.Context, keys ...string) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) InvalidatePattern(ctx context.Context, pattern string) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if ok, _ := path.Match(pattern, k); ok {
			delete(c.entries, k)
		}
	}
	return nil
}

func (c *MemoryCache) SortedSetAdd(ctx context.Context, key string, ttl time.Duration, members ...Member) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lookup(key)
	if !ok || e.set == nil {
		e = &entry{set: newSortedSet()}
		c.entries[key] = e
	}
	for _, m := range members {
		e.set.add(m.ID, m.Score)
	}
	e.expiresAt = c.expiry(ttl)
	return nil
}

func (c *MemoryCache) SortedSetRangeDesc(ctx context.Context, key string, start, stop int) ([]Member, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lookup(key)
	if !ok || e.set == nil {
		return nil, nil
	}
	return e.set.rangeDesc(start, stop), nil
}

func (c *MemoryCache) Available(ctx context.Context) bool {
	return c.check(ctx) == nil
}

// Close drops every entry.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.mu.Unlock()
	return nil
}

var _ Cache = (*MemoryCache)(nil)
