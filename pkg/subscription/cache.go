package subscription

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultCacheKey = "substate:subscription:current"
	defaultCacheTTL = 5 * time.Minute
)

// CachedStore decorates a Store with a Redis read-through cache for the
// current row. Every write invalidates the cache; a Redis outage degrades
// to the inner store instead of failing.
type CachedStore struct {
	inner  Store
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// CacheOption configures a CachedStore.
type CacheOption func(*CachedStore)

// WithCacheTTL overrides the cache entry lifetime.
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *CachedStore) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheKey overrides the cache key, for multi-tenant deployments.
func WithCacheKey(key string) CacheOption {
	return func(c *CachedStore) {
		if key != "" {
			c.key = key
		}
	}
}

// NewCachedStore wraps a store with a Redis cache. It panics if either
// dependency is nil, as this is a programming error.
func NewCachedStore(inner Store, client redis.UniversalClient, opts ...CacheOption) *CachedStore {
	if inner == nil {
		panic("subscription: inner store is required")
	}
	if client == nil {
		panic("subscription: redis client is required")
	}

	c := &CachedStore{
		inner:  inner,
		client: client,
		key:    defaultCacheKey,
		ttl:    defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CachedStore) Current(ctx context.Context) (*SubscriptionStatus, error) {
	if raw, err := c.client.Get(ctx, c.key).Bytes(); err == nil {
		var row SubscriptionStatus
		if err := json.Unmarshal(raw, &row); err == nil {
			return &row, nil
		}
		// Unreadable entry, drop it and fall through to the store.
		c.client.Del(ctx, c.key)
	}

	row, err := c.inner.Current(ctx)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(row); err == nil {
		c.client.Set(ctx, c.key, raw, c.ttl)
	}
	return row, nil
}

func (c *CachedStore) ByPurchaseToken(ctx context.Context, token string) (*SubscriptionStatus, error) {
	return c.inner.ByPurchaseToken(ctx, token)
}

func (c *CachedStore) Insert(ctx context.Context, row *SubscriptionStatus) (*SubscriptionStatus, error) {
	stored, err := c.inner.Insert(ctx, row)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx)
	return stored, nil
}

func (c *CachedStore) Update(ctx context.Context, row *SubscriptionStatus) error {
	if err := c.inner.Update(ctx, row); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

func (c *CachedStore) UpdateStatus(ctx context.Context, id int64, status int) error {
	if err := c.inner.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

func (c *CachedStore) UpdateExpiry(ctx context.Context, id int64, billing, account time.Time) error {
	if err := c.inner.UpdateExpiry(ctx, id, billing, account); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

func (c *CachedStore) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	count, err := c.inner.MarkExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		c.invalidate(ctx)
	}
	return count, nil
}

func (c *CachedStore) invalidate(ctx context.Context) {
	c.client.Del(ctx, c.key)
}
