package directory

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	id "ezweb/pkg/domain"
)

const (
	defaultOwnerTTL      = 5 * time.Minute
	defaultLookupTimeout = 3 * time.Second
	ownerKeyPrefix       = "ezweb:site-owner:"
)

// Source is the directory behind the cache.
type Source interface {
	OwnerOf(ctx context.Context, siteID id.SiteID) (id.UserID, error)
}

// RedisCache is a read-through owner cache. Concurrent misses for the same
// site collapse into one source lookup. Only positive answers are cached, so
// a newly created site is visible immediately. Redis failures fall back to
// the source.
//
// The shared lookup runs detached from any single caller, bounded by its
// own timeout. A caller that gives up returns its ctx error without failing
// the others waiting on the same site.
type RedisCache struct {
	client        redis.Cmdable
	source        Source
	ttl           time.Duration
	lookupTimeout time.Duration
	logger        *slog.Logger
	group         singleflight.Group
}

type CacheOption func(*RedisCache)

func WithTTL(ttl time.Duration) CacheOption {
	return func(c *RedisCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLookupTimeout bounds one shared source lookup.
func WithLookupTimeout(timeout time.Duration) CacheOption {
	return func(c *RedisCache) {
		if timeout > 0 {
			c.lookupTimeout = timeout
		}
	}
}

func WithLogger(logger *slog.Logger) CacheOption {
	return func(c *RedisCache) {
		c.logger = logger
	}
}

func NewRedisCache(client redis.Cmdable, source Source, opts ...CacheOption) *RedisCache {
	c := &RedisCache{client: client, source: source, ttl: defaultOwnerTTL, lookupTimeout: defaultLookupTimeout}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

func ownerKey(siteID id.SiteID) string {
	return ownerKeyPrefix + siteID.String()
}

func (c *RedisCache) OwnerOf(ctx context.Context, siteID id.SiteID) (id.UserID, error) {
	key := ownerKey(siteID)

	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if owner, perr := strconv.ParseInt(cached, 10, 64); perr == nil {
			return id.UserID(owner), nil
		}
		c.logger.WarnContext(ctx, "discarding malformed cached owner", "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "site owner cache unavailable", "error", err)
	}

	result := c.group.DoChan(key, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.lookupTimeout)
		defer cancel()

		owner, err := c.source.OwnerOf(lookupCtx, siteID)
		if err != nil {
			return id.UserID(0), err
		}
		if err := c.client.Set(lookupCtx, key, owner.String(), c.ttl).Err(); err != nil {
			c.logger.WarnContext(lookupCtx, "failed to cache site owner", "error", err)
		}
		return owner, nil
	})

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(id.UserID), nil
	}
}

// Invalidate drops the cached owner, for example after a site transfer.
func (c *RedisCache) Invalidate(ctx context.Context, siteID id.SiteID) error {
	return c.client.Del(ctx, ownerKey(siteID)).Err()
}
