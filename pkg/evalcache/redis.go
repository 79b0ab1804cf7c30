package evalcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/flagkit/pkg/evaluation"
)

const defaultKeyPrefix = "evalcache"

// RedisCache is the Cache implementation for multi-instance deployments.
// Every decision lives under its own TTL'd key; a companion set per
// (environment, flag key) tracks which user IDs are cached so Invalidate can
// delete exactly the affected keys without scanning the keyspace.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisCache.
type RedisOption func(*RedisCache)

// WithRedisTTL sets how long cached decisions stay fresh. Panics for
// non-positive durations.
func WithRedisTTL(ttl time.Duration) RedisOption {
	if ttl <= 0 {
		panic("evalcache: TTL must be > 0")
	}
	return func(c *RedisCache) { c.ttl = ttl }
}

// WithKeyPrefix namespaces the cache keys, allowing several caches to share
// one Redis database.
func WithKeyPrefix(prefix string) RedisOption {
	if prefix == "" {
		panic("evalcache: key prefix cannot be empty")
	}
	return func(c *RedisCache) { c.prefix = prefix }
}

// NewRedis creates a Redis-backed evaluation cache on an established client.
// The client's lifecycle belongs to the caller; Close does not close it.
func NewRedis(client *redis.Client, opts ...RedisOption) *RedisCache {
	c := &RedisCache{
		client: client,
		ttl:    DefaultTTL,
		prefix: defaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisCache) entryKey(fp Fingerprint) string {
	return fmt.Sprintf("%s:%s:%s:%s", c.prefix, fp.EnvironmentID, fp.FlagKey, fp.UserID)
}

func (c *RedisCache) indexKey(environmentID uuid.UUID, flagKey string) string {
	return fmt.Sprintf("%s:idx:%s:%s", c.prefix, environmentID, flagKey)
}

// Get returns the cached decision. Expiry is delegated to Redis key TTLs, so
// a present key is by definition fresh.
func (c *RedisCache) Get(ctx context.Context, fp Fingerprint) (evaluation.Decision, bool, error) {
	raw, err := c.client.Get(ctx, c.entryKey(fp)).Bytes()
	if errors.Is(err, redis.Nil) {
		return evaluation.Decision{}, false, nil
	}
	if err != nil {
		return evaluation.Decision{}, false, errors.Join(ErrOperationFailed, err)
	}

	var d evaluation.Decision
	if err := json.Unmarshal(raw, &d); err != nil {
		// A corrupt entry is treated as a miss; it will be overwritten.
		return evaluation.Decision{}, false, nil
	}
	return d, true, nil
}

// Put stores the decision and registers the user in the invalidation set.
// The set's TTL is refreshed on every write so it outlives its newest member.
func (c *RedisCache) Put(ctx context.Context, fp Fingerprint, d evaluation.Decision) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return errors.Join(ErrOperationFailed, err)
	}

	idx := c.indexKey(fp.EnvironmentID, fp.FlagKey)
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, c.entryKey(fp), raw, c.ttl)
	pipe.SAdd(ctx, idx, fp.UserID)
	pipe.Expire(ctx, idx, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Join(ErrOperationFailed, err)
	}
	return nil
}

// Invalidate deletes every cached decision for the (environment, flag key)
// pair along with its index set.
func (c *RedisCache) Invalidate(ctx context.Context, environmentID uuid.UUID, flagKey string) error {
	idx := c.indexKey(environmentID, flagKey)

	userIDs, err := c.client.SMembers(ctx, idx).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return errors.Join(ErrOperationFailed, err)
	}

	keys := make([]string, 0, len(userIDs)+1)
	for _, userID := range userIDs {
		keys = append(keys, c.entryKey(Fingerprint{
			EnvironmentID: environmentID,
			FlagKey:       flagKey,
			UserID:        userID,
		}))
	}
	keys = append(keys, idx)

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Join(ErrOperationFailed, err)
	}
	return nil
}

// Clear drops every key under the cache's prefix using cursor iteration, so
// it never blocks Redis the way KEYS would.
func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return errors.Join(ErrOperationFailed, err)
		}
	}
	if err := iter.Err(); err != nil {
		return errors.Join(ErrOperationFailed, err)
	}
	return nil
}

// Close is a no-op: the Redis client is owned by the caller.
func (c *RedisCache) Close() error { return nil }
