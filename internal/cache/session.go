package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smartdiet/smartdiet/internal/model"
)

const (
	sessionCachePrefix     = "session:ctx:"
	sessionUserIndexPrefix = "session:user:"

	// SessionCacheTTL caps how long an auth context is served from Redis.
	SessionCacheTTL = 5 * time.Minute
)

// sessionCacheTTL never outlives the session itself.
func sessionCacheTTL(expiresAt, now time.Time) time.Duration {
	remaining := expiresAt.Sub(now)
	if remaining < SessionCacheTTL {
		return remaining
	}
	return SessionCacheTTL
}

// GetAuthContext returns the cached auth context for a token cache key.
// Returns ErrCacheMiss when absent, expired or corrupted.
func (c *Cache) GetAuthContext(ctx context.Context, cacheKey string) (*model.AuthContext, error) {
	data, err := c.client.Get(ctx, sessionCachePrefix+cacheKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("get auth context: %w", err)
	}

	var auth model.AuthContext
	if err := json.Unmarshal(data, &auth); err != nil {
		return nil, ErrCacheMiss
	}
	if !auth.ExpiresAt.After(time.Now()) {
		return nil, ErrCacheMiss
	}
	return &auth, nil
}

// SetAuthContext caches an auth context and indexes the key under its user
// so every session of that user can be dropped at once.
func (c *Cache) SetAuthContext(ctx context.Context, cacheKey string, auth *model.AuthContext) error {
	ttl := sessionCacheTTL(auth.ExpiresAt, time.Now())
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(auth)
	if err != nil {
		return fmt.Errorf("marshal auth context: %w", err)
	}

	indexKey := sessionUserIndexPrefix + auth.UserID
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, sessionCachePrefix+cacheKey, data, ttl)
	pipe.SAdd(ctx, indexKey, cacheKey)
	pipe.Expire(ctx, indexKey, SessionCacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache auth context: %w", err)
	}
	return nil
}

// DeleteAuthContext removes one cached auth context. Used on logout.
func (c *Cache) DeleteAuthContext(ctx context.Context, cacheKey string) error {
	return c.client.Del(ctx, sessionCachePrefix+cacheKey).Err()
}

// InvalidateUserSessions drops every cached auth context of a user, so
// role or verification changes apply on the next request.
func (c *Cache) InvalidateUserSessions(ctx context.Context, userID string) error {
	indexKey := sessionUserIndexPrefix + userID

	members, err := c.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("list user sessions: %w", err)
	}

	keys := make([]string, 0, len(members)+1)
	for _, m := range members {
		keys = append(keys, sessionCachePrefix+m)
	}
	keys = append(keys, indexKey)

	return c.client.Del(ctx, keys...).Err()
}
