package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const assistantKeyPrefix = "assistant:"

// GetAssistantResult decodes a cached assistant answer into dst.
// Returns ErrCacheMiss when absent or when the entry no longer decodes.
func (c *Cache) GetAssistantResult(ctx context.Context, key string, dst any) error {
	data, err := c.client.Get(ctx, assistantKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return fmt.Errorf("get assistant result: %w", err)
	}
	if err := decodeValue(data, dst); err != nil {
		return ErrCacheMiss
	}
	return nil
}

// SetAssistantResult stores an assistant answer for ttl.
func (c *Cache) SetAssistantResult(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := encodeValue(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, assistantKeyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("set assistant result: %w", err)
	}
	return nil
}
