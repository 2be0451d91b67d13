// Package cache provides the Redis access layer: session cache, rate
// limits, assistant results and chat fan-out.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned when a key is absent or unreadable.
var ErrCacheMiss = errors.New("cache miss")

// Cache wraps the shared Redis client. The meal log stream workers borrow
// the same client through Client.
type Cache struct {
	client *redis.Client
}

// Option adjusts the client before it connects.
type Option func(*redis.Options)

// WithPoolSize overrides the connection pool size. Each open chat stream
// pins one connection for its pub/sub subscription.
func WithPoolSize(n int) Option {
	return func(o *redis.Options) {
		if n > 0 {
			o.PoolSize = n
		}
	}
}

// WithClientName tags connections in CLIENT LIST output.
func WithClientName(name string) Option {
	return func(o *redis.Options) { o.ClientName = name }
}

// New parses redisURL, applies opts and checks the server answers.
func New(ctx context.Context, redisURL string, opts ...Option) (*Cache, error) {
	o, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	o.PoolSize = 32
	o.MinIdleConns = 2
	o.PoolTimeout = 4 * time.Second
	o.ConnMaxIdleTime = 5 * time.Minute
	o.ClientName = "smartdiet-api"
	for _, opt := range opts {
		opt(o)
	}

	client := redis.NewClient(o)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Cache{client: client}, nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Ping backs the readiness probe. A drained pool counts as unhealthy so
// the instance stops taking traffic before requests start timing out.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return err
	}
	if s := c.client.PoolStats(); s.Timeouts > 0 && s.IdleConns == 0 && s.TotalConns >= uint32(c.client.Options().PoolSize) {
		return fmt.Errorf("redis pool exhausted (%d conns, %d timeouts)", s.TotalConns, s.Timeouts)
	}
	return nil
}

// Close releases every pooled connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client exposes the raw client to the meal log stream.
func (c *Cache) Client() *redis.Client {
	return c.client
}
