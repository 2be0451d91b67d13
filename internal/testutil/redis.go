package testutil

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

// FreshRedis empties the selected Redis database.
func FreshRedis(t testing.TB, client *redis.Client) {
	t.Helper()
	if err := client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
}
