// Package cache implements the ephemeral execution-counter projection on
// Redis. It is the only mutable state shared by concurrently running
// workers for one execution; every mutation goes through the store's
// native atomic operations, never read-modify-write at the application
// level.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 10 * time.Second

// NewRedisClient builds a Redis client from a URL and verifies
// connectivity before returning it.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging Redis server: %w", err)
	}

	return client, nil
}
