package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/reportai-inc/reportai-engine/pkg/config"
	"github.com/reportai-inc/reportai-engine/pkg/retry"
)

// NewRedisClient creates a new Redis client and verifies the connection
// with a ping.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}
