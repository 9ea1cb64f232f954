package db

import (
	"context"
	"fmt"
	"net"
	"time"

	"benirage/config"
	"benirage/logger"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis opens a client and pings it.
func ConnectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("connected to redis", logger.String("addr", client.Options().Addr))
	return client, nil
}

// CheckRedis performs a write, read and delete round trip.
func CheckRedis(ctx context.Context, client *redis.Client) error {
	const key = "benirage:healthcheck"
	const value = "ok"

	if err := client.Set(ctx, key, value, time.Minute).Err(); err != nil {
		return fmt.Errorf("set: %w", err)
	}
	got, err := client.Get(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}
	if got != value {
		return fmt.Errorf("get: unexpected value %q", got)
	}
	if err := client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}
