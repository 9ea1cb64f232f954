package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"benirage/core/player"
	"benirage/logger"

	"github.com/redis/go-redis/v9"
)

const (
	storyPlayerKeyPrefix = "story:player:"
	opTimeout            = 5 * time.Second
)

// StoryCache keeps rendered player payloads in Redis.
type StoryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStoryCache creates a cache whose entries expire after ttl.
func NewStoryCache(client *redis.Client, ttl time.Duration) *StoryCache {
	return &StoryCache{client: client, ttl: ttl}
}

func storyPlayerKey(storyID string) string {
	return storyPlayerKeyPrefix + storyID
}

// Get returns the cached payload, or nil with no error on a miss.
func (c *StoryCache) Get(ctx context.Context, storyID string) (*player.Payload, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	key := storyPlayerKey(storyID)
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		logger.Debug("story cache miss", logger.String("key", key))
		return nil, nil
	}
	if err != nil {
		logger.Warn("story cache read failed", logger.String("key", key), logger.ErrorField(err))
		return nil, err
	}

	var p player.Payload
	if err := json.Unmarshal(data, &p); err != nil {
		// a corrupt entry is treated as a miss and dropped
		logger.Warn("story cache entry corrupt", logger.String("key", key), logger.ErrorField(err))
		c.client.Del(ctx, key)
		return nil, nil
	}
	return &p, nil
}

// Set stores p for its story.
func (c *StoryCache) Set(ctx context.Context, p player.Payload) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal player payload: %w", err)
	}
	key := storyPlayerKey(p.Story.ID)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logger.Warn("story cache write failed", logger.String("key", key), logger.ErrorField(err))
		return err
	}
	logger.Debug("story cached",
		logger.String("key", key),
		logger.Int("dataSize", len(data)),
		logger.Duration("expiration", c.ttl))
	return nil
}

// Invalidate drops the cached payload of storyID.
func (c *StoryCache) Invalidate(ctx context.Context, storyID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return c.client.Del(ctx, storyPlayerKey(storyID)).Err()
}
