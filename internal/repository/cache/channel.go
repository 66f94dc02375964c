// Package cache puts read-through caches in front of the Postgres stores.
// Both caches hold only rows that exist; misses are never cached so a channel
// or user created a moment ago is visible on the next lookup.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/strangersmeet/internal/models"
	"github.com/lalith-99/strangersmeet/internal/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelKeyPrefix = "strangersmeet:channel:"

// redisClient is the subset of *redis.Client the cache uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// ChannelCache serves channel rows from Redis, falling back to the wrapped
// repository on a miss. Every socket connect resolves its channel's group,
// so this keeps reconnect storms off Postgres.
//
// Redis being down is not an error for callers: the lookup degrades to the
// repository and the failure is logged.
type ChannelCache struct {
	next   repository.ChannelRepository
	rdb    redisClient
	ttl    time.Duration
	logger *zap.Logger
}

func NewChannelCache(next repository.ChannelRepository, rdb redisClient, ttl time.Duration, logger *zap.Logger) *ChannelCache {
	return &ChannelCache{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func (c *ChannelCache) GetByID(ctx context.Context, channelID uuid.UUID) (*models.Channel, error) {
	key := channelKeyPrefix + channelID.String()

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var ch models.Channel
		if err := json.Unmarshal(raw, &ch); err == nil {
			return &ch, nil
		}
		c.logger.Warn("discarding corrupt channel cache entry", zap.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("channel cache read failed", zap.String("key", key), zap.Error(err))
	}

	ch, err := c.next.GetByID(ctx, channelID)
	if err != nil || ch == nil {
		return ch, err
	}

	if raw, err := json.Marshal(ch); err == nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Warn("channel cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return ch, nil
}
