package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/deskforge/helpdesk-service/internal/config"
)

const defaultQueueCacheKey = "helpdesk:queues:default"

// Redis wraps the go-redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to Redis using the provided configuration.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Error(err))
	} else {
		logger.Info("connected to redis")
	}

	return &Redis{Client: client}
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}

// CachedDefaultQueueID returns the cached id of the default queue, or an
// empty string on miss or when the cache is unavailable.
func (r *Redis) CachedDefaultQueueID(ctx context.Context) string {
	if r == nil || r.Client == nil {
		return ""
	}
	val, err := r.Client.Get(ctx, defaultQueueCacheKey).Result()
	if err != nil {
		return ""
	}
	return val
}

// CacheDefaultQueueID stores the default queue id with a TTL. Failures are
// ignored; the queue directory always falls through to Postgres.
func (r *Redis) CacheDefaultQueueID(ctx context.Context, id string, ttl time.Duration) {
	if r == nil || r.Client == nil || id == "" {
		return
	}
	_ = r.Client.Set(ctx, defaultQueueCacheKey, id, ttl).Err()
}

// InvalidateDefaultQueue drops the cached default queue id.
func (r *Redis) InvalidateDefaultQueue(ctx context.Context) {
	if r == nil || r.Client == nil {
		return
	}
	_ = r.Client.Del(ctx, defaultQueueCacheKey).Err()
}
