package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/oggyb/mood-buddy/internal/config"
	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

// KeyForPoolSize generates the Redis key holding the pool size of a mood category.
func (c *RedisCache) KeyForPoolSize(mood string) string {
	return fmt.Sprintf("pool:size:%s", mood)
}

// GetPoolSize returns the cached pool size and whether it was a hit.
func (c *RedisCache) GetPoolSize(ctx context.Context, mood string) (int64, bool, error) {
	val, err := c.Client.Get(ctx, c.KeyForPoolSize(mood)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil // cache miss
	} else if err != nil {
		return 0, false, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, nil // treat garbage as a miss
	}
	return n, true, nil
}

// SetPoolSize caches the pool size of a mood category for ttl.
func (c *RedisCache) SetPoolSize(ctx context.Context, mood string, n int64, ttl time.Duration) error {
	return c.Client.Set(ctx, c.KeyForPoolSize(mood), n, ttl).Err()
}

// InvalidatePoolSizes drops the cached sizes; called after pool mutations.
func (c *RedisCache) InvalidatePoolSizes(ctx context.Context, moods ...string) error {
	keys := make([]string, 0, len(moods))
	for _, m := range moods {
		keys = append(keys, c.KeyForPoolSize(m))
	}
	if len(keys) == 0 {
		return nil
	}
	return c.Client.Del(ctx, keys...).Err()
}
