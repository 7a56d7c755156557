package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/docgraph/backend/internal/metrics"
	"github.com/docgraph/backend/pkg/logger"
	"github.com/docgraph/backend/pkg/utils"
)

// Client caches derived read models (quality scores, learning stats,
// related-document lookups). All methods are nil-receiver safe so the rest
// of the service works unchanged when Redis is disabled.
type Client struct {
	client *redis.Client
	ttl    time.Duration
}

func NewClient(host string, port int, password string, db int, ttl time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis cache initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client, ttl: ttl}, nil
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

// Get loads a cached value into dst, reporting whether it was present.
func (c *Client) Get(ctx context.Context, cacheType, key string, dst interface{}) bool {
	if c == nil {
		return false
	}

	data, err := c.client.Get(ctx, cacheKey(cacheType, key)).Bytes()
	if err == redis.Nil {
		metrics.CacheMisses.WithLabelValues(cacheType).Inc()
		return false
	}
	if err != nil {
		logger.Warn("Cache read failed", zap.String("cache_type", cacheType), zap.Error(err))
		return false
	}

	if err := json.Unmarshal(data, dst); err != nil {
		logger.Warn("Cache entry corrupt", zap.String("cache_type", cacheType), zap.Error(err))
		return false
	}

	metrics.CacheHits.WithLabelValues(cacheType).Inc()
	return true
}

// Set stores a value under the cache type's TTL. Failures are logged only;
// the cache is best-effort.
func (c *Client) Set(ctx context.Context, cacheType, key string, value interface{}) {
	if c == nil {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		logger.Warn("Cache marshal failed", zap.String("cache_type", cacheType), zap.Error(err))
		return
	}

	if err := c.client.Set(ctx, cacheKey(cacheType, key), data, c.ttl).Err(); err != nil {
		logger.Warn("Cache write failed", zap.String("cache_type", cacheType), zap.Error(err))
	}
}

// Invalidate drops every entry of the given cache types. Called after new
// feedback lands or a learning pass finishes, since both change the
// derived read models.
func (c *Client) Invalidate(ctx context.Context, cacheTypes ...string) {
	if c == nil {
		return
	}

	for _, cacheType := range cacheTypes {
		iter := c.client.Scan(ctx, 0, cacheType+":*", 0).Iterator()
		for iter.Next(ctx) {
			if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
				logger.Warn("Failed to delete cache key", zap.Error(err))
			}
		}
		if err := iter.Err(); err != nil {
			logger.Warn("Cache invalidation failed", zap.String("cache_type", cacheType), zap.Error(err))
		}
	}
}

func cacheKey(cacheType, key string) string {
	return cacheType + ":" + utils.HashString(key)
}
