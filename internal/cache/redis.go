// Package cache holds the Redis and ClickHouse backed stores.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/constants"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/models"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/storage"
)

// RedisPoolCache keeps discovered pools in Redis as JSON with a TTL.
type RedisPoolCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisPoolCache creates a pool cache. A zero ttl uses constants.PoolCacheTTL.
func NewRedisPoolCache(client redis.Cmdable, ttl time.Duration) (*RedisPoolCache, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if ttl <= 0 {
		ttl = constants.PoolCacheTTL
	}
	return &RedisPoolCache{client: client, ttl: ttl}, nil
}

// GetPools returns storage.ErrNotFound when the mint has no cached entry.
func (c *RedisPoolCache) GetPools(ctx context.Context, mint string) ([]models.PoolRecord, error) {
	val, err := c.client.Get(ctx, poolKey(mint)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pools: %w", err)
	}

	var pools []models.PoolRecord
	if err := json.Unmarshal([]byte(val), &pools); err != nil {
		return nil, fmt.Errorf("unmarshal pools: %w", err)
	}
	if pools == nil {
		pools = []models.PoolRecord{}
	}
	return pools, nil
}

// PutPools replaces the cached entry for mint.
func (c *RedisPoolCache) PutPools(ctx context.Context, mint string, pools []models.PoolRecord) error {
	if mint == "" {
		return storage.ErrInvalidInput
	}
	if pools == nil {
		pools = []models.PoolRecord{}
	}

	b, err := json.Marshal(pools)
	if err != nil {
		return fmt.Errorf("marshal pools: %w", err)
	}
	if err := c.client.Set(ctx, poolKey(mint), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("set pools: %w", err)
	}
	return nil
}

func poolKey(mint string) string {
	return constants.RedisKeyPoolPrefix + mint
}

var _ storage.PoolCache = (*RedisPoolCache)(nil)
