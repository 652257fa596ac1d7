package memory

import (
	"context"
	"sync"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/models"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/storage"
)

// PoolCache is an in-memory implementation of storage.PoolCache.
type PoolCache struct {
	mu   sync.RWMutex
	data map[string][]models.PoolRecord
}

// NewPoolCache creates a new in-memory pool cache.
func NewPoolCache() *PoolCache {
	return &PoolCache{data: make(map[string][]models.PoolRecord)}
}

// GetPools returns the cached pools of mint.
func (c *PoolCache) GetPools(_ context.Context, mint string) ([]models.PoolRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pools, ok := c.data[mint]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]models.PoolRecord{}, pools...), nil
}

// PutPools replaces the cached pools of mint.
func (c *PoolCache) PutPools(_ context.Context, mint string, pools []models.PoolRecord) error {
	if mint == "" {
		return storage.ErrInvalidInput
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[mint] = append([]models.PoolRecord{}, pools...)
	return nil
}
