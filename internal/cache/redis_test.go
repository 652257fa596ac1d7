package cache

import (
	"context"
	"testing"
	"time"

	"github.com/AlekSi/pointer"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/constants"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/models"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/storage"
)

func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   1, // Use different DB for tests
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	require.NoError(t, client.FlushDB(ctx).Err())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.FlushDB(ctx).Err()
		_ = client.Close()
	})
	return client
}

func TestRedisPoolCache_RoundTrip(t *testing.T) {
	client := setupTestRedis(t)
	c, err := NewRedisPoolCache(client, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.GetPools(ctx, "mint")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	pools := []models.PoolRecord{{
		Address:     "pool",
		Venue:       "raydium",
		MintA:       "mint",
		MintB:       constants.WrappedSOLMint,
		LPMint:      pointer.ToString("lp"),
		DecimalsA:   pointer.ToUint8(6),
		RefreshedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}}
	require.NoError(t, c.PutPools(ctx, "mint", pools))

	got, err := c.GetPools(ctx, "mint")
	require.NoError(t, err)
	assert.Equal(t, pools, got)

	ttl, err := client.TTL(ctx, constants.RedisKeyPoolPrefix+"mint").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestRedisPoolCache_EmptyEntryIsHit(t *testing.T) {
	client := setupTestRedis(t)
	c, err := NewRedisPoolCache(client, 0)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.PutPools(ctx, "mint", nil))
	got, err := c.GetPools(ctx, "mint")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNewRedisPoolCache_NilClient(t *testing.T) {
	_, err := NewRedisPoolCache(nil, 0)
	assert.Error(t, err)
}

func TestPubSubManager_PublishDump(t *testing.T) {
	client := setupTestRedis(t)
	p := NewPubSubManager(client, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan *models.DumpRecord, 1)
	subscribed := make(chan struct{})
	go func() {
		sub := client.Subscribe(ctx, constants.PubSubChannelDumpMint+"mint")
		defer sub.Close()
		_, _ = sub.Receive(ctx)
		close(subscribed)
		_ = p.consume(ctx, sub, func(rec *models.DumpRecord) { received <- rec })
	}()
	<-subscribed

	rec := &models.DumpRecord{Mint: "mint", Signature: "sig", DropPercent: 42}
	require.NoError(t, p.PublishDump(ctx, rec))

	select {
	case got := <-received:
		assert.Equal(t, "sig", got.Signature)
		assert.Equal(t, 42.0, got.DropPercent)
	case <-ctx.Done():
		t.Fatal("dump was not delivered")
	}
}
