package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/cache"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/ingest"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/pools"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/pricing"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/rpc"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/storage"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/storage/memory"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/storage/postgres"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/watchlist"
)

// app holds the wired dependencies of one command run.
type app struct {
	logger    *logrus.Logger
	rpc       *rpc.Client
	store     storage.Store
	samples   storage.PriceSampleStore
	poolCache storage.PoolCache
	publisher storage.DumpPublisher
	watchlist watchStore
	closers   []func() error
}

type watchStore interface {
	ingest.Watchlist
	Upsert(ctx context.Context, mint, label string) (*watchlist.Entry, error)
}

func newApp(c *cli) (*app, error) {
	cfg := c.cfg
	a := &app{logger: c.logger}

	client, err := rpc.NewClient(rpc.ClientConfig{
		BaseURL:           cfg.RPCUrl,
		Credentials:       cfg.Credentials(),
		RequestsPerSecond: cfg.RPCRate,
		Timeout:           cfg.HTTPTimeout,
		Backoff: rpc.Backoff{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.BaseDelay,
			MaxDelay:    cfg.MaxDelay,
			Jitter:      rpc.DefaultBackoff.Jitter,
		},
		Logger: c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rpc client: %w", err)
	}
	a.rpc = client

	if c.opts.Memory {
		a.useMemory()
		c.logger.Warn("running with in-memory state, nothing is persisted")
		return a, nil
	}

	if err := a.connect(c.ctx, c); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) useMemory() {
	a.store = memory.NewStore()
	a.samples = memory.NewPriceSampleStore()
	a.poolCache = memory.NewPoolCache()
	a.watchlist = watchlist.NewMemoryStore()
}

func (a *app) connect(ctx context.Context, c *cli) error {
	cfg := c.cfg

	if cfg.PostgresDSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if err := pool.EnsureSchema(ctx); err != nil {
			pool.Close()
			return fmt.Errorf("failed to apply schema: %w", err)
		}
		store := postgres.NewStore(pool)
		a.store = store
		a.closers = append(a.closers, store.Close)
	} else {
		a.logger.Warn("POSTGRES_DSN not set, transactions and dead letters stay in memory")
		a.store = memory.NewStore()
	}

	if cfg.ClickHouseAddr != "" {
		ch, err := cache.NewClickHouseSampleStore(ctx, cache.ClickHouseConfig{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
			Logger:   a.logger,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to clickhouse: %w", err)
		}
		a.samples = ch
		a.closers = append(a.closers, ch.Close)
	} else {
		a.samples = memory.NewPriceSampleStore()
	}

	if cfg.RedisAddr == "" {
		a.poolCache = memory.NewPoolCache()
		a.watchlist = watchlist.NewMemoryStore()
		return nil
	}

	rclient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rclient.Ping(ctx).Err(); err != nil {
		_ = rclient.Close()
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.closers = append(a.closers, rclient.Close)

	poolCache, err := cache.NewRedisPoolCache(rclient, 0)
	if err != nil {
		return err
	}
	wl, err := watchlist.NewStore(rclient)
	if err != nil {
		return err
	}
	a.poolCache = poolCache
	a.publisher = cache.NewPubSubManager(rclient, a.logger)
	a.watchlist = wl
	return nil
}

func (a *app) pipeline(c *cli) (*ingest.Pipeline, error) {
	return ingest.NewPipeline(ingest.PipelineConfig{
		RPC:          a.rpc,
		Transactions: a.store,
		DeadLetters:  a.store,
		Samples:      a.samples,
		QuoteMint:    c.cfg.QuoteMint,
		Workers:      c.cfg.Workers,
		MaxAttempts:  c.cfg.DLQMaxAttempts,
		Logger:       a.logger,
	})
}

func (a *app) detector(c *cli) (*pricing.Detector, error) {
	tiers := make([]pricing.VolumeTier, len(c.cfg.VolumeTiers))
	for i, t := range c.cfg.VolumeTiers {
		tiers[i] = pricing.VolumeTier{AboveDrop: t.AboveDrop, MinVolume: t.MinVolume}
	}

	return pricing.NewDetector(pricing.DetectorConfig{
		Samples:   a.samples,
		Store:     a.store,
		Publisher: a.publisher,
		Thresholds: pricing.Thresholds{
			DropFloor:          c.cfg.DropFloor,
			DefaultVolumeFloor: c.cfg.DefaultVolumeFloor,
			VolumeTiers:        tiers,
		},
		Logger: a.logger,
	})
}

func (a *app) registry() (*pools.Registry, error) {
	return pools.NewRegistry(pools.RegistryConfig{
		Fetcher: a.rpc,
		Cache:   a.poolCache,
		Logger:  a.logger,
	})
}

// Close releases connections in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.WithError(err).Warn("failed to close resource")
		}
	}
}
