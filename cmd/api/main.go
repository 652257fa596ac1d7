package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/cache"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/config"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/pools"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/pricing"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/rpc"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/server"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/storage"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/storage/memory"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/storage/postgres"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/watchlist"
)

// env bootstrap function
func loadEnv(logger *logrus.Logger) {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	envPath := filepath.Join(projectRoot, ".env")

	if err := godotenv.Load(envPath); err != nil {
		logger.Warnf("no .env file found at %s, using system environment variables", envPath)
	} else {
		logger.Infof("loaded .env from %s", envPath)
	}
}

// main is the entry point for the API server
// It initializes all dependencies and starts the HTTP server with graceful shutdown
func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger.SetLevel(logrus.InfoLevel)

	// load .env BEFORE anything reads os.Getenv
	loadEnv(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Transactions, dead letters and dumps
	var store storage.Store = memory.NewStore()
	if cfg.PostgresDSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to postgres")
		}
		if err := pool.EnsureSchema(ctx); err != nil {
			logger.WithError(err).Fatal("failed to apply schema")
		}
		store = postgres.NewStore(pool)
	} else {
		logger.Warn("POSTGRES_DSN not set, serving from an empty in-memory store")
	}
	defer store.Close()

	// Price history
	var samples storage.PriceSampleStore = memory.NewPriceSampleStore()
	if cfg.ClickHouseAddr != "" {
		ch, err := cache.NewClickHouseSampleStore(ctx, cache.ClickHouseConfig{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
			Logger:   logger,
		})
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to clickhouse")
		}
		defer ch.Close()
		samples = ch
	}

	// Pool cache, dump fan-out and the watchlist
	rclient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   0,
	})
	if err := rclient.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Fatal("failed to connect to Redis")
	}
	defer rclient.Close()

	poolCache, err := cache.NewRedisPoolCache(rclient, 0)
	if err != nil {
		logger.WithError(err).Fatal("failed to create pool cache")
	}
	wl, err := watchlist.NewStore(rclient)
	if err != nil {
		logger.WithError(err).Fatal("failed to create watchlist store")
	}

	rpcClient, err := rpc.NewClient(rpc.ClientConfig{
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
		Logger: logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create rpc client")
	}

	registry, err := pools.NewRegistry(pools.RegistryConfig{
		Fetcher: rpcClient,
		Cache:   poolCache,
		Logger:  logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create pool registry")
	}

	tiers := make([]pricing.VolumeTier, len(cfg.VolumeTiers))
	for i, t := range cfg.VolumeTiers {
		tiers[i] = pricing.VolumeTier{AboveDrop: t.AboveDrop, MinVolume: t.MinVolume}
	}
	detector, err := pricing.NewDetector(pricing.DetectorConfig{
		Samples:   samples,
		Store:     store,
		Publisher: cache.NewPubSubManager(rclient, logger),
		Thresholds: pricing.Thresholds{
			DropFloor:          cfg.DropFloor,
			DefaultVolumeFloor: cfg.DefaultVolumeFloor,
			VolumeTiers:        tiers,
		},
		Logger: logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create detector")
	}

	h := &server.Handlers{
		Dumps:       store,
		DeadLetters: store,
		Samples:     samples,
		Pools:       registry,
		Detector:    detector,
		Watchlist:   wl,
		QuoteMint:   cfg.QuoteMint,
		Ping:        store.Ping,
		DevMode:     cfg.DevMode,
		Logger:      logger,
	}

	srv, err := server.NewServer(server.ServerDeps{
		Handlers: h,
		Config: server.ServerConfig{
			Addr:    cfg.APIAddr,
			DevMode: cfg.DevMode,
			APIKey:  cfg.APIKey,
		},
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create http server")
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		_ = srv.Shutdown(context.Background())
	}()

	logger.WithField("addr", cfg.APIAddr).Info("api server starting")
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("api server failed")
	}

	if err := srv.WaitClosed(context.Background()); err != nil {
		fmt.Println(err)
	}
}
