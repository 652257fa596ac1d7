package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/cache"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/config"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/constants"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/models"
)

// main logs every dump announced on the Redis channels
func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rclient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rclient.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Fatal("failed to connect to Redis")
	}
	defer rclient.Close()

	pubsub := cache.NewPubSubManager(rclient, logger)

	logger.Info("starting dump subscriber")

	err := pubsub.PSubscribe(ctx, constants.PubSubChannelDumpMint+"*", func(rec *models.DumpRecord) {
		logger.WithFields(logrus.Fields{
			"mint":         rec.Mint,
			"symbol":       constants.Symbol(rec.Mint),
			"signature":    rec.Signature,
			"drop_percent": rec.DropPercent,
			"price_before": rec.PriceBefore,
			"price_after":  rec.PriceAtTrigger,
		}).Warn("dump detected")
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Fatal("subscription failed")
	}

	logger.Info("subscriber stopped")
}
