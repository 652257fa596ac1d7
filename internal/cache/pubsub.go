package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/constants"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/models"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/storage"
)

// PubSubManager fans dump records out over Redis channels.
type PubSubManager struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewPubSubManager(client *redis.Client, logger *logrus.Logger) *PubSubManager {
	if logger == nil {
		logger = logrus.New()
	}
	return &PubSubManager{client: client, logger: logger}
}

// PublishDump sends rec to the global channel and to its mint channel.
func (p *PubSubManager) PublishDump(ctx context.Context, rec *models.DumpRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	channels := []string{
		constants.PubSubChannelDumps,
		constants.PubSubChannelDumpMint + rec.Mint,
	}

	pipe := p.client.Pipeline()
	for _, channel := range channels {
		pipe.Publish(ctx, channel, data)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish dump: %w", err)
	}
	return nil
}

// Subscribe delivers dumps from channel to handler until ctx is done.
func (p *PubSubManager) Subscribe(ctx context.Context, channel string, handler func(*models.DumpRecord)) error {
	pubsub := p.client.Subscribe(ctx, channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}

	p.logger.WithField("channel", channel).Info("subscribed")
	return p.consume(ctx, pubsub, handler)
}

// PSubscribe delivers dumps from every channel matching pattern, e.g. "dumps:mint:*".
func (p *PubSubManager) PSubscribe(ctx context.Context, pattern string, handler func(*models.DumpRecord)) error {
	pubsub := p.client.PSubscribe(ctx, pattern)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("psubscribe %s: %w", pattern, err)
	}

	p.logger.WithField("pattern", pattern).Info("subscribed")
	return p.consume(ctx, pubsub, handler)
}

func (p *PubSubManager) consume(ctx context.Context, pubsub *redis.PubSub, handler func(*models.DumpRecord)) error {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var rec models.DumpRecord
			if err := json.Unmarshal([]byte(msg.Payload), &rec); err != nil {
				p.logger.WithError(err).WithField("channel", msg.Channel).Warn("error unmarshaling dump")
				continue
			}
			handler(&rec)
		}
	}
}

var _ storage.DumpPublisher = (*PubSubManager)(nil)
