package cache

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/models"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/storage"
)

const priceSamplesTable = `
	CREATE TABLE IF NOT EXISTS price_samples (
		mint       String,
		signature  String,
		slot       UInt64,
		block_time Int64,
		price      Float64,
		volume     Float64
	) ENGINE = ReplacingMergeTree
	ORDER BY (mint, signature)
`

// ClickHouseConfig holds connection settings for the sample store
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
	Logger   *logrus.Logger
}

// ClickHouseSampleStore keeps price history in a ReplacingMergeTree keyed by
// (mint, signature), so re-ingesting a transaction collapses to one row.
type ClickHouseSampleStore struct {
	conn   driver.Conn
	logger *logrus.Logger
}

func NewClickHouseSampleStore(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseSampleStore, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	if err := conn.Exec(ctx, priceSamplesTable); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create price_samples: %w", err)
	}

	cfg.Logger.WithField("addr", cfg.Addr).Info("connected to ClickHouse")

	return &ClickHouseSampleStore{conn: conn, logger: cfg.Logger}, nil
}

// AppendSamples inserts samples in one batch.
func (c *ClickHouseSampleStore) AppendSamples(ctx context.Context, samples []models.PriceSample) error {
	if len(samples) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO price_samples (mint, signature, slot, block_time, price, volume)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, s := range samples {
		if s.Mint == "" || s.Signature == "" {
			_ = batch.Abort()
			return storage.ErrInvalidInput
		}
		if err := batch.Append(s.Mint, s.Signature, s.Slot, s.BlockTime, s.Price, s.Volume); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to insert samples: %w", err)
	}
	return nil
}

// PriceSamples returns the deduplicated history of mint, oldest first.
func (c *ClickHouseSampleStore) PriceSamples(ctx context.Context, mint string) ([]models.PriceSample, error) {
	rows, err := c.conn.Query(ctx, `
		SELECT mint, signature, slot, block_time, price, volume
		FROM price_samples FINAL
		WHERE mint = ?
		ORDER BY block_time ASC, slot ASC
	`, mint)
	if err != nil {
		return nil, fmt.Errorf("query price samples: %w", err)
	}
	defer rows.Close()

	out := []models.PriceSample{}
	for rows.Next() {
		var s models.PriceSample
		if err := rows.Scan(&s.Mint, &s.Signature, &s.Slot, &s.BlockTime, &s.Price, &s.Volume); err != nil {
			return nil, fmt.Errorf("scan price sample: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price samples: %w", err)
	}
	return out, nil
}

func (c *ClickHouseSampleStore) Close() error {
	return c.conn.Close()
}

var _ storage.PriceSampleStore = (*ClickHouseSampleStore)(nil)
