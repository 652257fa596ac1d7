package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/metrics"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/models"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/storage"
)

// PriceSampleSource yields a mint's samples in ascending block time order.
type PriceSampleSource interface {
	PriceSamples(ctx context.Context, mint string) ([]models.PriceSample, error)
}

// Detector finds and records the first dump of a token.
type Detector struct {
	samples    PriceSampleSource
	store      storage.DumpStore
	publisher  storage.DumpPublisher
	thresholds Thresholds
	now        func() time.Time
	logger     *logrus.Logger
}

// DetectorConfig holds configuration for the dump detector
type DetectorConfig struct {
	Samples    PriceSampleSource
	Store      storage.DumpStore
	Publisher  storage.DumpPublisher // optional
	Thresholds Thresholds
	Now        func() time.Time
	Logger     *logrus.Logger
}

// NewDetector creates a dump detector
func NewDetector(cfg DetectorConfig) (*Detector, error) {
	if cfg.Samples == nil || cfg.Store == nil {
		return nil, fmt.Errorf("detector requires a sample source and a dump store")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Detector{
		samples:    cfg.Samples,
		store:      cfg.Store,
		publisher:  cfg.Publisher,
		thresholds: cfg.Thresholds.Sorted(),
		now:        cfg.Now,
		logger:     cfg.Logger,
	}, nil
}

// FindFirstDump returns the stored first dump of mint, scanning its price
// history once when none is stored yet. It returns nil, nil when the history
// holds no dump.
func (d *Detector) FindFirstDump(ctx context.Context, mint string) (*models.DumpRecord, error) {
	existing, err := d.store.FirstDump(ctx, mint)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load first dump: %w", err)
	}

	samples, err := d.samples.PriceSamples(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("load price samples: %w", err)
	}

	for i := 1; i < len(samples); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		prev, cur := samples[i-1], samples[i]
		if !d.thresholds.IsDump(prev.Price, cur.Price, cur.Volume) {
			continue
		}

		rec := &models.DumpRecord{
			Mint:           mint,
			Signature:      cur.Signature,
			BlockTime:      cur.BlockTime,
			DropPercent:    Drop(prev.Price, cur.Price) * 100,
			PriceBefore:    prev.Price,
			PriceAtTrigger: cur.Price,
			DetectedAt:     d.now().UTC(),
		}
		return d.record(ctx, rec)
	}

	d.logger.WithFields(logrus.Fields{
		"mint":    mint,
		"samples": len(samples),
	}).Debug("no dump found")
	return nil, nil
}

func (d *Detector) record(ctx context.Context, rec *models.DumpRecord) (*models.DumpRecord, error) {
	stored, err := d.store.SaveFirstDump(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("save first dump: %w", err)
	}
	if stored.Signature != rec.Signature {
		// Another writer recorded a dump first.
		return stored, nil
	}

	metrics.DumpDetected()
	d.logger.WithFields(logrus.Fields{
		"mint":         stored.Mint,
		"signature":    stored.Signature,
		"drop_percent": fmt.Sprintf("%.2f", stored.DropPercent),
		"price_before": stored.PriceBefore,
		"price_after":  stored.PriceAtTrigger,
	}).Info("first dump detected")

	if d.publisher != nil {
		if err := d.publisher.PublishDump(ctx, stored); err != nil {
			d.logger.WithError(err).WithField("mint", stored.Mint).Warn("failed to publish dump")
		}
	}
	return stored, nil
}
