package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/constants"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/models"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/watchlist"
	"github.com/aman-zulfiqar/solana-dump-indexer/pkg/workerpool"
)

// Watchlist is the set of mints a follower keeps current.
type Watchlist interface {
	List(ctx context.Context) ([]*watchlist.Entry, error)
	SetCursor(ctx context.Context, mint, cursor string) error
}

// DumpFinder runs dump detection for a mint.
type DumpFinder interface {
	FindFirstDump(ctx context.Context, mint string) (*models.DumpRecord, error)
}

// Follower polls watched mints for new signatures, ingests them and runs
// dump detection when new samples arrive.
type Follower struct {
	pipeline     *Pipeline
	watchlist    Watchlist
	detector     DumpFinder
	pollInterval time.Duration
	workers      int
	batchSize    int
	discover     DiscoverOptions
	logger       *logrus.Logger

	wake chan struct{}

	mu      sync.Mutex
	running bool
}

// FollowerConfig holds configuration for the follower
type FollowerConfig struct {
	Pipeline  *Pipeline
	Watchlist Watchlist
	// Detector is optional.
	Detector     DumpFinder
	PollInterval time.Duration
	// Workers is the number of mints polled concurrently.
	Workers int
	// BatchSize is how many signatures are ingested before the cursor
	// advances; defaults to constants.SignaturePageSize.
	BatchSize int
	// Discover is applied to every poll; Until is set from the cursor.
	// TotalLimit only bounds the first poll of a mint without a cursor.
	Discover DiscoverOptions
	Logger   *logrus.Logger
}

// NewFollower creates a follower
func NewFollower(cfg FollowerConfig) (*Follower, error) {
	if cfg.Pipeline == nil || cfg.Watchlist == nil {
		return nil, fmt.Errorf("follower requires a pipeline and a watchlist")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = constants.SignaturePageSize
	}
	if cfg.Discover.TotalLimit <= 0 {
		cfg.Discover.TotalLimit = constants.SignaturePageSize
	}
	// The cursor is a signature of the mint address, so only that history is
	// followed.
	cfg.Discover.IncludeTokenAccounts = false
	cfg.Discover.OldestFirst = true
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	return &Follower{
		pipeline:     cfg.Pipeline,
		watchlist:    cfg.Watchlist,
		detector:     cfg.Detector,
		pollInterval: cfg.PollInterval,
		workers:      cfg.Workers,
		batchSize:    cfg.BatchSize,
		discover:     cfg.Discover,
		logger:       cfg.Logger,
		wake:         make(chan struct{}, 1),
	}, nil
}

// Wake makes a running follower poll without waiting for the next tick.
// Wakes that arrive while a poll is pending are coalesced.
func (f *Follower) Wake() {
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// Start polls immediately and then on every interval until ctx is done
func (f *Follower) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return fmt.Errorf("follower already running")
	}
	f.running = true
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.running = false
		f.mu.Unlock()
	}()

	f.logger.WithField("interval", f.pollInterval).Info("starting follower")

	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	for {
		if err := f.Poll(ctx); err != nil && ctx.Err() == nil {
			f.logger.WithError(err).Error("poll error")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-f.wake:
		}
	}
}

// Poll runs one round over the watchlist. A failing mint is logged and does
// not stop the others.
func (f *Follower) Poll(ctx context.Context) error {
	entries, err := f.watchlist.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list watchlist: %w", err)
	}
	if len(entries) == 0 {
		f.logger.Debug("watchlist is empty")
		return nil
	}

	return workerpool.Process(ctx, f.workers, entries, func(ctx context.Context, e *watchlist.Entry) error {
		if err := f.follow(ctx, e); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.WithError(err).WithField("mint", e.Mint).Warn("failed to follow mint")
		}
		return nil
	}, nil)
}

// follow ingests every signature newer than the entry's cursor, oldest
// first, moving the cursor after each batch so it never passes a signature
// that was not ingested.
func (f *Follower) follow(ctx context.Context, e *watchlist.Entry) error {
	opts := f.discover
	opts.Until = e.Cursor
	if e.Cursor != "" {
		opts.TotalLimit = 0
	}

	sigs, err := f.pipeline.Discover(ctx, e.Mint, opts)
	if err != nil {
		return err
	}
	if len(sigs) == 0 {
		f.logger.WithField("mint", e.Mint).Debug("no new signatures")
		return nil
	}

	report := &Report{}
	var cursor string
	for start := 0; start < len(sigs); start += f.batchSize {
		batch := sigs[start:min(start+f.batchSize, len(sigs))]

		r, err := f.pipeline.runNew(ctx, e.Mint, batch)
		report.add(r)
		if err != nil {
			return err
		}

		cursor = batch[len(batch)-1].Signature
		if err := f.watchlist.SetCursor(ctx, e.Mint, cursor); err != nil {
			return fmt.Errorf("failed to advance cursor: %w", err)
		}
	}

	f.logger.WithFields(logrus.Fields{
		"mint":      e.Mint,
		"processed": report.Processed,
		"samples":   report.Samples,
		"cursor":    cursor,
	}).Info("followed mint")

	if f.detector == nil || report.Samples == 0 {
		return nil
	}

	dump, err := f.detector.FindFirstDump(ctx, e.Mint)
	if err != nil {
		return fmt.Errorf("failed to detect dump: %w", err)
	}
	if dump != nil {
		f.logger.WithFields(logrus.Fields{
			"mint":         dump.Mint,
			"signature":    dump.Signature,
			"drop_percent": fmt.Sprintf("%.2f", dump.DropPercent),
		}).Warn("first dump recorded")
	}
	return nil
}
