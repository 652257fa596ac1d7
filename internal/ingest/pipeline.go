// Package ingest turns a mint's signature history into persisted
// transactions, price samples and dead letters.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AlekSi/pointer"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/constants"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/metrics"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/models"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/pricing"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/rpc"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/storage"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/swaps"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/txdecode"
	"github.com/aman-zulfiqar/solana-dump-indexer/pkg/workerpool"
)

// Outcome labels recorded per signature.
const (
	OutcomeProcessed    = "processed"
	OutcomeSkipped      = "skipped"
	OutcomeDeadLettered = "dead_lettered"
)

// RPC is the subset of the RPC client the pipeline needs.
type RPC interface {
	GetSignaturesForAddress(ctx context.Context, address string, opts rpc.SignaturesOptions) ([]rpc.SignatureInfo, error)
	GetProgramAccounts(ctx context.Context, programID string, filters []rpc.Filter) ([]rpc.AccountRecord, error)
	GetTransaction(ctx context.Context, signature string) (*rpc.RawTransaction, error)
}

// Report counts what a run did with its signatures.
type Report struct {
	Processed    int `json:"processed"`
	Skipped      int `json:"skipped"`
	DeadLettered int `json:"dead_lettered"`
	Swaps        int `json:"swaps"`
	Samples      int `json:"samples"`
}

func (r *Report) add(o *Report) {
	r.Processed += o.Processed
	r.Skipped += o.Skipped
	r.DeadLettered += o.DeadLettered
	r.Swaps += o.Swaps
	r.Samples += o.Samples
}

// Pipeline fetches and decodes concurrently and persists serially.
type Pipeline struct {
	rpc          RPC
	transactions storage.TransactionStore
	deadLetters  storage.DeadLetterStore
	samples      storage.PriceSampleStore
	quoteMint    string
	workers      int
	maxAttempts  int
	logger       *logrus.Logger
}

// PipelineConfig holds configuration for the ingestion pipeline
type PipelineConfig struct {
	RPC          RPC
	Transactions storage.TransactionStore
	DeadLetters  storage.DeadLetterStore
	Samples      storage.PriceSampleStore
	// QuoteMint prices samples; defaults to wrapped SOL.
	QuoteMint string
	Workers   int
	// MaxAttempts escalates a dead letter to permanent; 0 never escalates.
	MaxAttempts int
	Logger      *logrus.Logger
}

// NewPipeline creates an ingestion pipeline
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.RPC == nil || cfg.Transactions == nil || cfg.DeadLetters == nil || cfg.Samples == nil {
		return nil, fmt.Errorf("pipeline requires an rpc client and stores")
	}
	if cfg.QuoteMint == "" {
		cfg.QuoteMint = constants.WrappedSOLMint
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	return &Pipeline{
		rpc:          cfg.RPC,
		transactions: cfg.Transactions,
		deadLetters:  cfg.DeadLetters,
		samples:      cfg.Samples,
		quoteMint:    cfg.QuoteMint,
		workers:      cfg.Workers,
		maxAttempts:  cfg.MaxAttempts,
		logger:       cfg.Logger,
	}, nil
}

// fetched is the result of fetching and decoding one signature.
type fetched struct {
	signature string
	payload   []byte
	tx        *models.Transaction
	notFound  bool
	err       error
}

func (p *Pipeline) fetch(ctx context.Context, signature string) fetched {
	f := fetched{signature: signature}

	raw, err := p.rpc.GetTransaction(ctx, signature)
	if errors.Is(err, rpc.ErrNotFound) {
		f.notFound = true
		return f
	}
	if err != nil {
		f.err = fmt.Errorf("failed to fetch transaction: %w", err)
		return f
	}

	f.payload = raw.Result
	return decoded(f)
}

func decoded(f fetched) fetched {
	tx, err := txdecode.Decode(f.payload)
	if err != nil {
		f.err = err
		return f
	}
	f.tx = tx
	return f
}

// Run fetches, decodes and persists sigs for mint. An item failure is
// dead-lettered and never aborts the run; a storage error or cancellation
// does, returning the report so far.
func (p *Pipeline) Run(ctx context.Context, mint string, sigs []string) (*Report, error) {
	report := &Report{}
	if len(sigs) == 0 {
		return report, nil
	}

	started := time.Now()
	err := workerpool.Collect(ctx, p.workers, sigs, p.fetch, func(f fetched) error {
		return p.handle(ctx, mint, f, report)
	})

	p.logger.WithFields(logrus.Fields{
		"mint":          mint,
		"signatures":    len(sigs),
		"processed":     report.Processed,
		"skipped":       report.Skipped,
		"dead_lettered": report.DeadLettered,
		"swaps":         report.Swaps,
		"samples":       report.Samples,
		"duration":      time.Since(started).String(),
	}).Info("ingestion run finished")

	return report, err
}

func (p *Pipeline) handle(ctx context.Context, mint string, f fetched, report *Report) error {
	switch {
	case f.notFound:
		report.Skipped++
		metrics.IngestOutcome(OutcomeSkipped)
		p.logger.WithField("signature", f.signature).Debug("transaction not found, skipping")
		return nil

	case f.err != nil:
		// A cancelled fetch is not the item's fault.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err := p.deadLetter(ctx, mint, f.signature, f.payload, f.err); err != nil {
			return err
		}
		report.DeadLettered++
		metrics.IngestOutcome(OutcomeDeadLettered)
		return nil
	}

	nSwaps, nSamples, err := p.persist(ctx, mint, f.payload, f.tx)
	if err != nil {
		return err
	}
	report.Processed++
	report.Swaps += nSwaps
	report.Samples += nSamples
	metrics.IngestOutcome(OutcomeProcessed)
	metrics.SwapsExtracted(nSwaps)

	// An earlier failure of this signature is settled now.
	if err := p.deadLetters.RemoveDeadLetter(ctx, f.signature); err != nil && !errors.Is(err, storage.ErrNotFound) {
		p.logger.WithError(err).WithField("signature", f.signature).Warn("failed to clear dead letter")
	}
	return nil
}

// persist stores the mint's price samples and then the transaction row. The
// row marks the signature as ingested for mint, so it is written last.
func (p *Pipeline) persist(ctx context.Context, mint string, payload []byte, tx *models.Transaction) (int, int, error) {
	events := swaps.Extract(tx)
	if events == nil {
		events = []models.SwapEvent{}
	}

	rec := &models.TransactionRecord{
		Signature:     tx.Signature,
		Slot:          pointer.ToUint64(tx.Slot),
		Failed:        tx.Failed,
		Raw:           payload,
		Swaps:         events,
		ParserVersion: constants.ParserVersion,
		Source:        mint,
	}
	if tx.BlockTime != 0 {
		rec.BlockTime = pointer.ToInt64(tx.BlockTime)
	}
	if payer := tx.FeePayer(); payer != "" {
		rec.FeePayer = pointer.ToString(payer)
	}

	samples := pricing.SamplesFromTransaction(tx, events, mint, p.quoteMint)
	if len(samples) > 0 {
		if err := p.samples.AppendSamples(ctx, samples); err != nil {
			return 0, 0, fmt.Errorf("failed to store price samples for %s: %w", tx.Signature, err)
		}
	}

	if err := p.transactions.UpsertTransaction(ctx, rec); err != nil {
		return 0, 0, fmt.Errorf("failed to store transaction %s: %w", tx.Signature, err)
	}

	if len(events) > 0 {
		p.logger.WithFields(logrus.Fields{
			"signature": tx.Signature,
			"swaps":     len(events),
			"samples":   len(samples),
		}).Debug("stored transaction")
	}
	return len(events), len(samples), nil
}

func (p *Pipeline) deadLetter(ctx context.Context, mint, signature string, payload []byte, cause error) error {
	dl, err := p.deadLetters.AppendDeadLetter(ctx, &models.DeadLetter{
		Signature: signature,
		Mint:      mint,
		Reason:    cause.Error(),
		Payload:   payload,
	}, p.maxAttempts)
	if err != nil {
		return fmt.Errorf("failed to dead-letter %s: %w", signature, err)
	}

	p.logger.WithFields(logrus.Fields{
		"signature": signature,
		"mint":      mint,
		"attempts":  dl.Attempts,
		"status":    dl.Status,
	}).WithError(cause).Warn("transaction dead-lettered")
	return nil
}
