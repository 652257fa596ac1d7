package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/models"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/rpc"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/storage"
)

// ReplayDeadLetters retries the retryable dead letters of mint, or of every
// mint when mint is empty. Preserved payloads are decoded again; entries
// without one are refetched. A recovered entry is stored and removed; a
// failing one has its attempts incremented.
func (p *Pipeline) ReplayDeadLetters(ctx context.Context, mint string) (*Report, error) {
	entries, err := p.deadLetters.ListDeadLetters(ctx, mint, models.DeadLetterRetryable)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}

	report := &Report{}
	for _, dl := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := p.replay(ctx, dl, report); err != nil {
			return report, err
		}
	}

	p.logger.WithFields(logrus.Fields{
		"mint":      mint,
		"entries":   len(entries),
		"recovered": report.Processed,
		"failed":    report.DeadLettered,
	}).Info("dead letter replay finished")

	return report, nil
}

func (p *Pipeline) replay(ctx context.Context, dl *models.DeadLetter, report *Report) error {
	f := fetched{signature: dl.Signature, payload: dl.Payload}
	if len(f.payload) == 0 {
		f = p.fetch(ctx, dl.Signature)
		if f.notFound {
			f.err = fmt.Errorf("transaction not found on replay: %w", rpc.ErrNotFound)
		}
	} else {
		f = decoded(f)
	}

	if f.err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err := p.deadLetter(ctx, dl.Mint, dl.Signature, f.payload, f.err); err != nil {
			return err
		}
		report.DeadLettered++
		return nil
	}

	nSwaps, nSamples, err := p.persist(ctx, dl.Mint, f.payload, f.tx)
	if err != nil {
		return err
	}

	err = p.deadLetters.RemoveDeadLetter(ctx, dl.Signature)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to remove dead letter %s: %w", dl.Signature, err)
	}

	report.Processed++
	report.Swaps += nSwaps
	report.Samples += nSamples
	p.logger.WithField("signature", dl.Signature).Info("dead letter recovered")
	return nil
}
