package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/models"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/storage"
)

// FirstDump returns the recorded first dump of mint.
func (s *Store) FirstDump(ctx context.Context, mint string) (*models.DumpRecord, error) {
	query := `
		SELECT mint, signature, block_time, drop_percent, price_before, price_at_trigger, detected_at
		FROM first_dumps
		WHERE mint = $1
	`

	rec, err := scanDump(s.pool.QueryRow(ctx, query, mint))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get first dump: %w", err)
	}
	return rec, nil
}

// SaveFirstDump inserts rec unless the mint already has a dump and returns
// the stored row either way.
func (s *Store) SaveFirstDump(ctx context.Context, rec *models.DumpRecord) (*models.DumpRecord, error) {
	if rec == nil || rec.Mint == "" {
		return nil, storage.ErrInvalidInput
	}

	query := `
		INSERT INTO first_dumps (
			mint, signature, block_time, drop_percent, price_before, price_at_trigger, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (mint) DO NOTHING
	`

	_, err := s.pool.Exec(ctx, query,
		rec.Mint,
		rec.Signature,
		rec.BlockTime,
		rec.DropPercent,
		rec.PriceBefore,
		rec.PriceAtTrigger,
		rec.DetectedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert first dump: %w", err)
	}
	return s.FirstDump(ctx, rec.Mint)
}

func scanDump(row pgx.Row) (*models.DumpRecord, error) {
	var rec models.DumpRecord
	err := row.Scan(
		&rec.Mint, &rec.Signature, &rec.BlockTime, &rec.DropPercent,
		&rec.PriceBefore, &rec.PriceAtTrigger, &rec.DetectedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.DetectedAt = rec.DetectedAt.UTC()
	return &rec, nil
}
