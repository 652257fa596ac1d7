package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/models"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/storage"
)

// UpsertTransaction inserts a row or merges it into the stored one. NULL
// columns in the new row never overwrite stored values. The row and its
// source mint marker are written in one transaction.
func (s *Store) UpsertTransaction(ctx context.Context, rec *models.TransactionRecord) error {
	if rec == nil || rec.Signature == "" {
		return storage.ErrInvalidInput
	}

	var swaps []byte
	if rec.Swaps != nil {
		b, err := json.Marshal(rec.Swaps)
		if err != nil {
			return fmt.Errorf("marshal swaps: %w", err)
		}
		swaps = b
	}

	query := `
		INSERT INTO transactions (
			signature, slot, block_time, fee_payer, failed, raw, swaps, parser_version, source, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10)
		ON CONFLICT (signature) DO UPDATE SET
			slot           = COALESCE(EXCLUDED.slot, transactions.slot),
			block_time     = COALESCE(EXCLUDED.block_time, transactions.block_time),
			fee_payer      = COALESCE(EXCLUDED.fee_payer, transactions.fee_payer),
			failed         = EXCLUDED.failed,
			raw            = COALESCE(EXCLUDED.raw, transactions.raw),
			swaps          = COALESCE(EXCLUDED.swaps, transactions.swaps),
			parser_version = COALESCE(EXCLUDED.parser_version, transactions.parser_version),
			source         = COALESCE(EXCLUDED.source, transactions.source),
			updated_at     = EXCLUDED.updated_at
	`

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, query,
			rec.Signature,
			toInt64(rec.Slot),
			rec.BlockTime,
			rec.FeePayer,
			rec.Failed,
			rec.Raw,
			swaps,
			rec.ParserVersion,
			rec.Source,
			s.now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("upsert transaction: %w", err)
		}

		if rec.Source == "" {
			return nil
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO transaction_mints (signature, mint) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, rec.Signature, rec.Source)
		if err != nil {
			return fmt.Errorf("mark transaction mint: %w", err)
		}
		return nil
	})
}

// ExistingSignatures returns the subset of signatures already ingested for
// mint, or stored at all when mint is empty.
func (s *Store) ExistingSignatures(ctx context.Context, mint string, signatures []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(signatures) == 0 {
		return out, nil
	}

	query := `SELECT signature FROM transactions WHERE signature = ANY($1)`
	args := []any{signatures}
	if mint != "" {
		query = `SELECT signature FROM transaction_mints WHERE mint = $2 AND signature = ANY($1)`
		args = append(args, mint)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query existing signatures: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sig string
		if err := rows.Scan(&sig); err != nil {
			return nil, fmt.Errorf("scan signature: %w", err)
		}
		out[sig] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signatures: %w", err)
	}
	return out, nil
}

// GetTransaction returns a stored row.
func (s *Store) GetTransaction(ctx context.Context, signature string) (*models.TransactionRecord, error) {
	query := `
		SELECT signature, slot, block_time, fee_payer, failed, raw, swaps,
			COALESCE(parser_version, ''), COALESCE(source, '')
		FROM transactions
		WHERE signature = $1
	`

	var (
		rec   models.TransactionRecord
		slot  *int64
		swaps []byte
	)
	err := s.pool.QueryRow(ctx, query, signature).Scan(
		&rec.Signature, &slot, &rec.BlockTime, &rec.FeePayer, &rec.Failed,
		&rec.Raw, &swaps, &rec.ParserVersion, &rec.Source,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}

	if slot != nil {
		v := uint64(*slot)
		rec.Slot = &v
	}
	if swaps != nil {
		if err := json.Unmarshal(swaps, &rec.Swaps); err != nil {
			return nil, fmt.Errorf("unmarshal swaps: %w", err)
		}
	}
	return &rec, nil
}

func toInt64(v *uint64) *int64 {
	if v == nil {
		return nil
	}
	i := int64(*v)
	return &i
}
