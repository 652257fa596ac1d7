package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/models"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/storage"
)

const deadLetterColumns = `signature, mint, reason, payload, attempts, status, first_failure, last_failure`

// AppendDeadLetter records a failure, escalating to permanent at maxAttempts.
func (s *Store) AppendDeadLetter(ctx context.Context, dl *models.DeadLetter, maxAttempts int) (*models.DeadLetter, error) {
	if dl == nil || dl.Signature == "" {
		return nil, storage.ErrInvalidInput
	}

	query := `
		INSERT INTO dead_letters (` + deadLetterColumns + `)
		VALUES ($1, $2, $3, $4, 1,
			CASE WHEN $5::int > 0 AND 1 >= $5::int THEN 'permanent' ELSE 'retryable' END,
			$6, $6)
		ON CONFLICT (signature) DO UPDATE SET
			mint         = COALESCE(NULLIF(EXCLUDED.mint, ''), dead_letters.mint),
			reason       = EXCLUDED.reason,
			payload      = COALESCE(EXCLUDED.payload, dead_letters.payload),
			attempts     = dead_letters.attempts + 1,
			status       = CASE WHEN $5::int > 0 AND dead_letters.attempts + 1 >= $5::int
			               THEN 'permanent' ELSE 'retryable' END,
			last_failure = EXCLUDED.last_failure
		RETURNING ` + deadLetterColumns

	row := s.pool.QueryRow(ctx, query,
		dl.Signature, dl.Mint, dl.Reason, dl.Payload, maxAttempts, s.now().UTC(),
	)
	out, err := scanDeadLetter(row)
	if err != nil {
		return nil, fmt.Errorf("append dead letter: %w", err)
	}
	return out, nil
}

// GetDeadLetter returns a queued entry.
func (s *Store) GetDeadLetter(ctx context.Context, signature string) (*models.DeadLetter, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+deadLetterColumns+` FROM dead_letters WHERE signature = $1`, signature)
	dl, err := scanDeadLetter(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get dead letter: %w", err)
	}
	return dl, nil
}

// ListDeadLetters returns entries ordered by first failure. Empty mint or
// status match everything.
func (s *Store) ListDeadLetters(ctx context.Context, mint string, status models.DeadLetterStatus) ([]*models.DeadLetter, error) {
	query := `
		SELECT ` + deadLetterColumns + `
		FROM dead_letters
		WHERE ($1 = '' OR mint = $1) AND ($2 = '' OR status = $2)
		ORDER BY first_failure ASC, signature ASC
	`

	rows, err := s.pool.Query(ctx, query, mint, string(status))
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	out := []*models.DeadLetter{}
	for rows.Next() {
		dl, err := scanDeadLetter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		out = append(out, dl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dead letters: %w", err)
	}
	return out, nil
}

// RemoveDeadLetter deletes an entry.
func (s *Store) RemoveDeadLetter(ctx context.Context, signature string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM dead_letters WHERE signature = $1`, signature)
	if err != nil {
		return fmt.Errorf("remove dead letter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanDeadLetter(row pgx.Row) (*models.DeadLetter, error) {
	var (
		dl     models.DeadLetter
		status string
	)
	err := row.Scan(
		&dl.Signature, &dl.Mint, &dl.Reason, &dl.Payload,
		&dl.Attempts, &status, &dl.FirstFailure, &dl.LastFailure,
	)
	if err != nil {
		return nil, err
	}
	dl.Status = models.DeadLetterStatus(status)
	dl.FirstFailure = dl.FirstFailure.UTC()
	dl.LastFailure = dl.LastFailure.UTC()
	return &dl, nil
}
