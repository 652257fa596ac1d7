package storage

import (
	"context"
	"io"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/models"
)

// TransactionStore defines persistent storage for processed transactions
type TransactionStore interface {
	// UpsertTransaction inserts or updates a row keyed by signature. Nil
	// optional fields never overwrite stored values. A non-empty Source marks
	// the signature as ingested for that mint.
	UpsertTransaction(ctx context.Context, rec *models.TransactionRecord) error

	// ExistingSignatures returns the subset of signatures already ingested
	// for mint. An empty mint matches any stored row.
	ExistingSignatures(ctx context.Context, mint string, signatures []string) (map[string]bool, error)
}

// DeadLetterStore keeps items the pipeline could not process
type DeadLetterStore interface {
	// AppendDeadLetter records a failure. Repeated failures of the same
	// signature increment its attempts and escalate it to permanent once
	// maxAttempts is reached.
	AppendDeadLetter(ctx context.Context, dl *models.DeadLetter, maxAttempts int) (*models.DeadLetter, error)

	// GetDeadLetter returns ErrNotFound when the signature is not queued
	GetDeadLetter(ctx context.Context, signature string) (*models.DeadLetter, error)

	// ListDeadLetters returns entries for a mint, or all entries when mint is empty
	ListDeadLetters(ctx context.Context, mint string, status models.DeadLetterStatus) ([]*models.DeadLetter, error)

	// RemoveDeadLetter deletes an entry, returning ErrNotFound if it was already gone
	RemoveDeadLetter(ctx context.Context, signature string) error
}

// PriceSampleStore persists a token's price history
type PriceSampleStore interface {
	// AppendSamples adds samples; a (mint, signature) pair is stored once
	AppendSamples(ctx context.Context, samples []models.PriceSample) error

	// PriceSamples returns a mint's samples in ascending block time order
	PriceSamples(ctx context.Context, mint string) ([]models.PriceSample, error)
}

// DumpStore persists the first detected dump per mint
type DumpStore interface {
	// FirstDump returns ErrNotFound when no dump is recorded
	FirstDump(ctx context.Context, mint string) (*models.DumpRecord, error)

	// SaveFirstDump inserts rec unless a dump is already stored for the mint,
	// and returns whichever record is stored afterwards
	SaveFirstDump(ctx context.Context, rec *models.DumpRecord) (*models.DumpRecord, error)
}

// PoolCache maps a mint to its known pools
type PoolCache interface {
	// GetPools returns ErrNotFound on a cache miss
	GetPools(ctx context.Context, mint string) ([]models.PoolRecord, error)

	// PutPools replaces the cached entry for a mint
	PutPools(ctx context.Context, mint string, pools []models.PoolRecord) error
}

// DumpPublisher fans out newly detected dumps
type DumpPublisher interface {
	PublishDump(ctx context.Context, rec *models.DumpRecord) error
}

// Store bundles every persistence concern of the indexer
type Store interface {
	TransactionStore
	DeadLetterStore
	DumpStore

	// Ping checks if the store is reachable
	Ping(ctx context.Context) error

	// Close closes the store connection
	io.Closer
}
