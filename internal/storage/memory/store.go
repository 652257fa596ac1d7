// Package memory provides in-process storage implementations used by tests
// and by the indexer when no database is configured.
package memory

import (
	"context"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/storage"
)

// Store combines the in-memory stores into a storage.Store.
type Store struct {
	*TransactionStore
	*DeadLetterStore
	*DumpStore
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		TransactionStore: NewTransactionStore(),
		DeadLetterStore:  NewDeadLetterStore(),
		DumpStore:        NewDumpStore(),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

var (
	_ storage.Store            = (*Store)(nil)
	_ storage.TransactionStore = (*TransactionStore)(nil)
	_ storage.DeadLetterStore  = (*DeadLetterStore)(nil)
	_ storage.DumpStore        = (*DumpStore)(nil)
	_ storage.PriceSampleStore = (*PriceSampleStore)(nil)
	_ storage.PoolCache        = (*PoolCache)(nil)
)
