package memory

import (
	"context"
	"sync"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/models"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/storage"
)

// TransactionStore is an in-memory implementation of storage.TransactionStore.
type TransactionStore struct {
	mu   sync.RWMutex
	data map[string]*models.TransactionRecord
	// mints maps a signature to the mints it was ingested for.
	mints map[string]map[string]bool
}

// NewTransactionStore creates a new in-memory transaction store.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{
		data:  make(map[string]*models.TransactionRecord),
		mints: make(map[string]map[string]bool),
	}
}

// UpsertTransaction merges rec into any stored row, keeping stored values
// where rec leaves optional fields nil.
func (s *TransactionStore) UpsertTransaction(_ context.Context, rec *models.TransactionRecord) error {
	if rec == nil || rec.Signature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := copyRecord(rec)
	if prev, ok := s.data[rec.Signature]; ok {
		if next.Slot == nil {
			next.Slot = prev.Slot
		}
		if next.BlockTime == nil {
			next.BlockTime = prev.BlockTime
		}
		if next.FeePayer == nil {
			next.FeePayer = prev.FeePayer
		}
		if next.Raw == nil {
			next.Raw = prev.Raw
		}
		if next.Swaps == nil {
			next.Swaps = prev.Swaps
		}
		if next.ParserVersion == "" {
			next.ParserVersion = prev.ParserVersion
		}
		if next.Source == "" {
			next.Source = prev.Source
		}
	}
	s.data[rec.Signature] = next

	if rec.Source != "" {
		if s.mints[rec.Signature] == nil {
			s.mints[rec.Signature] = make(map[string]bool)
		}
		s.mints[rec.Signature][rec.Source] = true
	}
	return nil
}

// ExistingSignatures returns the subset of signatures already ingested for
// mint, or stored at all when mint is empty.
func (s *TransactionStore) ExistingSignatures(_ context.Context, mint string, signatures []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]bool)
	for _, sig := range signatures {
		if _, ok := s.data[sig]; !ok {
			continue
		}
		if mint == "" || s.mints[sig][mint] {
			out[sig] = true
		}
	}
	return out, nil
}

// GetTransaction returns a stored row.
func (s *TransactionStore) GetTransaction(_ context.Context, signature string) (*models.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[signature]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyRecord(rec), nil
}

func copyRecord(rec *models.TransactionRecord) *models.TransactionRecord {
	c := *rec
	if rec.Raw != nil {
		c.Raw = append([]byte(nil), rec.Raw...)
	}
	if rec.Swaps != nil {
		c.Swaps = append([]models.SwapEvent(nil), rec.Swaps...)
	}
	return &c
}
