package memory

import (
	"context"
	"sync"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/models"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/storage"
)

// DumpStore is an in-memory implementation of storage.DumpStore.
type DumpStore struct {
	mu   sync.RWMutex
	data map[string]*models.DumpRecord // keyed by mint
}

// NewDumpStore creates a new in-memory dump store.
func NewDumpStore() *DumpStore {
	return &DumpStore{data: make(map[string]*models.DumpRecord)}
}

// FirstDump returns the recorded first dump of mint.
func (s *DumpStore) FirstDump(_ context.Context, mint string) (*models.DumpRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[mint]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *rec
	return &c, nil
}

// SaveFirstDump stores rec unless the mint already has a dump.
func (s *DumpStore) SaveFirstDump(_ context.Context, rec *models.DumpRecord) (*models.DumpRecord, error) {
	if rec == nil || rec.Mint == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.data[rec.Mint]; ok {
		c := *existing
		return &c, nil
	}
	c := *rec
	s.data[rec.Mint] = &c
	out := c
	return &out, nil
}
