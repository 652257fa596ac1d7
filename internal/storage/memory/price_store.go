package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/models"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/storage"
)

// PriceSampleStore is an in-memory implementation of storage.PriceSampleStore.
type PriceSampleStore struct {
	mu   sync.RWMutex
	data map[string][]models.PriceSample // keyed by mint
	seen map[string]map[string]bool      // mint -> signature
}

// NewPriceSampleStore creates a new in-memory price sample store.
func NewPriceSampleStore() *PriceSampleStore {
	return &PriceSampleStore{
		data: make(map[string][]models.PriceSample),
		seen: make(map[string]map[string]bool),
	}
}

// AppendSamples adds samples, ignoring (mint, signature) pairs already stored.
func (s *PriceSampleStore) AppendSamples(_ context.Context, samples []models.PriceSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sample := range samples {
		if sample.Mint == "" || sample.Signature == "" {
			return storage.ErrInvalidInput
		}
		if s.seen[sample.Mint] == nil {
			s.seen[sample.Mint] = make(map[string]bool)
		}
		if s.seen[sample.Mint][sample.Signature] {
			continue
		}
		s.seen[sample.Mint][sample.Signature] = true
		s.data[sample.Mint] = append(s.data[sample.Mint], sample)
	}
	return nil
}

// PriceSamples returns a mint's samples ordered by block time, then slot.
// Samples with equal positions keep their insertion order.
func (s *PriceSampleStore) PriceSamples(_ context.Context, mint string) ([]models.PriceSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]models.PriceSample{}, s.data[mint]...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BlockTime != out[j].BlockTime {
			return out[i].BlockTime < out[j].BlockTime
		}
		return out[i].Slot < out[j].Slot
	})
	return out, nil
}
