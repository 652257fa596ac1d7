package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/models"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/storage"
)

// DeadLetterStore is an in-memory implementation of storage.DeadLetterStore.
type DeadLetterStore struct {
	mu   sync.RWMutex
	data map[string]*models.DeadLetter
	now  func() time.Time
}

// NewDeadLetterStore creates a new in-memory dead-letter store.
func NewDeadLetterStore() *DeadLetterStore {
	return &DeadLetterStore{data: make(map[string]*models.DeadLetter), now: time.Now}
}

// AppendDeadLetter records a failure, escalating to permanent at maxAttempts.
func (s *DeadLetterStore) AppendDeadLetter(_ context.Context, dl *models.DeadLetter, maxAttempts int) (*models.DeadLetter, error) {
	if dl == nil || dl.Signature == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	next := copyDeadLetter(dl)
	next.LastFailure = now
	if prev, ok := s.data[dl.Signature]; ok {
		next.Attempts = prev.Attempts + 1
		next.FirstFailure = prev.FirstFailure
		if next.Payload == nil {
			next.Payload = prev.Payload
		}
		if next.Mint == "" {
			next.Mint = prev.Mint
		}
	} else {
		next.Attempts = 1
		next.FirstFailure = now
	}

	next.Status = models.DeadLetterRetryable
	if maxAttempts > 0 && next.Attempts >= maxAttempts {
		next.Status = models.DeadLetterPermanent
	}

	s.data[dl.Signature] = next
	return copyDeadLetter(next), nil
}

// GetDeadLetter returns a queued entry.
func (s *DeadLetterStore) GetDeadLetter(_ context.Context, signature string) (*models.DeadLetter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dl, ok := s.data[signature]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyDeadLetter(dl), nil
}

// ListDeadLetters returns entries ordered by first failure. Empty mint or
// status match everything.
func (s *DeadLetterStore) ListDeadLetters(_ context.Context, mint string, status models.DeadLetterStatus) ([]*models.DeadLetter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*models.DeadLetter{}
	for _, dl := range s.data {
		if mint != "" && dl.Mint != mint {
			continue
		}
		if status != "" && dl.Status != status {
			continue
		}
		out = append(out, copyDeadLetter(dl))
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].FirstFailure.Equal(out[j].FirstFailure) {
			return out[i].FirstFailure.Before(out[j].FirstFailure)
		}
		return out[i].Signature < out[j].Signature
	})
	return out, nil
}

// RemoveDeadLetter deletes an entry.
func (s *DeadLetterStore) RemoveDeadLetter(_ context.Context, signature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[signature]; !ok {
		return storage.ErrNotFound
	}
	delete(s.data, signature)
	return nil
}

func copyDeadLetter(dl *models.DeadLetter) *models.DeadLetter {
	c := *dl
	if dl.Payload != nil {
		c.Payload = append([]byte(nil), dl.Payload...)
	}
	return &c
}
