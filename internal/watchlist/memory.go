package watchlist

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process watchlist with the same semantics as Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry), now: time.Now}
}

func (s *MemoryStore) Upsert(_ context.Context, mint, label string) (*Entry, error) {
	if err := ValidateMint(mint); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	e, ok := s.entries[mint]
	if !ok {
		e = Entry{Mint: mint, AddedAt: now}
	}
	e.Label = label
	e.UpdatedAt = now
	s.entries[mint] = e
	return &e, nil
}

func (s *MemoryStore) SetCursor(_ context.Context, mint, cursor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[mint]
	if !ok {
		return ErrNotFound
	}
	e.Cursor = cursor
	e.UpdatedAt = s.now().UTC()
	s.entries[mint] = e
	return nil
}

func (s *MemoryStore) Get(_ context.Context, mint string) (*Entry, error) {
	if err := ValidateMint(mint); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[mint]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (s *MemoryStore) List(context.Context) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		e := e
		out = append(out, &e)
	}
	sortEntries(out)
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, mint string) error {
	if err := ValidateMint(mint); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, mint)
	return nil
}

func sortEntries(entries []*Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].AddedAt.Equal(entries[j].AddedAt) {
			return entries[i].AddedAt.Before(entries[j].AddedAt)
		}
		return entries[i].Mint < entries[j].Mint
	})
}
