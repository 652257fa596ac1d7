// Package watchlist tracks the mints followed by the indexer.
package watchlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/constants"
)

// Store keeps watchlist entries in Redis: one JSON value per mint plus an
// index set of mints.
type Store struct {
	client redis.Cmdable
	now    func() time.Time
}

func NewStore(client redis.Cmdable) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	return &Store{client: client, now: time.Now}, nil
}

// Upsert adds mint or relabels it, keeping its cursor.
func (s *Store) Upsert(ctx context.Context, mint, label string) (*Entry, error) {
	if err := ValidateMint(mint); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	entry, err := s.Get(ctx, mint)
	switch {
	case errors.Is(err, ErrNotFound):
		entry = &Entry{Mint: mint, AddedAt: now}
	case err != nil:
		return nil, err
	}
	entry.Label = label
	entry.UpdatedAt = now

	if err := s.put(ctx, entry); err != nil {
		return nil, fmt.Errorf("upsert watchlist entry: %w", err)
	}
	return entry, nil
}

// SetCursor records the newest ingested signature of a watched mint.
func (s *Store) SetCursor(ctx context.Context, mint, cursor string) error {
	entry, err := s.Get(ctx, mint)
	if err != nil {
		return err
	}
	entry.Cursor = cursor
	entry.UpdatedAt = s.now().UTC()

	if err := s.put(ctx, entry); err != nil {
		return fmt.Errorf("set watchlist cursor: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, mint string) (*Entry, error) {
	if err := ValidateMint(mint); err != nil {
		return nil, err
	}

	val, err := s.client.Get(ctx, entryKey(mint)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get watchlist entry: %w", err)
	}

	var e Entry
	if err := json.Unmarshal([]byte(val), &e); err != nil {
		return nil, fmt.Errorf("unmarshal watchlist entry: %w", err)
	}
	return &e, nil
}

func (s *Store) List(ctx context.Context) ([]*Entry, error) {
	mints, err := s.client.SMembers(ctx, constants.RedisKeyWatchIndex).Result()
	if err != nil {
		return nil, fmt.Errorf("list watchlist index: %w", err)
	}

	keys := make([]string, 0, len(mints))
	for _, m := range mints {
		if ValidateMint(m) != nil {
			continue
		}
		keys = append(keys, entryKey(m))
	}
	if len(keys) == 0 {
		return []*Entry{}, nil
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget watchlist: %w", err)
	}

	out := make([]*Entry, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(str), &e); err != nil {
			continue
		}
		out = append(out, &e)
	}
	sortEntries(out)
	return out, nil
}

func (s *Store) Delete(ctx context.Context, mint string) error {
	if err := ValidateMint(mint); err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, entryKey(mint))
	pipe.SRem(ctx, constants.RedisKeyWatchIndex, mint)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete watchlist entry: %w", err)
	}
	return nil
}

func (s *Store) put(ctx context.Context, e *Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, entryKey(e.Mint), b, 0)
	pipe.SAdd(ctx, constants.RedisKeyWatchIndex, e.Mint)
	_, err = pipe.Exec(ctx)
	return err
}

func entryKey(mint string) string {
	return constants.RedisKeyWatchPrefix + mint
}
