// Package pools discovers liquidity pools for a token and caches them.
package pools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/constants"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/layout"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/metrics"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/models"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/rpc"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/storage"
)

// AccountFetcher is the subset of the RPC client the registry needs.
type AccountFetcher interface {
	GetProgramAccounts(ctx context.Context, programID string, filters []rpc.Filter) ([]rpc.AccountRecord, error)
	GetTokenAccountBalance(ctx context.Context, account string) (uint64, uint8, error)
}

// Registry answers which pools trade a mint, cache first.
type Registry struct {
	fetcher AccountFetcher
	cache   storage.PoolCache
	layouts []layout.Layout
	quotes  []string
	now     func() time.Time
	timeout time.Duration
	group   singleflight.Group
	logger  *logrus.Logger
}

// RegistryConfig holds configuration for the pool registry
type RegistryConfig struct {
	Fetcher AccountFetcher
	Cache   storage.PoolCache
	// Layouts defaults to layout.Default.
	Layouts []layout.Layout
	// QuoteMints defaults to constants.QuoteMints.
	QuoteMints []string
	Now        func() time.Time
	// DiscoveryTimeout bounds a shared discovery; defaults to 2 minutes.
	DiscoveryTimeout time.Duration
	Logger           *logrus.Logger
}

// NewRegistry creates a pool registry
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.Fetcher == nil || cfg.Cache == nil {
		return nil, fmt.Errorf("registry requires a fetcher and a cache")
	}
	if len(cfg.Layouts) == 0 {
		cfg.Layouts = layout.Default
	}
	if len(cfg.QuoteMints) == 0 {
		cfg.QuoteMints = constants.QuoteMints
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DiscoveryTimeout <= 0 {
		cfg.DiscoveryTimeout = 2 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	return &Registry{
		fetcher: cfg.Fetcher,
		cache:   cfg.Cache,
		layouts: cfg.Layouts,
		quotes:  cfg.QuoteMints,
		now:     cfg.Now,
		timeout: cfg.DiscoveryTimeout,
		logger:  cfg.Logger,
	}, nil
}

// FindPools returns the known pools of mint. An empty result means no pool
// was found and is not an error.
func (r *Registry) FindPools(ctx context.Context, mint string) ([]models.PoolRecord, error) {
	cached, err := r.cache.GetPools(ctx, mint)
	if err == nil {
		metrics.PoolLookup(true)
		return cached, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		r.logger.WithError(err).WithField("mint", mint).Warn("pool cache read failed, discovering")
	}
	metrics.PoolLookup(false)

	return r.discoverShared(ctx, mint)
}

// Refresh rediscovers the pools of mint, superseding the cached entry.
func (r *Registry) Refresh(ctx context.Context, mint string) ([]models.PoolRecord, error) {
	return r.discoverShared(ctx, mint)
}

// discoverShared runs one discovery per mint for all concurrent callers. The
// discovery is detached from any single caller's cancellation; a caller that
// gives up stops waiting without failing the others.
func (r *Registry) discoverShared(ctx context.Context, mint string) ([]models.PoolRecord, error) {
	ch := r.group.DoChan(mint, func() (any, error) {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		found, err := r.discover(dctx, mint)
		if err != nil {
			return nil, err
		}
		if err := r.cache.PutPools(dctx, mint, found); err != nil {
			r.logger.WithError(err).WithField("mint", mint).Warn("failed to cache pools")
		}
		return found, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		pools := res.Val.([]models.PoolRecord)
		return append([]models.PoolRecord{}, pools...), nil
	}
}

func (r *Registry) discover(ctx context.Context, mint string) ([]models.PoolRecord, error) {
	started := r.now()
	found := []models.PoolRecord{}

	for _, l := range r.layouts {
		for _, quote := range r.quotes {
			if quote == mint {
				continue
			}

			pool, err := r.findPair(ctx, l, mint, quote)
			if err != nil {
				return nil, fmt.Errorf("failed to discover %s pools for %s: %w", l.Name, mint, err)
			}
			if pool != nil {
				pool.RefreshedAt = r.now().UTC()
				found = append(found, *pool)
			}
		}
	}

	r.logger.WithFields(logrus.Fields{
		"mint":     mint,
		"pools":    len(found),
		"duration": r.now().Sub(started).String(),
	}).Info("pool discovery finished")

	return found, nil
}

// findPair looks for a mint/quote pool of layout l, trying the mint in the
// first slot and then in the second.
func (r *Registry) findPair(ctx context.Context, l layout.Layout, mint, quote string) (*models.PoolRecord, error) {
	orders := [][2]string{{mint, quote}, {quote, mint}}
	for _, order := range orders {
		filters, err := pairFilters(l, order[0], order[1])
		if err != nil {
			return nil, err
		}

		accounts, err := r.fetcher.GetProgramAccounts(ctx, l.ProgramID, filters)
		if err != nil {
			return nil, err
		}

		for _, acc := range accounts {
			fields, err := layout.Decode(acc.Data, l)
			if err != nil {
				r.logger.WithFields(logrus.Fields{
					"pool":   acc.Address,
					"layout": l.Name,
				}).WithError(err).Debug("skipping undecodable pool account")
				continue
			}

			rec := recordFrom(acc.Address, l, fields)
			if rec.Pairs(mint, quote) {
				return &rec, nil
			}
		}
	}
	return nil, nil
}

func pairFilters(l layout.Layout, first, second string) ([]rpc.Filter, error) {
	a, err := rpc.MemcmpFilter(uint64(l.MintAOffset), first)
	if err != nil {
		return nil, err
	}
	b, err := rpc.MemcmpFilter(uint64(l.MintBOffset), second)
	if err != nil {
		return nil, err
	}
	return []rpc.Filter{rpc.DataSizeFilter(uint64(l.Size)), a, b}, nil
}

func recordFrom(address string, l layout.Layout, f *layout.PoolFields) models.PoolRecord {
	return models.PoolRecord{
		Address:   address,
		Venue:     l.Venue,
		MintA:     f.MintA,
		MintB:     f.MintB,
		VaultA:    f.VaultA,
		VaultB:    f.VaultB,
		LPMint:    f.LPMint,
		DecimalsA: f.DecimalsA,
		DecimalsB: f.DecimalsB,
	}
}
