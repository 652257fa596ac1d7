package ingest

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/constants"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/rpc"
)

// DefaultTokenAccountLimit bounds how many holder accounts a discovery scans.
const DefaultTokenAccountLimit = 10

// DiscoverOptions controls signature discovery for a mint.
type DiscoverOptions struct {
	// TotalLimit caps the number of signatures returned; 0 is unlimited.
	TotalLimit int
	// PageSize defaults to and is capped at constants.SignaturePageSize.
	PageSize int
	// IncludeTokenAccounts also walks the history of the mint's token accounts.
	IncludeTokenAccounts bool
	// TokenAccountLimit defaults to DefaultTokenAccountLimit.
	TokenAccountLimit int
	OldestFirst       bool
	// Until stops paging at this signature of the mint address, exclusive.
	Until string
}

// Discover collects the signatures touching mint, deduplicated, without
// entries lacking a block time, ordered by block time.
func (p *Pipeline) Discover(ctx context.Context, mint string, opts DiscoverOptions) ([]rpc.SignatureInfo, error) {
	if opts.PageSize <= 0 || opts.PageSize > constants.SignaturePageSize {
		opts.PageSize = constants.SignaturePageSize
	}

	found, err := p.history(ctx, mint, opts.Until, opts)
	if err != nil {
		return nil, err
	}

	if opts.IncludeTokenAccounts {
		accounts, err := p.tokenAccounts(ctx, mint, opts.TokenAccountLimit)
		if err != nil {
			return nil, err
		}
		for _, acct := range accounts {
			sigs, err := p.history(ctx, acct, "", opts)
			if err != nil {
				return nil, err
			}
			found = append(found, sigs...)
		}
	}

	out := dedupe(found)
	// Newest first, so truncation keeps the most recent activity.
	sort.SliceStable(out, func(i, j int) bool {
		if *out[i].BlockTime != *out[j].BlockTime {
			return *out[i].BlockTime > *out[j].BlockTime
		}
		return out[i].Slot > out[j].Slot
	})
	if opts.TotalLimit > 0 && len(out) > opts.TotalLimit {
		out = out[:opts.TotalLimit]
	}
	if opts.OldestFirst {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}

	p.logger.WithFields(logrus.Fields{
		"mint":       mint,
		"signatures": len(out),
	}).Info("discovered signatures")

	return out, nil
}

// history pages an address's signatures newest first until exhausted, the
// until cursor is reached or the total limit is met.
func (p *Pipeline) history(ctx context.Context, address, until string, opts DiscoverOptions) ([]rpc.SignatureInfo, error) {
	var (
		out    []rpc.SignatureInfo
		before string
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := p.rpc.GetSignaturesForAddress(ctx, address, rpc.SignaturesOptions{
			Limit:  opts.PageSize,
			Before: before,
			Until:  until,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get signatures for %s: %w", address, err)
		}
		out = append(out, page...)

		if len(page) < opts.PageSize {
			return out, nil
		}
		if opts.TotalLimit > 0 && len(out) >= opts.TotalLimit {
			return out, nil
		}
		before = page[len(page)-1].Signature

		p.logger.WithFields(logrus.Fields{
			"address": address,
			"fetched": len(out),
		}).Debug("fetching next signature page")
	}
}

// tokenAccounts lists SPL token accounts holding mint.
func (p *Pipeline) tokenAccounts(ctx context.Context, mint string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultTokenAccountLimit
	}

	byMint, err := rpc.MemcmpFilter(0, mint)
	if err != nil {
		return nil, fmt.Errorf("invalid mint %s: %w", mint, err)
	}

	records, err := p.rpc.GetProgramAccounts(ctx, constants.TokenProgramID, []rpc.Filter{
		rpc.DataSizeFilter(constants.TokenAccountSize),
		byMint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list token accounts of %s: %w", mint, err)
	}

	out := make([]string, 0, min(limit, len(records)))
	for _, r := range records {
		if len(out) == limit {
			break
		}
		out = append(out, r.Address)
	}
	return out, nil
}

func dedupe(in []rpc.SignatureInfo) []rpc.SignatureInfo {
	seen := make(map[string]bool, len(in))
	out := make([]rpc.SignatureInfo, 0, len(in))
	for _, s := range in {
		if s.BlockTime == nil || seen[s.Signature] {
			continue
		}
		seen[s.Signature] = true
		out = append(out, s)
	}
	return out
}

// FilterNew drops signatures already ingested for mint. A transaction stored
// while ingesting another mint is kept, since its samples for mint are not
// stored yet.
func (p *Pipeline) FilterNew(ctx context.Context, mint string, sigs []rpc.SignatureInfo) ([]string, error) {
	all := make([]string, len(sigs))
	for i, s := range sigs {
		all[i] = s.Signature
	}
	if len(all) == 0 {
		return all, nil
	}

	existing, err := p.transactions.ExistingSignatures(ctx, mint, all)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing signatures: %w", err)
	}

	out := make([]string, 0, len(all))
	for _, s := range all {
		if !existing[s] {
			out = append(out, s)
		}
	}
	return out, nil
}

// Ingest discovers, filters and runs a mint's history. Signatures already
// ingested for mint count as skipped.
func (p *Pipeline) Ingest(ctx context.Context, mint string, opts DiscoverOptions) (*Report, error) {
	sigs, err := p.Discover(ctx, mint, opts)
	if err != nil {
		return &Report{}, err
	}
	return p.runNew(ctx, mint, sigs)
}

// runNew runs the signatures not yet ingested for mint and counts the rest
// as skipped.
func (p *Pipeline) runNew(ctx context.Context, mint string, sigs []rpc.SignatureInfo) (*Report, error) {
	fresh, err := p.FilterNew(ctx, mint, sigs)
	if err != nil {
		return &Report{}, err
	}

	report, err := p.Run(ctx, mint, fresh)
	report.Skipped += len(sigs) - len(fresh)
	return report, err
}
