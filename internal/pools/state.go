package pools

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/models"
)

// PoolState is a point-in-time reading of a pool's vault balances.
type PoolState struct {
	Pool      models.PoolRecord
	ReserveA  uint64
	ReserveB  uint64
	DecimalsA uint8
	DecimalsB uint8
	Timestamp int64
}

// Reserves fetches current vault balances for a pool.
func (r *Registry) Reserves(ctx context.Context, pool models.PoolRecord) (*PoolState, error) {
	reserveA, decimalsA, err := r.fetcher.GetTokenAccountBalance(ctx, pool.VaultA)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch vault A balance: %w", err)
	}

	reserveB, decimalsB, err := r.fetcher.GetTokenAccountBalance(ctx, pool.VaultB)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch vault B balance: %w", err)
	}

	return &PoolState{
		Pool:      pool,
		ReserveA:  reserveA,
		ReserveB:  reserveB,
		DecimalsA: decimalsA,
		DecimalsB: decimalsB,
		Timestamp: r.now().Unix(),
	}, nil
}

// GetReserves returns reserves in the correct order for a swap direction
func (ps *PoolState) GetReserves(aToB bool) (reserveIn, reserveOut uint64) {
	if aToB {
		return ps.ReserveA, ps.ReserveB
	}
	return ps.ReserveB, ps.ReserveA
}

// SpotPrice is the constant-product price of the non-quote side in units of
// quoteMint.
func (ps *PoolState) SpotPrice(quoteMint string) (float64, error) {
	var (
		quote, token       uint64
		quoteDec, tokenDec uint8
	)
	switch quoteMint {
	case ps.Pool.MintA:
		quote, quoteDec, token, tokenDec = ps.ReserveA, ps.DecimalsA, ps.ReserveB, ps.DecimalsB
	case ps.Pool.MintB:
		quote, quoteDec, token, tokenDec = ps.ReserveB, ps.DecimalsB, ps.ReserveA, ps.DecimalsA
	default:
		return 0, fmt.Errorf("pool %s does not trade %s", ps.Pool.Address, quoteMint)
	}

	if quote == 0 || token == 0 {
		return 0, fmt.Errorf("pool %s has an empty reserve", ps.Pool.Address)
	}

	price, _ := scaled(quote, quoteDec).Div(scaled(token, tokenDec)).Float64()
	return price, nil
}

func scaled(amount uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(decimals))
}
