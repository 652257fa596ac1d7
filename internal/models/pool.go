package models

import "time"

// PoolRecord is a discovered liquidity pool. Records are keyed by address and
// superseded on refresh, never deleted.
type PoolRecord struct {
	Address     string    `json:"address"`
	Venue       string    `json:"venue"`
	MintA       string    `json:"mint_a"`
	MintB       string    `json:"mint_b"`
	VaultA      string    `json:"vault_a"`
	VaultB      string    `json:"vault_b"`
	LPMint      *string   `json:"lp_mint,omitempty"`
	DecimalsA   *uint8    `json:"decimals_a,omitempty"`
	DecimalsB   *uint8    `json:"decimals_b,omitempty"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

// Pairs reports whether the pool trades exactly x against y, in either order.
func (p PoolRecord) Pairs(x, y string) bool {
	return (p.MintA == x && p.MintB == y) || (p.MintA == y && p.MintB == x)
}
