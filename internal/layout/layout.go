// Package layout decodes fixed-layout pool accounts into pool fields.
package layout

import (
	"github.com/AlekSi/pointer"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/constants"
)

// Discriminant locates the "is this account initialised" field.
type Discriminant struct {
	Offset uint
	// Width is 1 or 8 bytes.
	Width         int
	Uninitialized uint64
}

// Layout is a versioned description of where pool fields live in account data.
type Layout struct {
	Name      string
	Version   int
	Venue     string
	ProgramID string
	Size      int

	Status Discriminant

	MintAOffset  uint
	MintBOffset  uint
	VaultAOffset uint
	VaultBOffset uint
	LPMintOffset *uint

	// DecimalsAOffset and DecimalsBOffset are u64 fields when present.
	DecimalsAOffset *uint
	DecimalsBOffset *uint
}

// RaydiumAMMv4 is the Raydium liquidity pool v4 AmmInfo account.
var RaydiumAMMv4 = Layout{
	Name:      "raydium_amm_v4",
	Version:   4,
	Venue:     "raydium",
	ProgramID: constants.RaydiumAMMv4,
	Size:      752,

	Status: Discriminant{Offset: 0, Width: 8, Uninitialized: 0},

	DecimalsAOffset: pointer.ToUint(32),
	DecimalsBOffset: pointer.ToUint(40),
	VaultAOffset:    336,
	VaultBOffset:    368,
	MintAOffset:     400,
	MintBOffset:     432,
	LPMintOffset:    pointer.ToUint(464),
}

// OrcaTokenSwapV1 is the legacy SPL token-swap account used by Orca v1 pools.
var OrcaTokenSwapV1 = Layout{
	Name:      "orca_token_swap_v1",
	Version:   1,
	Venue:     "orca",
	ProgramID: constants.OrcaTokenSwapV1,
	Size:      324,

	Status: Discriminant{Offset: 1, Width: 1, Uninitialized: 0},

	VaultAOffset: 35,
	VaultBOffset: 67,
	LPMintOffset: pointer.ToUint(99),
	MintAOffset:  131,
	MintBOffset:  163,
}

// Default is the set of layouts the registry searches, in priority order.
var Default = []Layout{RaydiumAMMv4, OrcaTokenSwapV1}
