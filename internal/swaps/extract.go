// Package swaps recovers swap events from decoded transactions.
package swaps

import (
	"math/big"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/models"
)

// Extract returns the swaps found in tx. Instruction groups are tried first;
// balance deltas are used only when no group qualifies. A transaction with
// no recognisable swap yields an empty slice.
func Extract(tx *models.Transaction) []models.SwapEvent {
	if tx == nil || tx.Failed || tx.FeePayer() == "" {
		return []models.SwapEvent{}
	}

	if events := FromInstructions(tx); len(events) > 0 {
		return events
	}
	if ev, ok := FromBalances(tx); ok {
		return []models.SwapEvent{ev}
	}
	return []models.SwapEvent{}
}

// FromInstructions emits one event per inner group holding exactly two
// non-zero token transfers that form a closed pair.
func FromInstructions(tx *models.Transaction) []models.SwapEvent {
	payer := tx.FeePayer()
	events := []models.SwapEvent{}

	for _, group := range tx.InnerGroups {
		var transfers []transfer
		for _, ix := range group.Instructions {
			if t, ok := decodeTransfer(ix); ok {
				transfers = append(transfers, t)
			}
		}
		if len(transfers) != 2 {
			continue
		}

		a, b := transfers[0], transfers[1]
		if a.source != b.destination || b.source != a.destination {
			continue
		}

		aOut, bOut := fromPayer(tx, a, payer), fromPayer(tx, b, payer)
		var out, in transfer
		switch {
		case aOut && !bOut:
			out, in = a, b
		case bOut && !aOut:
			out, in = b, a
		default:
			continue
		}

		tokenIn, tokenOut := mintOf(tx, out), mintOf(tx, in)
		if tokenIn == tokenOut {
			continue
		}

		parent := group.ParentIndex
		events = append(events, models.SwapEvent{
			Signature:   tx.Signature,
			Initiator:   payer,
			TokenIn:     tokenIn,
			AmountIn:    out.amount,
			TokenOut:    tokenOut,
			AmountOut:   in.amount,
			Method:      models.MethodInstruction,
			ParentIndex: &parent,
		})
	}
	return events
}

type ownerDelta struct {
	owner  string
	mints  []string
	change map[string]*big.Int
}

// FromBalances derives a swap from per-owner net balance changes. An owner
// qualifies with exactly one decreasing and one increasing mint; the fee
// payer wins over other qualifying owners.
func FromBalances(tx *models.Transaction) (models.SwapEvent, bool) {
	var owners []*ownerDelta
	byOwner := map[string]*ownerDelta{}

	apply := func(balances []models.TokenBalance, sign int) {
		for _, bal := range balances {
			if bal.Owner == "" || bal.Mint == "" {
				continue
			}
			od, ok := byOwner[bal.Owner]
			if !ok {
				od = &ownerDelta{owner: bal.Owner, change: map[string]*big.Int{}}
				byOwner[bal.Owner] = od
				owners = append(owners, od)
			}
			c, ok := od.change[bal.Mint]
			if !ok {
				c = new(big.Int)
				od.change[bal.Mint] = c
				od.mints = append(od.mints, bal.Mint)
			}
			amt := new(big.Int).SetUint64(bal.Amount)
			if sign < 0 {
				c.Sub(c, amt)
			} else {
				c.Add(c, amt)
			}
		}
	}
	apply(tx.PreTokenBalances, -1)
	apply(tx.PostTokenBalances, 1)

	payer := tx.FeePayer()
	var chosen *models.SwapEvent
	for _, od := range owners {
		ev, ok := od.swap(tx.Signature)
		if !ok {
			continue
		}
		if od.owner == payer {
			return ev, true
		}
		if chosen == nil {
			chosen = &ev
		}
	}
	if chosen == nil {
		return models.SwapEvent{}, false
	}
	return *chosen, true
}

func (od *ownerDelta) swap(signature string) (models.SwapEvent, bool) {
	var inMint, outMint string
	var inAmt, outAmt *big.Int
	for _, mint := range od.mints {
		c := od.change[mint]
		switch c.Sign() {
		case -1:
			if outMint != "" {
				return models.SwapEvent{}, false
			}
			outMint, outAmt = mint, new(big.Int).Neg(c)
		case 1:
			if inMint != "" {
				return models.SwapEvent{}, false
			}
			inMint, inAmt = mint, c
		}
	}
	if inMint == "" || outMint == "" || !inAmt.IsUint64() || !outAmt.IsUint64() {
		return models.SwapEvent{}, false
	}

	return models.SwapEvent{
		Signature: signature,
		Initiator: od.owner,
		TokenIn:   outMint,
		AmountIn:  outAmt.Uint64(),
		TokenOut:  inMint,
		AmountOut: inAmt.Uint64(),
		Method:    models.MethodBalance,
	}, true
}
