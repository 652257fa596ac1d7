// Package pricing turns swaps into price samples and finds abnormal drops.
package pricing

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/constants"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/models"
)

// DecimalsSource resolves the precision of a mint. *models.Transaction
// implements it from its own balance snapshots.
type DecimalsSource interface {
	Decimals(mint string) (uint8, bool)
}

func decimalsOf(src DecimalsSource, mint string) (uint8, bool) {
	// Native SOL never shows up in a balance snapshot.
	if mint == constants.WrappedSOLMint {
		return constants.NativeDecimals, true
	}
	if src == nil {
		return 0, false
	}
	return src.Decimals(mint)
}

func normalize(amount uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(decimals))
}

// PriceOf prices the non-quote side of ev in units of quoteMint. It returns
// false when the pair does not include the quote asset or a precision is
// unknown.
func PriceOf(ev models.SwapEvent, dec DecimalsSource, quoteMint string) (models.PriceSample, bool) {
	var (
		mint               string
		quoteRaw, tokenRaw uint64
		quoteDec, tokenDec uint8
		okQuote, okToken   bool
	)

	switch quoteMint {
	case ev.TokenIn:
		mint, quoteRaw, tokenRaw = ev.TokenOut, ev.AmountIn, ev.AmountOut
	case ev.TokenOut:
		mint, quoteRaw, tokenRaw = ev.TokenIn, ev.AmountOut, ev.AmountIn
	default:
		return models.PriceSample{}, false
	}
	if quoteRaw == 0 || tokenRaw == 0 {
		return models.PriceSample{}, false
	}

	if quoteDec, okQuote = decimalsOf(dec, quoteMint); !okQuote {
		return models.PriceSample{}, false
	}
	if tokenDec, okToken = decimalsOf(dec, mint); !okToken {
		return models.PriceSample{}, false
	}

	quote := normalize(quoteRaw, quoteDec)
	price, _ := quote.Div(normalize(tokenRaw, tokenDec)).Float64()
	volume, _ := quote.Float64()

	return models.PriceSample{
		Mint:      mint,
		Signature: ev.Signature,
		Price:     price,
		Volume:    volume,
	}, true
}

// SamplesFromTransaction prices every event of tx that trades mint against
// the quote asset, stamping each sample with the transaction's position.
func SamplesFromTransaction(tx *models.Transaction, events []models.SwapEvent, mint, quoteMint string) []models.PriceSample {
	samples := make([]models.PriceSample, 0, len(events))
	for _, ev := range events {
		s, ok := PriceOf(ev, tx, quoteMint)
		if !ok || (mint != "" && s.Mint != mint) {
			continue
		}
		s.Slot = tx.Slot
		s.BlockTime = tx.BlockTime
		samples = append(samples, s)
	}
	return samples
}
