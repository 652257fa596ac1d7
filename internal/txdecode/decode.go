// Package txdecode turns raw getTransaction results into models.Transaction.
package txdecode

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/mr-tron/base58"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/models"
)

// ErrMalformed is returned for any structurally invalid transaction payload.
var ErrMalformed = errors.New("malformed transaction")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// Decode parses a getTransaction result. Account indices are resolved
// against static keys followed by loaded writable and read-only addresses.
func Decode(raw []byte) (*models.Transaction, error) {
	var res wireResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, malformed("invalid json: %v", err)
	}
	if res.Transaction == nil || res.Transaction.Message == nil {
		return nil, malformed("missing transaction message")
	}
	if res.Meta == nil {
		return nil, malformed("missing meta")
	}
	if len(res.Transaction.Signatures) == 0 {
		return nil, malformed("no signatures")
	}

	keys := make([]string, 0, len(res.Transaction.Message.AccountKeys))
	keys = append(keys, res.Transaction.Message.AccountKeys...)
	if la := res.Meta.LoadedAddresses; la != nil {
		keys = append(keys, la.Writable...)
		keys = append(keys, la.Readonly...)
	}

	tx := &models.Transaction{
		Signature:   res.Transaction.Signatures[0],
		Slot:        res.Slot,
		Failed:      isFailure(res.Meta.Err),
		AccountKeys: keys,
	}
	if res.BlockTime != nil {
		tx.BlockTime = *res.BlockTime
	}

	var err error
	if tx.Instructions, err = resolveInstructions(keys, res.Transaction.Message.Instructions); err != nil {
		return nil, err
	}

	tx.InnerGroups = make([]models.InnerGroup, 0, len(res.Meta.InnerInstructions))
	for _, group := range res.Meta.InnerInstructions {
		if group.Index < 0 || group.Index >= len(tx.Instructions) {
			return nil, malformed("inner group parent index %d out of range", group.Index)
		}
		ixs, err := resolveInstructions(keys, group.Instructions)
		if err != nil {
			return nil, err
		}
		tx.InnerGroups = append(tx.InnerGroups, models.InnerGroup{ParentIndex: group.Index, Instructions: ixs})
	}

	if tx.PreTokenBalances, err = resolveBalances(keys, res.Meta.PreTokenBalances); err != nil {
		return nil, err
	}
	if tx.PostTokenBalances, err = resolveBalances(keys, res.Meta.PostTokenBalances); err != nil {
		return nil, err
	}

	return tx, nil
}

func isFailure(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func resolveKey(keys []string, idx int) (string, error) {
	if idx < 0 || idx >= len(keys) {
		return "", malformed("account index %d out of range (%d keys)", idx, len(keys))
	}
	return keys[idx], nil
}

func resolveInstructions(keys []string, in []wireInstruction) ([]models.Instruction, error) {
	out := make([]models.Instruction, 0, len(in))
	for i, wi := range in {
		program, err := resolveKey(keys, wi.ProgramIDIndex)
		if err != nil {
			return nil, err
		}

		accounts := make([]string, 0, len(wi.Accounts))
		for _, idx := range wi.Accounts {
			acc, err := resolveKey(keys, idx)
			if err != nil {
				return nil, err
			}
			accounts = append(accounts, acc)
		}

		var data []byte
		if wi.Data != "" {
			if data, err = base58.Decode(wi.Data); err != nil {
				return nil, malformed("instruction %d data: %v", i, err)
			}
		}

		ix := models.Instruction{ProgramID: program, Accounts: accounts, Data: data}
		if wi.StackHeight != nil {
			ix.StackHeight = *wi.StackHeight
		}
		out = append(out, ix)
	}
	return out, nil
}

func resolveBalances(keys []string, in []wireTokenBalance) ([]models.TokenBalance, error) {
	out := make([]models.TokenBalance, 0, len(in))
	for _, wb := range in {
		account, err := resolveKey(keys, wb.AccountIndex)
		if err != nil {
			return nil, err
		}
		if wb.UITokenAmount == nil {
			return nil, malformed("token balance for %s has no amount", account)
		}
		amount, err := strconv.ParseUint(wb.UITokenAmount.Amount, 10, 64)
		if err != nil {
			return nil, malformed("token amount %q: %v", wb.UITokenAmount.Amount, err)
		}
		out = append(out, models.TokenBalance{
			AccountIndex: wb.AccountIndex,
			Account:      account,
			Owner:        wb.Owner,
			Mint:         wb.Mint,
			Amount:       amount,
			Decimals:     wb.UITokenAmount.Decimals,
		})
	}
	return out, nil
}
