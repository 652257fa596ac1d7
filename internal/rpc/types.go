package rpc

import (
	"encoding/json"

	solanarpc "github.com/gagliardetto/solana-go/rpc"
)

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// SignatureInfo represents a transaction signature from getSignaturesForAddress
type SignatureInfo struct {
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
	Err       any    `json:"err"`
	BlockTime *int64 `json:"blockTime"`
}

// SignaturesOptions pages through an address history. Before and Until are
// exclusive signature cursors.
type SignaturesOptions struct {
	Limit  int
	Before string
	Until  string
}

func (o SignaturesOptions) params() map[string]any {
	out := map[string]any{}
	if o.Limit > 0 {
		out["limit"] = o.Limit
	}
	if o.Before != "" {
		out["before"] = o.Before
	}
	if o.Until != "" {
		out["until"] = o.Until
	}
	return out
}

// Filter is a getProgramAccounts filter.
type Filter = solanarpc.RPCFilter

// AccountRecord is a program account with its data already decoded.
type AccountRecord struct {
	Address string
	Owner   string
	Data    []byte
}

// RawTransaction is a getTransaction result kept exactly as received.
type RawTransaction struct {
	Signature string
	Result    json.RawMessage
}

// TokenAccountBalance is the value of getTokenAccountBalance.
type TokenAccountBalance struct {
	Amount   string `json:"amount"`
	Decimals uint8  `json:"decimals"`
}

type tokenAccountBalanceResult struct {
	Value TokenAccountBalance `json:"value"`
}
