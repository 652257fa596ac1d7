package models

// Instruction is a decoded instruction with account indices already resolved
// to addresses.
type Instruction struct {
	ProgramID string   `json:"program_id"`
	Accounts  []string `json:"accounts"`
	Data      []byte   `json:"data"`
	// StackHeight is reported for inner instructions only.
	StackHeight int `json:"stack_height,omitempty"`
}

// InnerGroup holds the instructions a top-level instruction invoked via CPI.
type InnerGroup struct {
	ParentIndex  int           `json:"parent_index"`
	Instructions []Instruction `json:"instructions"`
}

// TokenBalance is one token account snapshot from transaction metadata.
type TokenBalance struct {
	AccountIndex int    `json:"account_index"`
	Account      string `json:"account"`
	Owner        string `json:"owner"`
	Mint         string `json:"mint"`
	Amount       uint64 `json:"amount"`
	Decimals     uint8  `json:"decimals"`
}

// Transaction is the decoded, immutable form of a getTransaction result.
type Transaction struct {
	Signature         string         `json:"signature"`
	Slot              uint64         `json:"slot"`
	BlockTime         int64          `json:"block_time"`
	Failed            bool           `json:"failed"`
	AccountKeys       []string       `json:"account_keys"`
	Instructions      []Instruction  `json:"instructions"`
	InnerGroups       []InnerGroup   `json:"inner_groups"`
	PreTokenBalances  []TokenBalance `json:"pre_token_balances"`
	PostTokenBalances []TokenBalance `json:"post_token_balances"`
}

// FeePayer is the first account key, or "" for an empty key list.
func (t *Transaction) FeePayer() string {
	if len(t.AccountKeys) == 0 {
		return ""
	}
	return t.AccountKeys[0]
}

// Decimals returns the precision recorded for mint in either snapshot.
func (t *Transaction) Decimals(mint string) (uint8, bool) {
	for _, b := range t.PreTokenBalances {
		if b.Mint == mint {
			return b.Decimals, true
		}
	}
	for _, b := range t.PostTokenBalances {
		if b.Mint == mint {
			return b.Decimals, true
		}
	}
	return 0, false
}

// TokenAccount looks up a token account in the balance snapshots, post first.
func (t *Transaction) TokenAccount(account string) (TokenBalance, bool) {
	for _, b := range t.PostTokenBalances {
		if b.Account == account {
			return b, true
		}
	}
	for _, b := range t.PreTokenBalances {
		if b.Account == account {
			return b, true
		}
	}
	return TokenBalance{}, false
}

// TransactionRecord is the persisted row for a processed signature. Nil
// pointer fields leave the stored column untouched on upsert.
type TransactionRecord struct {
	Signature     string      `json:"signature"`
	Slot          *uint64     `json:"slot,omitempty"`
	BlockTime     *int64      `json:"block_time,omitempty"`
	FeePayer      *string     `json:"fee_payer,omitempty"`
	Failed        bool        `json:"failed"`
	Raw           []byte      `json:"-"`
	Swaps         []SwapEvent `json:"swaps"`
	ParserVersion string      `json:"parser_version"`
	Source        string      `json:"source"`
}
