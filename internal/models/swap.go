package models

// Method records how a swap was recovered from a transaction.
type Method string

const (
	MethodInstruction Method = "instruction"
	MethodBalance     Method = "balance"
)

// SwapEvent is one exchange of token in for token out. Amounts are raw
// integer units and always positive.
type SwapEvent struct {
	Signature string `json:"signature"`
	Initiator string `json:"initiator"`
	TokenIn   string `json:"token_in"`
	AmountIn  uint64 `json:"amount_in"`
	TokenOut  string `json:"token_out"`
	AmountOut uint64 `json:"amount_out"`
	Method    Method `json:"method"`
	// ParentIndex is set for instruction-based events only.
	ParentIndex *int `json:"parent_index,omitempty"`
}
