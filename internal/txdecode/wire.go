package txdecode

import "encoding/json"

// Wire shapes of a getTransaction result in "json" encoding.

type wireInstruction struct {
	ProgramIDIndex int    `json:"programIdIndex"`
	Accounts       []int  `json:"accounts"`
	Data           string `json:"data"`
	StackHeight    *int   `json:"stackHeight"`
}

type wireInnerInstructions struct {
	Index        int               `json:"index"`
	Instructions []wireInstruction `json:"instructions"`
}

type wireUITokenAmount struct {
	Amount   string `json:"amount"`
	Decimals uint8  `json:"decimals"`
}

type wireTokenBalance struct {
	AccountIndex  int                `json:"accountIndex"`
	Mint          string             `json:"mint"`
	Owner         string             `json:"owner"`
	UITokenAmount *wireUITokenAmount `json:"uiTokenAmount"`
}

type wireLoadedAddresses struct {
	Writable []string `json:"writable"`
	Readonly []string `json:"readonly"`
}

type wireMeta struct {
	Err               json.RawMessage         `json:"err"`
	InnerInstructions []wireInnerInstructions `json:"innerInstructions"`
	PreTokenBalances  []wireTokenBalance      `json:"preTokenBalances"`
	PostTokenBalances []wireTokenBalance      `json:"postTokenBalances"`
	LoadedAddresses   *wireLoadedAddresses    `json:"loadedAddresses"`
}

type wireMessage struct {
	AccountKeys  []string          `json:"accountKeys"`
	Instructions []wireInstruction `json:"instructions"`
}

type wireTransaction struct {
	Signatures []string     `json:"signatures"`
	Message    *wireMessage `json:"message"`
}

type wireResult struct {
	Slot        uint64           `json:"slot"`
	BlockTime   *int64           `json:"blockTime"`
	Meta        *wireMeta        `json:"meta"`
	Transaction *wireTransaction `json:"transaction"`
}
