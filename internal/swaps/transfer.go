package swaps

import (
	"encoding/binary"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/constants"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/models"
)

// SPL token instruction tags.
const (
	tagTransfer        = 3
	tagTransferChecked = 12
)

type transfer struct {
	source      string
	destination string
	authority   string
	// mint is only known up front for TransferChecked.
	mint   string
	amount uint64
}

func isTokenProgram(programID string) bool {
	return programID == constants.TokenProgramID || programID == constants.Token2022ProgramID
}

// decodeTransfer recognises Transfer and TransferChecked with a non-zero amount.
func decodeTransfer(ix models.Instruction) (transfer, bool) {
	if !isTokenProgram(ix.ProgramID) || len(ix.Data) < 9 {
		return transfer{}, false
	}

	var t transfer
	switch ix.Data[0] {
	case tagTransfer:
		if len(ix.Accounts) < 3 {
			return transfer{}, false
		}
		t = transfer{source: ix.Accounts[0], destination: ix.Accounts[1], authority: ix.Accounts[2]}
	case tagTransferChecked:
		if len(ix.Data) < 10 || len(ix.Accounts) < 4 {
			return transfer{}, false
		}
		t = transfer{source: ix.Accounts[0], mint: ix.Accounts[1], destination: ix.Accounts[2], authority: ix.Accounts[3]}
	default:
		return transfer{}, false
	}

	t.amount = binary.LittleEndian.Uint64(ix.Data[1:9])
	if t.amount == 0 {
		return transfer{}, false
	}
	return t, true
}

// mintOf resolves the mint moved by t from the instruction itself, then the
// balance snapshots of either side, defaulting to wrapped SOL.
func mintOf(tx *models.Transaction, t transfer) string {
	if t.mint != "" {
		return t.mint
	}
	if b, ok := tx.TokenAccount(t.destination); ok && b.Mint != "" {
		return b.Mint
	}
	if b, ok := tx.TokenAccount(t.source); ok && b.Mint != "" {
		return b.Mint
	}
	return constants.WrappedSOLMint
}

// fromPayer reports whether the fee payer funded t, either directly or
// through a token account it owns.
func fromPayer(tx *models.Transaction, t transfer, payer string) bool {
	if t.source == payer {
		return true
	}
	b, ok := tx.TokenAccount(t.source)
	return ok && b.Owner == payer
}
