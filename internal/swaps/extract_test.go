package swaps

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/constants"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/models"
)

const (
	payer   = "Payer1111111111111111111111111111111111111"
	pool    = "Pool11111111111111111111111111111111111111"
	poolOwn = "PoolAuthority111111111111111111111111111111"
	token   = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
)

func transferIx(program string, src, dst, auth string, amount uint64) models.Instruction {
	data := make([]byte, 9)
	data[0] = tagTransfer
	binary.LittleEndian.PutUint64(data[1:], amount)
	return models.Instruction{ProgramID: program, Accounts: []string{src, dst, auth}, Data: data}
}

func transferCheckedIx(src, mint, dst, auth string, amount uint64, decimals byte) models.Instruction {
	data := make([]byte, 10)
	data[0] = tagTransferChecked
	binary.LittleEndian.PutUint64(data[1:], amount)
	data[9] = decimals
	return models.Instruction{ProgramID: constants.TokenProgramID, Accounts: []string{src, mint, dst, auth}, Data: data}
}

func otherIx() models.Instruction {
	return models.Instruction{ProgramID: constants.RaydiumAMMv4, Accounts: []string{pool}, Data: []byte{9, 1, 2}}
}

// swapTx is a buy of token with wrapped SOL routed through one pool, with
// both the instruction trace and matching balance snapshots.
func swapTx() *models.Transaction {
	return &models.Transaction{
		Signature:   "sig-swap",
		Slot:        10,
		BlockTime:   1700000000,
		AccountKeys: []string{payer, pool, constants.TokenProgramID},
		Instructions: []models.Instruction{
			otherIx(),
		},
		InnerGroups: []models.InnerGroup{
			{ParentIndex: 0, Instructions: []models.Instruction{
				transferIx(constants.TokenProgramID, payer, pool, payer, 2_000_000_000),
				transferCheckedIx(pool, token, payer, poolOwn, 5_000_000, 6),
			}},
		},
		PreTokenBalances: []models.TokenBalance{
			{Account: "PayerWSOL", Owner: payer, Mint: constants.WrappedSOLMint, Amount: 3_000_000_000, Decimals: 9},
			{Account: "PayerTKN", Owner: payer, Mint: token, Amount: 0, Decimals: 6},
			{Account: "VaultWSOL", Owner: poolOwn, Mint: constants.WrappedSOLMint, Amount: 10_000_000_000, Decimals: 9},
			{Account: "VaultTKN", Owner: poolOwn, Mint: token, Amount: 100_000_000, Decimals: 6},
		},
		PostTokenBalances: []models.TokenBalance{
			{Account: "PayerWSOL", Owner: payer, Mint: constants.WrappedSOLMint, Amount: 1_000_000_000, Decimals: 9},
			{Account: "PayerTKN", Owner: payer, Mint: token, Amount: 5_000_000, Decimals: 6},
			{Account: "VaultWSOL", Owner: poolOwn, Mint: constants.WrappedSOLMint, Amount: 12_000_000_000, Decimals: 9},
			{Account: "VaultTKN", Owner: poolOwn, Mint: token, Amount: 95_000_000, Decimals: 6},
		},
	}
}

func TestExtract_InstructionBased(t *testing.T) {
	events := Extract(swapTx())
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, models.MethodInstruction, ev.Method)
	assert.Equal(t, "sig-swap", ev.Signature)
	assert.Equal(t, payer, ev.Initiator)
	assert.Equal(t, constants.WrappedSOLMint, ev.TokenIn)
	assert.Equal(t, uint64(2_000_000_000), ev.AmountIn)
	assert.Equal(t, token, ev.TokenOut)
	assert.Equal(t, uint64(5_000_000), ev.AmountOut)
	require.NotNil(t, ev.ParentIndex)
	assert.Equal(t, 0, *ev.ParentIndex)
	assert.NotEqual(t, ev.TokenIn, ev.TokenOut)
}

func TestExtract_ClosedPairHolds(t *testing.T) {
	tx := swapTx()
	for _, ev := range FromInstructions(tx) {
		group := tx.InnerGroups[*ev.ParentIndex]
		a, _ := decodeTransfer(group.Instructions[0])
		b, _ := decodeTransfer(group.Instructions[1])
		assert.Equal(t, a.source, b.destination)
		assert.Equal(t, b.source, a.destination)
	}
}

func TestExtract_OrderOfTransfersDoesNotMatter(t *testing.T) {
	tx := swapTx()
	ixs := tx.InnerGroups[0].Instructions
	tx.InnerGroups[0].Instructions = []models.Instruction{ixs[1], otherIx(), ixs[0]}

	events := FromInstructions(tx)
	require.Len(t, events, 1)
	assert.Equal(t, constants.WrappedSOLMint, events[0].TokenIn)
	assert.Equal(t, token, events[0].TokenOut)
}

func TestExtract_Token2022Transfers(t *testing.T) {
	tx := swapTx()
	tx.InnerGroups[0].Instructions[0] = transferIx(constants.Token2022ProgramID, payer, pool, payer, 2_000_000_000)

	events := FromInstructions(tx)
	require.Len(t, events, 1)
}

func TestExtract_SourceOwnedByPayer(t *testing.T) {
	tx := swapTx()
	tx.InnerGroups[0].Instructions = []models.Instruction{
		transferIx(constants.TokenProgramID, "PayerWSOL", pool, payer, 2_000_000_000),
		transferCheckedIx(pool, token, "PayerWSOL", poolOwn, 5_000_000, 6),
	}

	events := FromInstructions(tx)
	require.Len(t, events, 1)
	assert.Equal(t, constants.WrappedSOLMint, events[0].TokenIn)
	assert.Equal(t, token, events[0].TokenOut)
}

func TestExtract_RejectsGroups(t *testing.T) {
	cases := map[string][]models.Instruction{
		"three transfers": {
			transferIx(constants.TokenProgramID, payer, pool, payer, 1),
			transferCheckedIx(pool, token, payer, poolOwn, 2, 6),
			transferIx(constants.TokenProgramID, payer, pool, payer, 3),
		},
		"single transfer": {
			transferIx(constants.TokenProgramID, payer, pool, payer, 1),
		},
		"zero amount leg": {
			transferIx(constants.TokenProgramID, payer, pool, payer, 0),
			transferCheckedIx(pool, token, payer, poolOwn, 2, 6),
		},
		"open pair": {
			transferIx(constants.TokenProgramID, payer, pool, payer, 1),
			transferCheckedIx("OtherVault", token, payer, poolOwn, 2, 6),
		},
		"payer not a source": {
			transferIx(constants.TokenProgramID, "Stranger", pool, "Stranger", 1),
			transferCheckedIx(pool, token, "Stranger", poolOwn, 2, 6),
		},
		"same mint both ways": {
			transferCheckedIx(payer, token, pool, payer, 1, 6),
			transferCheckedIx(pool, token, payer, poolOwn, 2, 6),
		},
		"foreign program": {
			transferIx(constants.RaydiumAMMv4, payer, pool, payer, 1),
			transferCheckedIx(pool, token, payer, poolOwn, 2, 6),
		},
	}

	for name, ixs := range cases {
		t.Run(name, func(t *testing.T) {
			tx := swapTx()
			tx.InnerGroups[0].Instructions = ixs
			assert.Empty(t, FromInstructions(tx))
		})
	}
}

func TestExtract_OneEventPerQualifyingGroup(t *testing.T) {
	tx := swapTx()
	tx.Instructions = append(tx.Instructions, otherIx())
	tx.InnerGroups = append(tx.InnerGroups, models.InnerGroup{
		ParentIndex: 1,
		Instructions: []models.Instruction{
			transferCheckedIx(payer, token, pool, payer, 1_000_000, 6),
			transferIx(constants.TokenProgramID, pool, payer, poolOwn, 300_000_000),
		},
	})

	events := Extract(tx)
	require.Len(t, events, 2)
	assert.Equal(t, 1, *events[1].ParentIndex)
	assert.Equal(t, token, events[1].TokenIn)
	assert.Equal(t, constants.WrappedSOLMint, events[1].TokenOut)
}

func TestExtract_NoSpuriousSwap(t *testing.T) {
	tx := swapTx()
	tx.InnerGroups = []models.InnerGroup{
		{ParentIndex: 0, Instructions: []models.Instruction{otherIx(), otherIx()}},
	}
	tx.PreTokenBalances = nil
	tx.PostTokenBalances = nil

	events := Extract(tx)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestExtract_FailedTransaction(t *testing.T) {
	tx := swapTx()
	tx.Failed = true

	assert.Empty(t, Extract(tx))
}

func TestExtract_FallbackAgreesWithInstructions(t *testing.T) {
	tx := swapTx()

	primary := FromInstructions(tx)
	require.Len(t, primary, 1)

	fallback, ok := FromBalances(tx)
	require.True(t, ok)

	assert.Equal(t, primary[0].TokenIn, fallback.TokenIn)
	assert.Equal(t, primary[0].TokenOut, fallback.TokenOut)
	assert.Equal(t, payer, fallback.Initiator)
}

func TestExtract_FallsBackToBalances(t *testing.T) {
	tx := swapTx()
	tx.InnerGroups = nil

	events := Extract(tx)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, models.MethodBalance, ev.Method)
	assert.Nil(t, ev.ParentIndex)
	assert.Equal(t, constants.WrappedSOLMint, ev.TokenIn)
	assert.Equal(t, uint64(2_000_000_000), ev.AmountIn)
	assert.Equal(t, token, ev.TokenOut)
	assert.Equal(t, uint64(5_000_000), ev.AmountOut)
}

func TestFromBalances_FirstQualifyingOwnerWhenPayerAbsent(t *testing.T) {
	tx := swapTx()
	tx.AccountKeys[0] = "Relayer"

	ev, ok := FromBalances(tx)
	require.True(t, ok)
	assert.Equal(t, payer, ev.Initiator, "payer is the first owner seen in the snapshots")

	tx.PreTokenBalances = tx.PreTokenBalances[2:]
	tx.PostTokenBalances = tx.PostTokenBalances[2:]
	ev, ok = FromBalances(tx)
	require.True(t, ok)
	assert.Equal(t, poolOwn, ev.Initiator)
	assert.Equal(t, token, ev.TokenIn)
	assert.Equal(t, constants.WrappedSOLMint, ev.TokenOut)
}

func TestFromBalances_OwnerNeedsExactlyOneEachWay(t *testing.T) {
	tx := &models.Transaction{
		Signature:   "sig",
		AccountKeys: []string{payer},
		PreTokenBalances: []models.TokenBalance{
			{Account: "A", Owner: payer, Mint: "M1", Amount: 10},
			{Account: "B", Owner: payer, Mint: "M2", Amount: 10},
		},
		PostTokenBalances: []models.TokenBalance{
			{Account: "A", Owner: payer, Mint: "M1", Amount: 20},
			{Account: "B", Owner: payer, Mint: "M2", Amount: 30},
		},
	}

	_, ok := FromBalances(tx)
	assert.False(t, ok)
}

func TestFromBalances_SumsAccountsOfSameMint(t *testing.T) {
	tx := &models.Transaction{
		Signature:   "sig",
		AccountKeys: []string{payer},
		PreTokenBalances: []models.TokenBalance{
			{Account: "A1", Owner: payer, Mint: "M1", Amount: 10},
			{Account: "A2", Owner: payer, Mint: "M1", Amount: 10},
		},
		PostTokenBalances: []models.TokenBalance{
			{Account: "A1", Owner: payer, Mint: "M1", Amount: 4},
			{Account: "A2", Owner: payer, Mint: "M1", Amount: 10},
			{Account: "B", Owner: payer, Mint: "M2", Amount: 7},
		},
	}

	ev, ok := FromBalances(tx)
	require.True(t, ok)
	assert.Equal(t, "M1", ev.TokenIn)
	assert.Equal(t, uint64(6), ev.AmountIn)
	assert.Equal(t, "M2", ev.TokenOut)
	assert.Equal(t, uint64(7), ev.AmountOut)
}

func TestExtract_Deterministic(t *testing.T) {
	a := Extract(swapTx())
	b := Extract(swapTx())
	assert.Equal(t, a, b)

	tx := swapTx()
	tx.InnerGroups = nil
	assert.Equal(t, Extract(tx), Extract(tx))
}
