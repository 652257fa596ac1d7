package txdecode

import (
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/constants"
)

func transferData(amount uint64) string {
	buf := make([]byte, 9)
	buf[0] = 3
	binary.LittleEndian.PutUint64(buf[1:], amount)
	return base58.Encode(buf)
}

func fixture(mutate func(m map[string]any)) []byte {
	m := map[string]any{
		"slot":      uint64(250000000),
		"blockTime": int64(1700000000),
		"meta": map[string]any{
			"err": nil,
			"innerInstructions": []any{
				map[string]any{
					"index": 0,
					"instructions": []any{
						map[string]any{"programIdIndex": 3, "accounts": []int{1, 4, 0}, "data": transferData(500), "stackHeight": 2},
						map[string]any{"programIdIndex": 3, "accounts": []int{5, 2, 6}, "data": transferData(7000)},
					},
				},
			},
			"preTokenBalances": []any{
				map[string]any{"accountIndex": 1, "mint": constants.USDCMint, "owner": "Payer111111111111111111111111111111111111111", "uiTokenAmount": map[string]any{"amount": "1000", "decimals": 6}},
			},
			"postTokenBalances": []any{
				map[string]any{"accountIndex": 1, "mint": constants.USDCMint, "owner": "Payer111111111111111111111111111111111111111", "uiTokenAmount": map[string]any{"amount": "500", "decimals": 6}},
			},
			"loadedAddresses": map[string]any{
				"writable": []string{"LoadedW"},
				"readonly": []string{"LoadedR"},
			},
		},
		"transaction": map[string]any{
			"signatures": []string{"sig-1"},
			"message": map[string]any{
				"accountKeys": []string{"Payer", "PayerUSDC", "PayerTOKEN", constants.TokenProgramID, "PoolUSDC"},
				"instructions": []any{
					map[string]any{"programIdIndex": 3, "accounts": []int{0}, "data": ""},
				},
			},
		},
	}
	if mutate != nil {
		mutate(m)
	}
	b, err := json.Marshal(m)
	if err != nil {
		panic(err)
	}
	return b
}

func meta(m map[string]any) map[string]any {
	return m["meta"].(map[string]any)
}

func TestDecode_ResolvesAccountsAndLoadedAddresses(t *testing.T) {
	tx, err := Decode(fixture(nil))
	require.NoError(t, err)

	assert.Equal(t, "sig-1", tx.Signature)
	assert.Equal(t, uint64(250000000), tx.Slot)
	assert.Equal(t, int64(1700000000), tx.BlockTime)
	assert.False(t, tx.Failed)
	assert.Equal(t, "Payer", tx.FeePayer())
	assert.Equal(t, []string{"Payer", "PayerUSDC", "PayerTOKEN", constants.TokenProgramID, "PoolUSDC", "LoadedW", "LoadedR"}, tx.AccountKeys)

	require.Len(t, tx.Instructions, 1)
	assert.Nil(t, tx.Instructions[0].Data)

	require.Len(t, tx.InnerGroups, 1)
	group := tx.InnerGroups[0]
	assert.Equal(t, 0, group.ParentIndex)
	require.Len(t, group.Instructions, 2)
	assert.Equal(t, []string{"PayerUSDC", "PoolUSDC", "Payer"}, group.Instructions[0].Accounts)
	assert.Equal(t, []string{"LoadedW", "PayerTOKEN", "LoadedR"}, group.Instructions[1].Accounts)
	assert.Equal(t, 2, group.Instructions[0].StackHeight)
	assert.Equal(t, byte(3), group.Instructions[0].Data[0])
	assert.Equal(t, uint64(500), binary.LittleEndian.Uint64(group.Instructions[0].Data[1:9]))

	require.Len(t, tx.PreTokenBalances, 1)
	assert.Equal(t, "PayerUSDC", tx.PreTokenBalances[0].Account)
	assert.Equal(t, uint64(1000), tx.PreTokenBalances[0].Amount)
	assert.Equal(t, uint64(500), tx.PostTokenBalances[0].Amount)

	dec, ok := tx.Decimals(constants.USDCMint)
	assert.True(t, ok)
	assert.Equal(t, uint8(6), dec)
}

func TestDecode_Deterministic(t *testing.T) {
	raw := fixture(nil)

	a, err := Decode(raw)
	require.NoError(t, err)
	b, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDecode_FailedTransaction(t *testing.T) {
	tx, err := Decode(fixture(func(m map[string]any) {
		meta(m)["err"] = map[string]any{"InstructionError": []any{0, "Custom"}}
	}))
	require.NoError(t, err)
	assert.True(t, tx.Failed)
}

func TestDecode_Malformed(t *testing.T) {
	cases := map[string][]byte{
		"not json": []byte("{"),
		"no message": fixture(func(m map[string]any) {
			m["transaction"] = map[string]any{"signatures": []string{"s"}}
		}),
		"no meta": fixture(func(m map[string]any) { delete(m, "meta") }),
		"no signatures": fixture(func(m map[string]any) {
			m["transaction"].(map[string]any)["signatures"] = []string{}
		}),
		"index out of range": fixture(func(m map[string]any) {
			meta(m)["innerInstructions"] = []any{
				map[string]any{"index": 0, "instructions": []any{
					map[string]any{"programIdIndex": 3, "accounts": []int{99}, "data": transferData(1)},
				}},
			}
		}),
		"parent out of range": fixture(func(m map[string]any) {
			meta(m)["innerInstructions"] = []any{map[string]any{"index": 7, "instructions": []any{}}}
		}),
		"bad base58": fixture(func(m map[string]any) {
			meta(m)["innerInstructions"] = []any{
				map[string]any{"index": 0, "instructions": []any{
					map[string]any{"programIdIndex": 3, "accounts": []int{0}, "data": "0OIl"},
				}},
			}
		}),
		"bad amount": fixture(func(m map[string]any) {
			meta(m)["postTokenBalances"] = []any{
				map[string]any{"accountIndex": 1, "mint": "m", "uiTokenAmount": map[string]any{"amount": "-4", "decimals": 6}},
			}
		}),
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(raw)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}
