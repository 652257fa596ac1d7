package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/AlekSi/pointer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/constants"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/models"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/rpc"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/storage"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/storage/memory"
)

const (
	bonk       = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	holderAcct = "4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R"
)

// fakeRPC serves address histories newest first, honouring limit, before
// and until the way a node does.
type fakeRPC struct {
	mu        sync.Mutex
	histories map[string][]rpc.SignatureInfo
	txs       map[string][]byte
	fetchErrs map[string]error
	accounts  []rpc.AccountRecord

	sigCalls atomic.Int32
	txCalls  atomic.Int32
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{
		histories: map[string][]rpc.SignatureInfo{},
		txs:       map[string][]byte{},
		fetchErrs: map[string]error{},
	}
}

func (f *fakeRPC) GetSignaturesForAddress(_ context.Context, address string, opts rpc.SignaturesOptions) ([]rpc.SignatureInfo, error) {
	f.sigCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()

	history := f.histories[address]
	start := 0
	if opts.Before != "" {
		for i, s := range history {
			if s.Signature == opts.Before {
				start = i + 1
				break
			}
		}
	}

	out := []rpc.SignatureInfo{}
	for _, s := range history[start:] {
		if s.Signature == opts.Until || (opts.Limit > 0 && len(out) == opts.Limit) {
			break
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeRPC) GetProgramAccounts(_ context.Context, programID string, _ []rpc.Filter) ([]rpc.AccountRecord, error) {
	if programID != constants.TokenProgramID {
		return nil, fmt.Errorf("unexpected program %s", programID)
	}
	return f.accounts, nil
}

func (f *fakeRPC) GetTransaction(_ context.Context, signature string) (*rpc.RawTransaction, error) {
	f.txCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fetchErrs[signature]; err != nil {
		return nil, err
	}
	raw, ok := f.txs[signature]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	return &rpc.RawTransaction{Signature: signature, Result: raw}, nil
}

// prepend adds a signature as the newest entry of an address history.
func (f *fakeRPC) prepend(address, sig string, blockTime int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info := rpc.SignatureInfo{Signature: sig, Slot: uint64(blockTime), BlockTime: pointer.ToInt64(blockTime)}
	f.histories[address] = append([]rpc.SignatureInfo{info}, f.histories[address]...)
}

// swapTx is a getTransaction result where the payer sells lamports of wSOL
// for tokens of bonk (6 decimals).
func swapTx(sig string, blockTime int64, lamports, tokens uint64) []byte {
	balance := func(idx int, mint string, amount uint64, decimals int) map[string]any {
		return map[string]any{
			"accountIndex":  idx,
			"mint":          mint,
			"owner":         "Payer",
			"uiTokenAmount": map[string]any{"amount": fmt.Sprint(amount), "decimals": decimals},
		}
	}

	m := map[string]any{
		"slot":      blockTime,
		"blockTime": blockTime,
		"meta": map[string]any{
			"err":               nil,
			"innerInstructions": []any{},
			"preTokenBalances": []any{
				balance(1, constants.WrappedSOLMint, lamports, 9),
			},
			"postTokenBalances": []any{
				balance(1, constants.WrappedSOLMint, 0, 9),
				balance(2, bonk, tokens, 6),
			},
		},
		"transaction": map[string]any{
			"signatures": []string{sig},
			"message": map[string]any{
				"accountKeys":  []string{"Payer", "PayerWSOL", "PayerBONK"},
				"instructions": []any{},
			},
		},
	}
	b, err := json.Marshal(m)
	if err != nil {
		panic(err)
	}
	return b
}

type testEnv struct {
	rpc      *fakeRPC
	txs      *memory.TransactionStore
	dlq      *memory.DeadLetterStore
	samples  *memory.PriceSampleStore
	pipeline *Pipeline
}

func newTestEnv(t *testing.T, maxAttempts int) *testEnv {
	t.Helper()
	env := &testEnv{
		rpc:     newFakeRPC(),
		txs:     memory.NewTransactionStore(),
		dlq:     memory.NewDeadLetterStore(),
		samples: memory.NewPriceSampleStore(),
	}

	p, err := NewPipeline(PipelineConfig{
		RPC:          env.rpc,
		Transactions: env.txs,
		DeadLetters:  env.dlq,
		Samples:      env.samples,
		Workers:      4,
		MaxAttempts:  maxAttempts,
	})
	require.NoError(t, err)
	env.pipeline = p
	return env
}

func TestDiscover_PagesDedupesAndOrders(t *testing.T) {
	env := newTestEnv(t, 0)
	for i := 1; i <= 5; i++ {
		env.rpc.prepend(bonk, fmt.Sprintf("m%d", i), int64(100+i))
	}
	// No block time, so it is dropped.
	env.rpc.histories[bonk] = append(env.rpc.histories[bonk], rpc.SignatureInfo{Signature: "pending"})

	env.rpc.accounts = []rpc.AccountRecord{{Address: holderAcct}}
	env.rpc.prepend(holderAcct, "m3", 103)
	env.rpc.prepend(holderAcct, "h1", 110)

	sigs, err := env.pipeline.Discover(context.Background(), bonk, DiscoverOptions{
		PageSize:             2,
		IncludeTokenAccounts: true,
		OldestFirst:          true,
	})
	require.NoError(t, err)

	got := make([]string, len(sigs))
	for i, s := range sigs {
		got[i] = s.Signature
	}
	assert.Equal(t, []string{"m1", "m2", "m3", "m4", "m5", "h1"}, got)
}

func TestDiscover_TotalLimitKeepsNewest(t *testing.T) {
	env := newTestEnv(t, 0)
	for i := 1; i <= 10; i++ {
		env.rpc.prepend(bonk, fmt.Sprintf("m%d", i), int64(100+i))
	}

	sigs, err := env.pipeline.Discover(context.Background(), bonk, DiscoverOptions{PageSize: 3, TotalLimit: 4})
	require.NoError(t, err)
	require.Len(t, sigs, 4)
	assert.Equal(t, "m10", sigs[0].Signature)
	assert.Equal(t, "m7", sigs[3].Signature)
	assert.Equal(t, int32(2), env.rpc.sigCalls.Load())
}

func TestRun_Outcomes(t *testing.T) {
	env := newTestEnv(t, 3)
	good := swapTx("good", 1000, 10_000_000_000, 10_000_000)
	malformed := []byte(`{"slot":1,"meta":{}}`)

	env.rpc.txs["good"] = good
	env.rpc.txs["broken"] = malformed
	env.rpc.fetchErrs["flaky"] = &rpc.ExhaustedError{Method: "getTransaction", Last: errors.New("timeout")}

	report, err := env.pipeline.Run(context.Background(), bonk, []string{"good", "missing", "broken", "flaky"})
	require.NoError(t, err)
	assert.Equal(t, &Report{Processed: 1, Skipped: 1, DeadLettered: 2, Swaps: 1, Samples: 1}, report)

	rec, err := env.txs.GetTransaction(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, good, rec.Raw)
	assert.Equal(t, constants.ParserVersion, rec.ParserVersion)
	assert.Equal(t, bonk, rec.Source)
	require.Len(t, rec.Swaps, 1)
	assert.Equal(t, models.MethodBalance, rec.Swaps[0].Method)

	samples, err := env.samples.PriceSamples(context.Background(), bonk)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.InDelta(t, 1.0, samples[0].Price, 1e-12)
	assert.InDelta(t, 10.0, samples[0].Volume, 1e-12)

	dl, err := env.dlq.GetDeadLetter(context.Background(), "broken")
	require.NoError(t, err)
	assert.Equal(t, malformed, dl.Payload, "payload must be kept byte for byte")
	assert.Equal(t, models.DeadLetterRetryable, dl.Status)
	assert.Equal(t, bonk, dl.Mint)

	dl, err = env.dlq.GetDeadLetter(context.Background(), "flaky")
	require.NoError(t, err)
	assert.Empty(t, dl.Payload)
	assert.Contains(t, dl.Reason, "timeout")
}

func TestRun_StorageFailureAborts(t *testing.T) {
	env := newTestEnv(t, 0)
	env.rpc.txs["good"] = swapTx("good", 1000, 1, 1)

	p, err := NewPipeline(PipelineConfig{
		RPC:          env.rpc,
		Transactions: failingTxStore{},
		DeadLetters:  env.dlq,
		Samples:      env.samples,
	})
	require.NoError(t, err)

	_, err = p.Run(context.Background(), bonk, []string{"good"})
	assert.Error(t, err)
}

type failingTxStore struct{}

func (failingTxStore) UpsertTransaction(context.Context, *models.TransactionRecord) error {
	return errors.New("disk full")
}

func (failingTxStore) ExistingSignatures(context.Context, string, []string) (map[string]bool, error) {
	return map[string]bool{}, nil
}

// flakySamples fails the first AppendSamples call.
type flakySamples struct {
	*memory.PriceSampleStore
	failed atomic.Bool
}

func (f *flakySamples) AppendSamples(ctx context.Context, samples []models.PriceSample) error {
	if !f.failed.Swap(true) {
		return errors.New("clickhouse down")
	}
	return f.PriceSampleStore.AppendSamples(ctx, samples)
}

func TestIngest_SampleFailureIsRetried(t *testing.T) {
	env := newTestEnv(t, 0)
	env.rpc.prepend(bonk, "s1", 1001)
	env.rpc.txs["s1"] = swapTx("s1", 1001, 1_000_000_000, 1_000_000)
	ctx := context.Background()

	samples := &flakySamples{PriceSampleStore: memory.NewPriceSampleStore()}
	p, err := NewPipeline(PipelineConfig{
		RPC:          env.rpc,
		Transactions: env.txs,
		DeadLetters:  env.dlq,
		Samples:      samples,
	})
	require.NoError(t, err)

	_, err = p.Ingest(ctx, bonk, DiscoverOptions{})
	require.Error(t, err)

	_, err = env.txs.GetTransaction(ctx, "s1")
	assert.ErrorIs(t, err, storage.ErrNotFound, "row must not be stored before its samples")

	report, err := p.Ingest(ctx, bonk, DiscoverOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Samples)

	got, err := samples.PriceSamples(ctx, bonk)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestIngest_TransactionStoredForAnotherMint(t *testing.T) {
	env := newTestEnv(t, 0)
	env.rpc.prepend(bonk, "shared", 1001)
	env.rpc.prepend(constants.USDCMint, "shared", 1001)
	env.rpc.txs["shared"] = swapTx("shared", 1001, 1_000_000_000, 1_000_000)
	ctx := context.Background()

	// The swap has no USDC leg, so ingesting USDC stores the row without samples.
	first, err := env.pipeline.Ingest(ctx, constants.USDCMint, DiscoverOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Processed)
	assert.Equal(t, 0, first.Samples)

	second, err := env.pipeline.Ingest(ctx, bonk, DiscoverOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Processed)
	assert.Equal(t, 1, second.Samples)

	got, err := env.samples.PriceSamples(ctx, bonk)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "shared", got[0].Signature)

	third, err := env.pipeline.Ingest(ctx, bonk, DiscoverOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, third.Skipped)
	assert.Equal(t, int32(2), env.rpc.txCalls.Load())
}

func TestRun_SuccessClearsDeadLetter(t *testing.T) {
	env := newTestEnv(t, 5)
	ctx := context.Background()
	env.rpc.fetchErrs["sig"] = errors.New("connection reset")

	report, err := env.pipeline.Run(ctx, bonk, []string{"sig"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.DeadLettered)

	env.rpc.mu.Lock()
	delete(env.rpc.fetchErrs, "sig")
	env.rpc.txs["sig"] = swapTx("sig", 1000, 1_000_000_000, 1_000_000)
	env.rpc.mu.Unlock()

	report, err = env.pipeline.Run(ctx, bonk, []string{"sig"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)

	_, err = env.dlq.GetDeadLetter(ctx, "sig")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	report, err = env.pipeline.ReplayDeadLetters(ctx, bonk)
	require.NoError(t, err)
	assert.Equal(t, &Report{}, report)
}

func TestIngest_SkipsStoredSignatures(t *testing.T) {
	env := newTestEnv(t, 0)
	for i := 1; i <= 3; i++ {
		sig := fmt.Sprintf("s%d", i)
		env.rpc.prepend(bonk, sig, int64(1000+i))
		env.rpc.txs[sig] = swapTx(sig, int64(1000+i), 1_000_000_000, 1_000_000)
	}
	ctx := context.Background()

	first, err := env.pipeline.Ingest(ctx, bonk, DiscoverOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, first.Processed)
	assert.Equal(t, int32(3), env.rpc.txCalls.Load())

	second, err := env.pipeline.Ingest(ctx, bonk, DiscoverOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 3, second.Skipped)
	assert.Equal(t, int32(3), env.rpc.txCalls.Load())
}

func TestReplay_RefetchesAndRemovesOnce(t *testing.T) {
	env := newTestEnv(t, 5)
	ctx := context.Background()
	env.rpc.fetchErrs["sig"] = errors.New("connection reset")

	report, err := env.pipeline.Run(ctx, bonk, []string{"sig"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.DeadLettered)

	env.rpc.mu.Lock()
	delete(env.rpc.fetchErrs, "sig")
	env.rpc.txs["sig"] = swapTx("sig", 1000, 1_000_000_000, 1_000_000)
	env.rpc.mu.Unlock()

	report, err = env.pipeline.ReplayDeadLetters(ctx, bonk)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Samples)

	_, err = env.dlq.GetDeadLetter(ctx, "sig")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	report, err = env.pipeline.ReplayDeadLetters(ctx, bonk)
	require.NoError(t, err)
	assert.Equal(t, &Report{}, report)

	samples, err := env.samples.PriceSamples(ctx, bonk)
	require.NoError(t, err)
	assert.Len(t, samples, 1)
}

func TestReplay_UsesPreservedPayload(t *testing.T) {
	env := newTestEnv(t, 5)
	ctx := context.Background()
	payload := swapTx("kept", 1000, 1_000_000_000, 1_000_000)

	_, err := env.dlq.AppendDeadLetter(ctx, &models.DeadLetter{
		Signature: "kept",
		Mint:      bonk,
		Reason:    "store unavailable",
		Payload:   payload,
	}, 5)
	require.NoError(t, err)

	report, err := env.pipeline.ReplayDeadLetters(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, int32(0), env.rpc.txCalls.Load())

	rec, err := env.txs.GetTransaction(ctx, "kept")
	require.NoError(t, err)
	assert.Equal(t, payload, rec.Raw)
}

func TestReplay_EscalatesToPermanent(t *testing.T) {
	env := newTestEnv(t, 2)
	ctx := context.Background()
	malformed := []byte(`not json`)
	env.rpc.txs["bad"] = malformed

	_, err := env.pipeline.Run(ctx, bonk, []string{"bad"})
	require.NoError(t, err)

	report, err := env.pipeline.ReplayDeadLetters(ctx, bonk)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DeadLettered)

	dl, err := env.dlq.GetDeadLetter(ctx, "bad")
	require.NoError(t, err)
	assert.Equal(t, 2, dl.Attempts)
	assert.Equal(t, models.DeadLetterPermanent, dl.Status)
	assert.Equal(t, malformed, dl.Payload)

	// Permanent entries are no longer replayed.
	report, err = env.pipeline.ReplayDeadLetters(ctx, bonk)
	require.NoError(t, err)
	assert.Equal(t, &Report{}, report)
	assert.Equal(t, int32(1), env.rpc.txCalls.Load())
}

func TestRun_Cancelled(t *testing.T) {
	env := newTestEnv(t, 0)
	env.rpc.txs["a"] = swapTx("a", 1, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.pipeline.Run(ctx, bonk, []string{"a"})
	assert.ErrorIs(t, err, context.Canceled)

	entries, err := env.dlq.ListDeadLetters(context.Background(), "", "")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNewPipeline_RequiresDependencies(t *testing.T) {
	_, err := NewPipeline(PipelineConfig{})
	assert.Error(t, err)
}
