package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/constants"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/models"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/pools"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/storage/memory"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/watchlist"
)

const (
	testAPIKey = "test-api-key"
	bonk       = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	poolAddr   = "58oQChx4yWmvKdwLLZzBi4ChoCc2fqCUWBkwMihLYQo2"
)

type fakePools struct {
	pools []models.PoolRecord
	err   error
}

func (f *fakePools) FindPools(context.Context, string) ([]models.PoolRecord, error) {
	return f.pools, f.err
}

func (f *fakePools) Reserves(_ context.Context, p models.PoolRecord) (*pools.PoolState, error) {
	return &pools.PoolState{
		Pool:      p,
		ReserveA:  50_000_000_000,
		ReserveB:  1_000_000_000,
		DecimalsA: 9,
		DecimalsB: 5,
		Timestamp: 1700000000,
	}, nil
}

type fakeDetector struct {
	rec *models.DumpRecord
}

func (f *fakeDetector) FindFirstDump(context.Context, string) (*models.DumpRecord, error) {
	return f.rec, nil
}

type testServer struct {
	srv     *Server
	store   *memory.Store
	samples *memory.PriceSampleStore
	wl      *watchlist.MemoryStore
}

func setupTestServer(t *testing.T, h *Handlers, cfg ServerConfig) *testServer {
	t.Helper()
	ts := &testServer{
		store:   memory.NewStore(),
		samples: memory.NewPriceSampleStore(),
		wl:      watchlist.NewMemoryStore(),
	}
	if h == nil {
		h = &Handlers{}
	}
	h.Dumps = ts.store
	h.DeadLetters = ts.store
	h.Samples = ts.samples
	h.Watchlist = ts.wl
	h.QuoteMint = constants.WrappedSOLMint
	h.Logger = logrus.New()

	if cfg.APIKey == "" {
		cfg.APIKey = testAPIKey
	}
	srv, err := NewServer(ServerDeps{Handlers: h, Config: cfg})
	require.NoError(t, err)
	ts.srv = srv
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testAPIKey)
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	ts := setupTestServer(t, nil, ServerConfig{})

	rec := ts.do(t, http.MethodGet, "/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[HealthResponse](t, rec).OK)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestHealth_StoreDown(t *testing.T) {
	ts := setupTestServer(t, &Handlers{
		Ping: func(context.Context) error { return errors.New("connection refused") },
	}, ServerConfig{})

	rec := ts.do(t, http.MethodGet, "/v1/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAPIKeyRequired(t *testing.T) {
	ts := setupTestServer(t, nil, ServerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	assert.NotEqual(t, http.StatusOK, rec.Code)

	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNotFound(t *testing.T) {
	ts := setupTestServer(t, nil, ServerConfig{})

	rec := ts.do(t, http.MethodGet, "/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, decode[ErrorResponse](t, rec).Code)
}

func TestTokenPools_WithReserves(t *testing.T) {
	fp := &fakePools{pools: []models.PoolRecord{{
		Address: poolAddr,
		Venue:   "raydium",
		MintA:   constants.WrappedSOLMint,
		MintB:   bonk,
	}}}
	ts := setupTestServer(t, &Handlers{Pools: fp}, ServerConfig{})

	rec := ts.do(t, http.MethodGet, "/v1/tokens/"+bonk+"/pools?reserves=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		Items []PoolResponse `json:"items"`
	}](t, rec)
	require.Len(t, body.Items, 1)
	assert.Equal(t, poolAddr, body.Items[0].Address)
	require.NotNil(t, body.Items[0].Reserves)
	require.NotNil(t, body.Items[0].Reserves.SpotPrice)
	assert.InDelta(t, 0.005, *body.Items[0].Reserves.SpotPrice, 1e-12)

	rec = ts.do(t, http.MethodGet, "/v1/tokens/"+bonk+"/pools", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode[struct {
		Items []PoolResponse `json:"items"`
	}](t, rec)
	assert.Nil(t, body.Items[0].Reserves)
}

func TestTokenPools_Errors(t *testing.T) {
	ts := setupTestServer(t, &Handlers{Pools: &fakePools{err: errors.New("rpc down")}}, ServerConfig{DevMode: true})

	rec := ts.do(t, http.MethodGet, "/v1/tokens/not-a-mint/pools", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/v1/tokens/"+bonk+"/pools", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotNil(t, decode[ErrorResponse](t, rec).Details)
}

func TestTokenPools_RateLimited(t *testing.T) {
	ts := setupTestServer(t, &Handlers{Pools: &fakePools{}}, ServerConfig{RateLimit: 0.001, RateBurst: 1})

	rec := ts.do(t, http.MethodGet, "/v1/tokens/"+bonk+"/pools", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/v1/tokens/"+bonk+"/pools", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestTokenPrices_Limit(t *testing.T) {
	ts := setupTestServer(t, nil, ServerConfig{})
	samples := []models.PriceSample{
		{Mint: bonk, Signature: "a", BlockTime: 1, Price: 1},
		{Mint: bonk, Signature: "b", BlockTime: 2, Price: 2},
		{Mint: bonk, Signature: "c", BlockTime: 3, Price: 3},
	}
	require.NoError(t, ts.samples.AppendSamples(context.Background(), samples))

	rec := ts.do(t, http.MethodGet, "/v1/tokens/"+bonk+"/prices?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Items []models.PriceSample `json:"items"`
	}](t, rec)
	require.Len(t, body.Items, 2)
	assert.Equal(t, "b", body.Items[0].Signature)
	assert.Equal(t, "c", body.Items[1].Signature)

	rec = ts.do(t, http.MethodGet, "/v1/tokens/"+bonk+"/prices?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTokenDump(t *testing.T) {
	ts := setupTestServer(t, nil, ServerConfig{})

	rec := ts.do(t, http.MethodGet, "/v1/tokens/"+bonk+"/dump", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, err := ts.store.SaveFirstDump(context.Background(), &models.DumpRecord{
		Mint:        bonk,
		Signature:   "sig",
		DropPercent: 42,
		DetectedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	rec = ts.do(t, http.MethodGet, "/v1/tokens/"+bonk+"/dump", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[DumpResponse](t, rec)
	require.NotNil(t, body.Dump)
	assert.Equal(t, "sig", body.Dump.Signature)
}

func TestDetectDump(t *testing.T) {
	ts := setupTestServer(t, &Handlers{Detector: &fakeDetector{}}, ServerConfig{})

	rec := ts.do(t, http.MethodPost, "/v1/tokens/"+bonk+"/dump/detect", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[DumpResponse](t, rec)
	assert.Equal(t, bonk, body.Mint)
	assert.Nil(t, body.Dump)
}

func TestDeadLettersList(t *testing.T) {
	ts := setupTestServer(t, nil, ServerConfig{})
	ctx := context.Background()

	_, err := ts.store.AppendDeadLetter(ctx, &models.DeadLetter{Signature: "a", Mint: bonk, Reason: "malformed"}, 1)
	require.NoError(t, err)
	_, err = ts.store.AppendDeadLetter(ctx, &models.DeadLetter{Signature: "b", Mint: bonk, Reason: "timeout"}, 3)
	require.NoError(t, err)

	rec := ts.do(t, http.MethodGet, "/v1/deadletters?mint="+bonk+"&status=permanent", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Items []models.DeadLetter `json:"items"`
	}](t, rec)
	require.Len(t, body.Items, 1)
	assert.Equal(t, "a", body.Items[0].Signature)

	rec = ts.do(t, http.MethodGet, "/v1/deadletters?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWatchlistCRUD(t *testing.T) {
	ts := setupTestServer(t, nil, ServerConfig{})

	rec := ts.do(t, http.MethodPost, "/v1/watchlist", WatchlistUpsertRequest{Mint: bonk, Label: "bonk"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bonk", decode[watchlist.Entry](t, rec).Label)

	rec = ts.do(t, http.MethodPut, "/v1/watchlist/"+bonk, WatchlistUpdateRequest{Label: "BONK"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/v1/watchlist/"+bonk, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "BONK", decode[watchlist.Entry](t, rec).Label)

	rec = ts.do(t, http.MethodGet, "/v1/watchlist", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Items []watchlist.Entry `json:"items"`
	}](t, rec)
	assert.Len(t, list.Items, 1)

	rec = ts.do(t, http.MethodDelete, "/v1/watchlist/"+bonk, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/v1/watchlist/"+bonk, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPut, "/v1/watchlist/"+bonk, WatchlistUpdateRequest{Label: "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/v1/watchlist", WatchlistUpsertRequest{Mint: "bad"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNewServer_RequiresStores(t *testing.T) {
	_, err := NewServer(ServerDeps{Handlers: &Handlers{}})
	assert.Error(t, err)
}
