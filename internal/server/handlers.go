package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/models"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/pools"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/storage"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/watchlist"
)

// PoolFinder answers pool lookups and reserve reads
type PoolFinder interface {
	FindPools(ctx context.Context, mint string) ([]models.PoolRecord, error)
	Reserves(ctx context.Context, pool models.PoolRecord) (*pools.PoolState, error)
}

// DumpFinder runs dump detection on demand
type DumpFinder interface {
	FindFirstDump(ctx context.Context, mint string) (*models.DumpRecord, error)
}

// Watchlist is the set of followed mints
type Watchlist interface {
	Upsert(ctx context.Context, mint, label string) (*watchlist.Entry, error)
	Get(ctx context.Context, mint string) (*watchlist.Entry, error)
	List(ctx context.Context) ([]*watchlist.Entry, error)
	Delete(ctx context.Context, mint string) error
}

// Handlers contains all dependencies for API endpoint handlers
type Handlers struct {
	Dumps       storage.DumpStore        // First dump per mint
	DeadLetters storage.DeadLetterStore  // Items the pipeline could not process
	Samples     storage.PriceSampleStore // Price history
	Pools       PoolFinder               // Pool registry (optional)
	Detector    DumpFinder               // Dump detector (optional)
	Watchlist   Watchlist                // Followed mints (optional)
	QuoteMint   string                   // Quote asset used for spot prices
	Ping        func(ctx context.Context) error
	DevMode     bool           // Enable detailed error responses in development
	Logger      *logrus.Logger // Structured logger
}

// err returns a standardized JSON error response
// In dev mode, includes additional error details for debugging
func (h *Handlers) err(c echo.Context, code int, msg string, details any) error {
	resp := ErrorResponse{Error: msg, Code: code}
	if h.DevMode && details != nil {
		resp.Details = details
	}
	return c.JSON(code, resp)
}

// withTimeout creates a context with timeout, defaulting to 10 seconds if duration <= 0
func (h *Handlers) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

func (h *Handlers) invalidMint(c echo.Context, err error) error {
	return h.err(c, http.StatusBadRequest, "invalid mint", map[string]any{"mint": err.Error()})
}

// Health reports whether the backing store is reachable
func (h *Handlers) Health(c echo.Context) error {
	if h.Ping != nil {
		ctx, cancel := h.withTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.Ping(ctx); err != nil {
			return h.err(c, http.StatusServiceUnavailable, "store unavailable", map[string]any{"err": err.Error()})
		}
	}
	return c.JSON(http.StatusOK, HealthResponse{OK: true})
}

// TokenPools lists the known pools of a mint. With reserves=true each pool
// carries its current vault balances and spot price.
func (h *Handlers) TokenPools(c echo.Context) error {
	if h.Pools == nil {
		return h.err(c, http.StatusBadRequest, "pool registry is not configured", nil)
	}
	mint := strings.TrimSpace(c.Param("mint"))
	if err := watchlist.ValidateMint(mint); err != nil {
		return h.invalidMint(c, err)
	}
	withReserves, _ := strconv.ParseBool(c.QueryParam("reserves"))

	ctx, cancel := h.withTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	found, err := h.Pools.FindPools(ctx, mint)
	if err != nil {
		h.Logger.WithError(err).WithField("mint", mint).Error("pool lookup failed")
		return h.err(c, http.StatusBadGateway, "failed to find pools", map[string]any{"err": err.Error()})
	}

	items := make([]PoolResponse, 0, len(found))
	for _, p := range found {
		item := PoolResponse{PoolRecord: p}
		if withReserves {
			state, err := h.Pools.Reserves(ctx, p)
			if err != nil {
				return h.err(c, http.StatusBadGateway, "failed to read reserves", map[string]any{"pool": p.Address, "err": err.Error()})
			}
			item.Reserves = &ReservesResponse{
				ReserveA:  state.ReserveA,
				ReserveB:  state.ReserveB,
				Timestamp: state.Timestamp,
			}
			if price, err := state.SpotPrice(h.QuoteMint); err == nil {
				item.Reserves.SpotPrice = &price
				item.Reserves.QuoteMint = h.QuoteMint
			}
		}
		items = append(items, item)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// TokenPrices returns the most recent price samples of a mint, oldest first.
// Accepts limit query parameter (default: 100, range: 1-1000)
func (h *Handlers) TokenPrices(c echo.Context) error {
	mint := strings.TrimSpace(c.Param("mint"))
	if err := watchlist.ValidateMint(mint); err != nil {
		return h.invalidMint(c, err)
	}

	limit := 100
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "must be an integer"})
		}
		limit = n
	}
	if limit < 1 || limit > 1000 {
		return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "min 1 max 1000"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	samples, err := h.Samples.PriceSamples(ctx, mint)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to get prices", nil)
	}
	if len(samples) > limit {
		samples = samples[len(samples)-limit:]
	}
	return c.JSON(http.StatusOK, map[string]any{"items": samples})
}

// TokenDump returns the stored first dump of a mint
func (h *Handlers) TokenDump(c echo.Context) error {
	mint := strings.TrimSpace(c.Param("mint"))
	if err := watchlist.ValidateMint(mint); err != nil {
		return h.invalidMint(c, err)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	rec, err := h.Dumps.FirstDump(ctx, mint)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return h.err(c, http.StatusNotFound, "no dump recorded", nil)
		}
		return h.err(c, http.StatusInternalServerError, "failed to get dump", nil)
	}
	return c.JSON(http.StatusOK, DumpResponse{Mint: mint, Dump: rec})
}

// DetectDump scans a mint's stored history for its first dump
func (h *Handlers) DetectDump(c echo.Context) error {
	if h.Detector == nil {
		return h.err(c, http.StatusBadRequest, "detector is not configured", nil)
	}
	mint := strings.TrimSpace(c.Param("mint"))
	if err := watchlist.ValidateMint(mint); err != nil {
		return h.invalidMint(c, err)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	rec, err := h.Detector.FindFirstDump(ctx, mint)
	if err != nil {
		h.Logger.WithError(err).WithField("mint", mint).Error("dump detection failed")
		return h.err(c, http.StatusInternalServerError, "dump detection failed", map[string]any{"err": err.Error()})
	}
	return c.JSON(http.StatusOK, DumpResponse{Mint: mint, Dump: rec})
}

// DeadLettersList lists queued failures, filtered by mint and status
func (h *Handlers) DeadLettersList(c echo.Context) error {
	mint := strings.TrimSpace(c.QueryParam("mint"))
	if mint != "" {
		if err := watchlist.ValidateMint(mint); err != nil {
			return h.invalidMint(c, err)
		}
	}

	status := models.DeadLetterStatus(strings.TrimSpace(c.QueryParam("status")))
	switch status {
	case "", models.DeadLetterRetryable, models.DeadLetterPermanent:
	default:
		return h.err(c, http.StatusBadRequest, "invalid status", map[string]any{"status": "retryable or permanent"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.DeadLetters.ListDeadLetters(ctx, mint, status)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to list dead letters", nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// WatchlistUpsert adds a mint to the watchlist or relabels it
func (h *Handlers) WatchlistUpsert(c echo.Context) error {
	var req WatchlistUpsertRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	req.Mint = strings.TrimSpace(req.Mint)
	if err := watchlist.ValidateMint(req.Mint); err != nil {
		return h.invalidMint(c, err)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	out, err := h.Watchlist.Upsert(ctx, req.Mint, strings.TrimSpace(req.Label))
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to upsert watchlist entry", nil)
	}
	return c.JSON(http.StatusOK, out)
}

// WatchlistUpdate relabels a watched mint
func (h *Handlers) WatchlistUpdate(c echo.Context) error {
	mint := strings.TrimSpace(c.Param("mint"))
	if err := watchlist.ValidateMint(mint); err != nil {
		return h.invalidMint(c, err)
	}
	var req WatchlistUpdateRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if _, err := h.Watchlist.Get(ctx, mint); err != nil {
		if errors.Is(err, watchlist.ErrNotFound) {
			return h.err(c, http.StatusNotFound, "mint not watched", nil)
		}
		return h.err(c, http.StatusInternalServerError, "failed to get watchlist entry", nil)
	}

	out, err := h.Watchlist.Upsert(ctx, mint, strings.TrimSpace(req.Label))
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to update watchlist entry", nil)
	}
	return c.JSON(http.StatusOK, out)
}

// WatchlistGet returns one watched mint
// Returns 404 if the mint is not watched
func (h *Handlers) WatchlistGet(c echo.Context) error {
	mint := strings.TrimSpace(c.Param("mint"))
	if err := watchlist.ValidateMint(mint); err != nil {
		return h.invalidMint(c, err)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	out, err := h.Watchlist.Get(ctx, mint)
	if err != nil {
		if errors.Is(err, watchlist.ErrNotFound) {
			return h.err(c, http.StatusNotFound, "mint not watched", nil)
		}
		return h.err(c, http.StatusInternalServerError, "failed to get watchlist entry", nil)
	}
	return c.JSON(http.StatusOK, out)
}

// WatchlistList returns every watched mint
func (h *Handlers) WatchlistList(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Watchlist.List(ctx)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to list watchlist", nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// WatchlistDelete stops following a mint
// Returns 204 No Content on successful deletion
func (h *Handlers) WatchlistDelete(c echo.Context) error {
	mint := strings.TrimSpace(c.Param("mint"))
	if err := watchlist.ValidateMint(mint); err != nil {
		return h.invalidMint(c, err)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := h.Watchlist.Delete(ctx, mint); err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to delete watchlist entry", nil)
	}
	return c.NoContent(http.StatusNoContent)
}
