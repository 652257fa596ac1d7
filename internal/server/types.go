package server

import (
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/models"
)

// ErrorResponse represents a standardized error response format
type ErrorResponse struct {
	Error   string `json:"error"`             // Human-readable error message
	Code    int    `json:"code"`              // HTTP status code
	Details any    `json:"details,omitempty"` // Additional error details (dev mode only)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	OK bool `json:"ok"`
}

// PoolResponse is a discovered pool, with live reserves when requested
type PoolResponse struct {
	models.PoolRecord
	Reserves *ReservesResponse `json:"reserves,omitempty"`
}

// ReservesResponse is a point-in-time vault reading
type ReservesResponse struct {
	ReserveA  uint64   `json:"reserve_a"`
	ReserveB  uint64   `json:"reserve_b"`
	SpotPrice *float64 `json:"spot_price,omitempty"` // quote per token, when the pool trades the quote mint
	QuoteMint string   `json:"quote_mint,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// DumpResponse wraps a first dump; Dump is null when none was found
type DumpResponse struct {
	Mint string             `json:"mint"`
	Dump *models.DumpRecord `json:"dump"`
}

// WatchlistUpsertRequest adds or relabels a watched mint
type WatchlistUpsertRequest struct {
	Mint  string `json:"mint"`
	Label string `json:"label"`
}

// WatchlistUpdateRequest relabels a watched mint
type WatchlistUpdateRequest struct {
	Label string `json:"label"`
}
