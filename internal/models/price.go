package models

import "time"

// PriceSample is a point in a token's price history derived from one swap.
// Price is quote units per whole token.
type PriceSample struct {
	Mint      string  `json:"mint"`
	Signature string  `json:"signature"`
	Slot      uint64  `json:"slot"`
	BlockTime int64   `json:"block_time"`
	Price     float64 `json:"price"`
	Volume    float64 `json:"volume"`
}

// DumpRecord is the first abnormal price collapse found for a mint.
type DumpRecord struct {
	Mint           string    `json:"mint"`
	Signature      string    `json:"signature"`
	BlockTime      int64     `json:"block_time"`
	DropPercent    float64   `json:"drop_percent"`
	PriceBefore    float64   `json:"price_before"`
	PriceAtTrigger float64   `json:"price_at_trigger"`
	DetectedAt     time.Time `json:"detected_at"`
}
