package watchlist

import (
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
)

var ErrNotFound = errors.New("mint not watched")

// Entry is a mint the follower keeps up to date. Cursor is the newest
// signature already ingested.
type Entry struct {
	Mint      string    `json:"mint"`
	Label     string    `json:"label,omitempty"`
	Cursor    string    `json:"cursor,omitempty"`
	AddedAt   time.Time `json:"added_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidateMint checks that mint is a base58 public key.
func ValidateMint(mint string) error {
	if _, err := solana.PublicKeyFromBase58(mint); err != nil {
		return fmt.Errorf("invalid mint address")
	}
	return nil
}
