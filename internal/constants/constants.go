package constants

import "time"

// Program addresses
const (
	TokenProgramID     = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022ProgramID = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
	RaydiumAMMv4       = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	// Orca legacy constant-product swap program
	OrcaTokenSwapV1 = "9W959DqEETiGZocYWCQPaJ6sBmUzgfxXfqGeTEdp3aQP"
)

// Quote asset mints
const (
	WrappedSOLMint = "So11111111111111111111111111111111111111112"
	USDCMint       = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDTMint       = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
)

// NativeDecimals is the precision of lamports.
const NativeDecimals = 9

// TokenAccountSize is the data length of an SPL token account.
const TokenAccountSize = 165

// QuoteMints is the ordered candidate list used for pool discovery.
var QuoteMints = []string{WrappedSOLMint, USDCMint, USDTMint}

// TokenSymbols maps well known mints to display symbols.
var TokenSymbols = map[string]string{
	WrappedSOLMint: "SOL",
	USDCMint:       "USDC",
	USDTMint:       "USDT",
	"mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So":  "mSOL",
	"DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263": "BONK",
	"JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN":  "JUP",
	"4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R": "RAY",
}

// Redis keys
const (
	RedisKeyPoolPrefix    = "pools:mint:"
	RedisKeyWatchIndex    = "watchlist:index"
	RedisKeyWatchPrefix   = "watchlist:"
	PubSubChannelDumps    = "dumps:all"
	PubSubChannelDumpMint = "dumps:mint:"
)

// Limits
const (
	SignaturePageSize = 1000
	PoolCacheTTL      = 24 * time.Hour
)

// ParserVersion is stored with every persisted transaction row.
const ParserVersion = "v1"

// Symbol returns a display name for a mint, shortening unknown addresses.
func Symbol(mint string) string {
	if symbol, ok := TokenSymbols[mint]; ok {
		return symbol
	}
	if len(mint) > 8 {
		return mint[:4] + "..." + mint[len(mint)-4:]
	}
	return mint
}
