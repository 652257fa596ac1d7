package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/constants"
)

// VolumeTier is one row of the dump volume threshold table.
type VolumeTier struct {
	AboveDrop float64
	MinVolume float64
}

type Config struct {
	// RPC settings
	RPCUrl       string
	RPCAPIKeys   []string
	RPCRate      float64
	PollInterval time.Duration
	WebsocketURL string

	// HTTP client settings
	HTTPTimeout time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Redis settings
	RedisAddr string

	// ClickHouse settings
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	// Postgres settings
	PostgresDSN string

	// Detection
	QuoteMint          string
	DropFloor          float64
	DefaultVolumeFloor float64
	VolumeTiers        []VolumeTier

	// Ingestion
	Workers        int
	DLQMaxAttempts int

	// API server
	APIAddr     string
	APIKey      string
	DevMode     bool
	MetricsAddr string
}

func Load() *Config {
	return &Config{
		// RPC
		RPCUrl:       getEnv("SOLANA_RPC_URL", "https://mainnet.helius-rpc.com"),
		RPCAPIKeys:   getListEnv("RPC_API_KEYS"),
		RPCRate:      getFloatEnv("RPC_RPS", 9),
		PollInterval: getDurationEnv("POLL_INTERVAL", 30*time.Second),
		WebsocketURL: getEnv("SOLANA_WS_URL", ""),

		// HTTP
		HTTPTimeout: getDurationEnv("HTTP_TIMEOUT", 30*time.Second),
		MaxAttempts: getIntEnv("RPC_MAX_ATTEMPTS", 5),
		BaseDelay:   getDurationEnv("RPC_BASE_DELAY", time.Second),
		MaxDelay:    getDurationEnv("RPC_MAX_DELAY", 30*time.Second),

		// Redis
		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),

		// ClickHouse
		ClickHouseAddr:     getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "solana"),
		ClickHouseUsername: getEnv("CLICKHOUSE_USERNAME", "default"),
		ClickHousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),

		// Postgres
		PostgresDSN: getEnv("POSTGRES_DSN", ""),

		// Detection
		QuoteMint:          getEnv("QUOTE_MINT", constants.WrappedSOLMint),
		DropFloor:          getFloatEnv("DUMP_DROP_FLOOR", 0.30),
		DefaultVolumeFloor: getFloatEnv("DUMP_DEFAULT_VOLUME_FLOOR", 0.1),
		VolumeTiers:        getTiersEnv("DUMP_VOLUME_TIERS", []VolumeTier{{AboveDrop: 0.5, MinVolume: 5}, {AboveDrop: 0.3, MinVolume: 20}}),

		// Ingestion
		Workers:        getIntEnv("INGEST_WORKERS", 4),
		DLQMaxAttempts: getIntEnv("DLQ_MAX_ATTEMPTS", 3),

		// API
		APIAddr:     getEnv("API_ADDR", ":8090"),
		APIKey:      getEnv("API_KEY", ""),
		DevMode:     getBoolEnv("DEV_MODE", false),
		MetricsAddr: getEnv("METRICS_ADDR", ":9102"),
	}
}

// Validate reports the first setting that cannot be used as loaded.
func (c *Config) Validate() error {
	if c.RPCUrl == "" {
		return fmt.Errorf("SOLANA_RPC_URL is required")
	}
	if c.RPCRate <= 0 {
		return fmt.Errorf("RPC_RPS must be positive")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("RPC_MAX_ATTEMPTS must be at least 1")
	}
	if c.BaseDelay <= 0 || c.MaxDelay < c.BaseDelay {
		return fmt.Errorf("RPC_BASE_DELAY must be positive and not exceed RPC_MAX_DELAY")
	}
	if c.DropFloor <= 0 || c.DropFloor >= 1 {
		return fmt.Errorf("DUMP_DROP_FLOOR must be in (0, 1)")
	}
	if c.Workers < 1 {
		return fmt.Errorf("INGEST_WORKERS must be at least 1")
	}
	if c.DLQMaxAttempts < 1 {
		return fmt.Errorf("DLQ_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

// Credentials returns the provider endpoints to rotate through. Without API
// keys the bare RPC URL is the only credential.
func (c *Config) Credentials() []string {
	if len(c.RPCAPIKeys) == 0 {
		return []string{c.RPCUrl}
	}
	return c.RPCAPIKeys
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloatEnv(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getListEnv(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getTiersEnv parses "drop:volume" pairs, e.g. "0.5:5,0.3:20". Any malformed
// entry falls back to the default table.
func getTiersEnv(key string, defaultVal []VolumeTier) []VolumeTier {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var tiers []VolumeTier
	for _, part := range strings.Split(val, ",") {
		drop, vol, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return defaultVal
		}
		d, err := strconv.ParseFloat(drop, 64)
		if err != nil {
			return defaultVal
		}
		v, err := strconv.ParseFloat(vol, 64)
		if err != nil {
			return defaultVal
		}
		tiers = append(tiers, VolumeTier{AboveDrop: d, MinVolume: v})
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].AboveDrop > tiers[j].AboveDrop })
	return tiers
}
