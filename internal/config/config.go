// Package config handles loading and validating configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sol "github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
)

// Watch-list and batch bounds for backfill.
const (
	MaxBackfillAddresses = 5
	MinBackfillLimit     = 1
	MaxBackfillLimit     = 100
	MinBackfillBatchSize = 1
	MaxBackfillBatchSize = 25
)

// Default backfill watch list: wrapped SOL and USDC mints.
const (
	WrappedSOLMint = "So11111111111111111111111111111111111111112"
	USDCMint       = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

// DefaultPriceFeedIDs maps asset symbols to Pyth price feed ids.
const DefaultPriceFeedIDs = "SOL:0xef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d," +
	"USDC:0xeaa020c61cc479712813461ce153894a96a6c00b21ed0cfc2798d1f9a9e9c94a," +
	"USDT:0x2b89b9dc8fdf9f34709a5b106b472f0f39bb6ca9ce04b0fd7f2e971688e2e53b"

// Config holds all configuration values for blinkstream.
type Config struct {
	// Transaction feed and history RPC
	FeedWSURL    string
	RPCURL       string
	ScopedFilter bool

	// Backfill
	BackfillEnabled       bool
	BackfillAddresses     []string
	IgnoredAddresses      []string // rejected watch-list entries, reported at startup
	BackfillLimit         int
	BackfillBatchSize     int
	BackfillLookupTimeout time.Duration
	BackfillBatchTimeout  time.Duration

	// Detection thresholds
	LargeSwapUSDThreshold float64
	WhaleQtyThreshold     float64
	WhaleUSDThreshold     float64
	WhaleHistorySize      int

	// Surge
	SurgeThresholdPercent float64
	SurgeCooldownMs       int64
	SurgeTokens           []string
	SurgePollInterval     time.Duration
	SurgeUSDMultiplier    float64
	ReferenceAsset        string

	// Prices
	HermesURL     string
	PriceFeedIDs  map[string]string
	PriceCacheTTL time.Duration

	// Sinks
	PostgresDSN   string
	ClickhouseDSN string
	KafkaBrokers  []string
	KafkaTopic    string
	RedisURL      string
	RedisChannel  string
	NotifyTimeout time.Duration // per-delivery limit for store, Kafka and Redis sinks

	// HTTP
	HTTPAddr string

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables with fallback to the
// given .env files (default ".env"). A missing file is not an error.
// Priority order: Environment variables > .env file > hardcoded defaults
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)

	addresses, ignored := watchList(getEnvList("BACKFILL_ADDRESSES", []string{WrappedSOLMint, USDCMint}))

	feeds, err := parseFeedIDs(getEnv("PRICE_FEED_IDS", DefaultPriceFeedIDs))
	if err != nil {
		return nil, fmt.Errorf("PRICE_FEED_IDS: %w", err)
	}

	cfg := &Config{
		FeedWSURL:    getEnv("FEED_WS_URL", ""),
		RPCURL:       getEnv("RPC_URL", ""),
		ScopedFilter: getEnvBool("STREAM_PROGRAM_FILTER", true),

		BackfillEnabled:       getEnvBool("BACKFILL_ENABLED", true),
		BackfillAddresses:     addresses,
		IgnoredAddresses:      ignored,
		BackfillLimit:         clamp(getEnvInt("BACKFILL_LIMIT", 25), MinBackfillLimit, MaxBackfillLimit),
		BackfillBatchSize:     clamp(getEnvInt("BACKFILL_BATCH_SIZE", 8), MinBackfillBatchSize, MaxBackfillBatchSize),
		BackfillLookupTimeout: time.Duration(getEnvInt("BACKFILL_LOOKUP_TIMEOUT_MS", 4000)) * time.Millisecond,
		BackfillBatchTimeout:  time.Duration(getEnvInt("BACKFILL_BATCH_TIMEOUT_MS", 5000)) * time.Millisecond,

		LargeSwapUSDThreshold: getEnvFloat("LARGE_SWAP_USD_THRESHOLD", 10000),
		WhaleQtyThreshold:     getEnvFloat("WHALE_SOL_THRESHOLD", 100),
		WhaleUSDThreshold:     getEnvFloat("WHALE_USD_THRESHOLD", 25000),
		WhaleHistorySize:      getEnvInt("WHALE_HISTORY_SIZE", 200),

		SurgeThresholdPercent: getEnvFloat("SURGE_THRESHOLD_PERCENT", 3),
		SurgeCooldownMs:       int64(getEnvInt("SURGE_COOLDOWN_MS", 30000)),
		SurgeTokens:           getEnvList("SURGE_TOKENS", []string{"SOL"}),
		SurgePollInterval:     time.Duration(getEnvInt("SURGE_POLL_INTERVAL_MS", 5000)) * time.Millisecond,
		SurgeUSDMultiplier:    getEnvFloat("SURGE_USD_MULTIPLIER", 4000),
		ReferenceAsset:        strings.ToUpper(getEnv("REFERENCE_ASSET", "SOL")),

		HermesURL:     getEnv("HERMES_URL", "https://hermes.pyth.network"),
		PriceFeedIDs:  feeds,
		PriceCacheTTL: time.Duration(getEnvInt("PRICE_CACHE_TTL_MS", 2000)) * time.Millisecond,

		PostgresDSN:   getEnv("POSTGRES_DSN", ""),
		ClickhouseDSN: getEnv("CLICKHOUSE_DSN", ""),
		KafkaBrokers:  getEnvList("KAFKA_BROKERS", nil),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "blinkstream.events"),
		RedisURL:      getEnv("REDIS_URL", ""),
		RedisChannel:  getEnv("REDIS_CHANNEL", "blinkstream:events"),
		NotifyTimeout: time.Duration(getEnvInt("NOTIFY_TIMEOUT_MS", 2000)) * time.Millisecond,

		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set and valid.
func (c *Config) Validate() error {
	if c.FeedWSURL == "" {
		return fmt.Errorf("FEED_WS_URL is required")
	}
	if !strings.HasPrefix(c.FeedWSURL, "ws://") && !strings.HasPrefix(c.FeedWSURL, "wss://") {
		return fmt.Errorf("FEED_WS_URL must be a ws:// or wss:// url")
	}
	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}
	if c.BackfillLookupTimeout <= 0 || c.BackfillBatchTimeout <= 0 {
		return fmt.Errorf("backfill timeouts must be positive")
	}
	if c.LargeSwapUSDThreshold <= 0 {
		return fmt.Errorf("LARGE_SWAP_USD_THRESHOLD must be positive")
	}
	if c.WhaleQtyThreshold <= 0 || c.WhaleUSDThreshold <= 0 {
		return fmt.Errorf("whale thresholds must be positive")
	}
	if c.WhaleHistorySize < 1 {
		return fmt.Errorf("WHALE_HISTORY_SIZE must be at least 1")
	}
	if c.SurgePollInterval <= 0 {
		return fmt.Errorf("SURGE_POLL_INTERVAL_MS must be positive")
	}
	if c.PriceCacheTTL < 0 {
		return fmt.Errorf("PRICE_CACHE_TTL_MS must not be negative")
	}
	if _, ok := c.PriceFeedIDs[c.ReferenceAsset]; !ok {
		return fmt.Errorf("REFERENCE_ASSET %s has no entry in PRICE_FEED_IDS", c.ReferenceAsset)
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	if c.NotifyTimeout <= 0 {
		return fmt.Errorf("NOTIFY_TIMEOUT_MS must be positive")
	}
	if c.RedisURL != "" && c.RedisChannel == "" {
		return fmt.Errorf("REDIS_CHANNEL is required when REDIS_URL is set")
	}
	return nil
}

// MaskedRPCURL returns the RPC url with the query string hidden, since
// providers carry api keys there.
func (c *Config) MaskedRPCURL() string {
	return maskQuery(c.RPCURL)
}

// MaskedFeedURL returns the feed url with the query string hidden.
func (c *Config) MaskedFeedURL() string {
	return maskQuery(c.FeedWSURL)
}

func maskQuery(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i] + "?****"
	}
	return u
}

// watchList keeps valid, distinct public keys up to MaxBackfillAddresses.
func watchList(raw []string) (valid, ignored []string) {
	seen := make(map[string]struct{}, len(raw))
	for _, addr := range raw {
		if _, err := sol.PublicKeyFromBase58(addr); err != nil {
			ignored = append(ignored, addr)
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		if len(valid) == MaxBackfillAddresses {
			ignored = append(ignored, addr)
			continue
		}
		seen[addr] = struct{}{}
		valid = append(valid, addr)
	}
	return valid, ignored
}

// parseFeedIDs parses "SYM:id,SYM:id".
func parseFeedIDs(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		sym, id, ok := strings.Cut(pair, ":")
		sym, id = strings.ToUpper(strings.TrimSpace(sym)), strings.TrimSpace(id)
		if !ok || sym == "" || id == "" {
			return nil, fmt.Errorf("malformed entry %q", pair)
		}
		out[sym] = id
	}
	return out, nil
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as an integer or returns a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat retrieves an environment variable as a float64 or returns a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvBool retrieves an environment variable as a boolean or returns a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
