// Package config loads the server configuration from the environment.
// A .env file in the working directory is read first when present; real
// environment variables always win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/stocksim/trading-engine/internal/ticker"
)

// Config holds the server settings.
type Config struct {
	Port          string
	DatabaseURL   string // empty → in-memory store
	RedisURL      string // empty → no price cache
	PriceCacheTTL time.Duration
	Migrate       bool
	LogLevel      string
	LogFile       string // empty → stdout only
	CORSOrigins   []string
	SeedStocks    map[string]decimal.Decimal
}

// Load reads the configuration. Unset variables fall back to defaults.
func Load() (*Config, error) {
	// Best-effort: a missing .env is not an error.
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getenv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		LogFile:     os.Getenv("LOG_FILE"),
		CORSOrigins: splitList(getenv("CORS_ORIGINS", "*")),
	}

	ttl, err := time.ParseDuration(getenv("PRICE_CACHE_TTL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("PRICE_CACHE_TTL: %w", err)
	}
	cfg.PriceCacheTTL = ttl

	migrate, err := strconv.ParseBool(getenv("DB_MIGRATE", "true"))
	if err != nil {
		return nil, fmt.Errorf("DB_MIGRATE: %w", err)
	}
	cfg.Migrate = migrate

	seeds, err := ParseSeeds(os.Getenv("SEED_STOCKS"))
	if err != nil {
		return nil, fmt.Errorf("SEED_STOCKS: %w", err)
	}
	cfg.SeedStocks = seeds

	return cfg, nil
}

// ParseSeeds parses a comma-separated list of TICKER:PRICE pairs,
// e.g. "AAPL:189.50,MSFT:402".
func ParseSeeds(s string) (map[string]decimal.Decimal, error) {
	seeds := make(map[string]decimal.Decimal)
	for _, item := range splitList(s) {
		sym, priceS, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("invalid entry %q (expected TICKER:PRICE)", item)
		}
		t, err := ticker.Parse(sym)
		if err != nil {
			return nil, err
		}
		price, err := decimal.NewFromString(strings.TrimSpace(priceS))
		if err != nil {
			return nil, fmt.Errorf("invalid price for %s: %w", t, err)
		}
		if !price.IsPositive() {
			return nil, fmt.Errorf("price for %s must be positive", t)
		}
		seeds[t] = price
	}
	return seeds, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
