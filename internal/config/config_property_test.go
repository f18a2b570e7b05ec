package config

import (
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"
)

// durationEnvKeys are the settings that accept any positive duration.
// MARKET_REFRESH_INTERVAL has its own floor and is tested separately.
var durationEnvKeys = []string{
	"QUOTE_CACHE_TTL",
	"ORDER_TTL",
	"EXPIRATION_INTERVAL",
	"WEBHOOK_TIMEOUT",
	"FEED_TICK_INTERVAL",
	"AI_TIMEOUT",
	"READ_TIMEOUT",
	"WRITE_TIMEOUT",
	"IDLE_TIMEOUT",
	"SHUTDOWN_TIMEOUT",
}

var allEnvKeys = append([]string{
	"PORT", "LOG_LEVEL", "LOG_FILE", "STORE_BACKEND", "DATABASE_URL", "DB_MAX_CONNS",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "MARKET_DATA_URL", "COINGECKO_API_KEY",
	"MARKET_REFRESH_INTERVAL", "MARKET_RATE_LIMIT_PER_MIN", "DEFAULT_SYMBOLS",
	"TRADING_FEE_RATE", "DEFAULT_INITIAL_BALANCE", "MAX_ACCOUNTS_PER_USER",
	"DEFAULT_AI_PROVIDER", "OPENAI_API_KEY", "OPENROUTER_API_KEY", "GROQ_API_KEY",
	"DEEPSEEK_API_KEY", "OTLP_ENDPOINT", "INTEGRATIONS_FILE",
}, durationEnvKeys...)

func resetEnv() {
	for _, key := range allEnvKeys {
		os.Unsetenv(key)
	}
}

func durationGen() *rapid.Generator[time.Duration] {
	return rapid.Custom(func(t *rapid.T) time.Duration {
		unit := rapid.SampledFrom([]time.Duration{time.Millisecond, time.Second, time.Minute, time.Hour}).Draw(t, "unit")
		return time.Duration(rapid.IntRange(1, 500).Draw(t, "n")) * unit
	})
}

func durationOf(cfg *Config, key string) time.Duration {
	switch key {
	case "QUOTE_CACHE_TTL":
		return cfg.QuoteCacheTTL
	case "ORDER_TTL":
		return cfg.OrderTTL
	case "EXPIRATION_INTERVAL":
		return cfg.ExpirationInterval
	case "WEBHOOK_TIMEOUT":
		return cfg.WebhookTimeout
	case "FEED_TICK_INTERVAL":
		return cfg.FeedTickInterval
	case "AI_TIMEOUT":
		return cfg.AITimeout
	case "READ_TIMEOUT":
		return cfg.ReadTimeout
	case "WRITE_TIMEOUT":
		return cfg.WriteTimeout
	case "IDLE_TIMEOUT":
		return cfg.IdleTimeout
	case "SHUTDOWN_TIMEOUT":
		return cfg.ShutdownTimeout
	}
	return 0
}

// Any positive duration set for a duration key comes back unchanged.
func TestProperty_DurationsRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		resetEnv()
		defer resetEnv()

		set := make(map[string]time.Duration)
		for _, key := range durationEnvKeys {
			if rapid.Bool().Draw(t, key+"_set") {
				d := durationGen().Draw(t, key)
				set[key] = d
				os.Setenv(key, d.String())
			}
		}

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() = %v", err)
		}
		for key, want := range set {
			if got := durationOf(cfg, key); got != want {
				t.Fatalf("%s = %v, want %v", key, got, want)
			}
		}
	})
}

func TestProperty_RefreshIntervalFloor(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		resetEnv()
		defer resetEnv()

		d := time.Duration(rapid.IntRange(1, 5000).Draw(t, "ms")) * time.Millisecond
		os.Setenv("MARKET_REFRESH_INTERVAL", d.String())

		cfg, err := Load()
		if d < time.Second {
			if err == nil {
				t.Fatalf("Load() accepted MARKET_REFRESH_INTERVAL=%v", d)
			}
			return
		}
		if err != nil {
			t.Fatalf("Load() = %v", err)
		}
		if cfg.MarketRefreshInterval != d {
			t.Fatalf("MarketRefreshInterval = %v, want %v", cfg.MarketRefreshInterval, d)
		}
	})
}

// Symbols come back upper-cased, trimmed and without blanks, in input order.
func TestProperty_DefaultSymbolsNormalized(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		resetEnv()
		defer resetEnv()

		raw := rapid.SliceOfN(rapid.StringMatching(`[ ]?[a-zA-Z]{0,5}[ ]?`), 1, 8).Draw(t, "symbols")
		os.Setenv("DEFAULT_SYMBOLS", strings.Join(raw, ","))

		var want []string
		for _, s := range raw {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				want = append(want, s)
			}
		}
		if len(want) == 0 {
			want = []string{"BTC", "ETH", "SOL"}
		}

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() = %v", err)
		}
		if !slices.Equal(cfg.DefaultSymbols, want) {
			t.Fatalf("DefaultSymbols = %v, want %v", cfg.DefaultSymbols, want)
		}
	})
}

func TestProperty_NonNumericRejected(t *testing.T) {
	keys := []string{"PORT", "DB_MAX_CONNS", "REDIS_DB", "MARKET_RATE_LIMIT_PER_MIN", "MAX_ACCOUNTS_PER_USER"}
	rapid.Check(t, func(t *rapid.T) {
		resetEnv()
		defer resetEnv()

		key := rapid.SampledFrom(keys).Draw(t, "key")
		val := rapid.StringMatching(`[a-zA-Z][a-zA-Z0-9.]{0,8}`).Draw(t, "val")
		os.Setenv(key, val)

		if _, err := Load(); err == nil {
			t.Fatalf("Load() accepted %s=%q", key, val)
		}
	})
}

func TestProperty_UnknownLogLevelRejected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		resetEnv()
		defer resetEnv()

		level := rapid.StringMatching(`[a-z]{1,12}`).Filter(func(s string) bool {
			return !isValidLogLevel(s)
		}).Draw(t, "level")
		os.Setenv("LOG_LEVEL", level)

		if _, err := Load(); err == nil {
			t.Fatalf("Load() accepted LOG_LEVEL=%q", level)
		}
	})
}

func TestProperty_PortRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		resetEnv()
		defer resetEnv()

		port := rapid.IntRange(-10, 70000).Draw(t, "port")
		os.Setenv("PORT", strconv.Itoa(port))

		cfg, err := Load()
		if port < 1 || port > 65535 {
			if err == nil {
				t.Fatalf("Load() accepted PORT=%d", port)
			}
			return
		}
		if err != nil || cfg.Port != port {
			t.Fatalf("Load() = %+v, %v; want port %d", cfg, err, port)
		}
	})
}

func TestProperty_FeeRateBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		resetEnv()
		defer resetEnv()

		// Basis points in [-100, 2000) cover both sides of the [0, 0.1) bound.
		bps := rapid.IntRange(-100, 1999).Draw(t, "bps")
		rate := decimal.New(int64(bps), -4)
		os.Setenv("TRADING_FEE_RATE", rate.String())

		cfg, err := Load()
		valid := bps >= 0 && bps < 1000
		if valid && err != nil {
			t.Fatalf("Load() rejected fee rate %s: %v", rate, err)
		}
		if !valid && err == nil {
			t.Fatalf("Load() accepted fee rate %s", rate)
		}
		if valid && !cfg.TradingFeeRate.Equal(rate) {
			t.Fatalf("TradingFeeRate = %s, want %s", cfg.TradingFeeRate, rate)
		}
	})
}
