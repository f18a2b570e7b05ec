package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnvKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.StoreBackend != BackendMemory {
		t.Errorf("StoreBackend = %q, want memory", cfg.StoreBackend)
	}
	if cfg.RedisAddr != "" {
		t.Errorf("RedisAddr = %q, want empty", cfg.RedisAddr)
	}
	if !cfg.TradingFeeRate.Equal(decimal.RequireFromString("0.001")) {
		t.Errorf("TradingFeeRate = %s, want 0.001", cfg.TradingFeeRate)
	}
	if !cfg.DefaultInitialBalance.Equal(decimal.NewFromInt(100_000)) {
		t.Errorf("DefaultInitialBalance = %s, want 100000", cfg.DefaultInitialBalance)
	}
	if cfg.MaxAccountsPerUser != 10 {
		t.Errorf("MaxAccountsPerUser = %d, want 10", cfg.MaxAccountsPerUser)
	}
	if cfg.OrderTTL != 7*24*time.Hour {
		t.Errorf("OrderTTL = %v, want 168h", cfg.OrderTTL)
	}
	if cfg.MarketRefreshInterval != 10*time.Second {
		t.Errorf("MarketRefreshInterval = %v, want 10s", cfg.MarketRefreshInterval)
	}
	if len(cfg.DefaultSymbols) != 3 || cfg.DefaultSymbols[0] != "BTC" {
		t.Errorf("DefaultSymbols = %v, want [BTC ETH SOL]", cfg.DefaultSymbols)
	}
	if cfg.DefaultAIProvider != "openai" {
		t.Errorf("DefaultAIProvider = %q, want openai", cfg.DefaultAIProvider)
	}
	if cfg.ExpirationInterval != 1*time.Second {
		t.Errorf("ExpirationInterval = %v, want 1s", cfg.ExpirationInterval)
	}
	if cfg.WebhookTimeout != 5*time.Second {
		t.Errorf("WebhookTimeout = %v, want 5s", cfg.WebhookTimeout)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 10s", cfg.ShutdownTimeout)
	}
	if cfg.Integrations != nil {
		t.Error("Integrations should be nil without INTEGRATIONS_FILE")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/papertrader")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("DEFAULT_SYMBOLS", " btc, doge ,,")
	t.Setenv("TRADING_FEE_RATE", "0.0025")
	t.Setenv("DEFAULT_INITIAL_BALANCE", "5000.50")
	t.Setenv("ORDER_TTL", "24h")
	t.Setenv("DEFAULT_AI_PROVIDER", "Groq")
	t.Setenv("GROQ_API_KEY", "gsk-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.ParsedLogLevel().String() != "DEBUG" {
		t.Errorf("ParsedLogLevel = %v, want DEBUG", cfg.ParsedLogLevel())
	}
	if cfg.StoreBackend != BackendPostgres || cfg.DatabaseURL == "" {
		t.Errorf("store = %q %q", cfg.StoreBackend, cfg.DatabaseURL)
	}
	if cfg.RedisDB != 2 {
		t.Errorf("RedisDB = %d, want 2", cfg.RedisDB)
	}
	if len(cfg.DefaultSymbols) != 2 || cfg.DefaultSymbols[0] != "BTC" || cfg.DefaultSymbols[1] != "DOGE" {
		t.Errorf("DefaultSymbols = %v, want [BTC DOGE]", cfg.DefaultSymbols)
	}
	if !cfg.TradingFeeRate.Equal(decimal.RequireFromString("0.0025")) {
		t.Errorf("TradingFeeRate = %s", cfg.TradingFeeRate)
	}
	if !cfg.DefaultInitialBalance.Equal(decimal.RequireFromString("5000.5")) {
		t.Errorf("DefaultInitialBalance = %s", cfg.DefaultInitialBalance)
	}
	if cfg.OrderTTL != 24*time.Hour {
		t.Errorf("OrderTTL = %v, want 24h", cfg.OrderTTL)
	}
	if cfg.DefaultAIProvider != "groq" {
		t.Errorf("DefaultAIProvider = %q, want groq", cfg.DefaultAIProvider)
	}
	if cfg.ProviderKeys()["groq"] != "gsk-test" {
		t.Errorf("groq key = %q", cfg.ProviderKeys()["groq"])
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"port not a number", map[string]string{"PORT": "not-a-number"}},
		{"port out of range", map[string]string{"PORT": "70000"}},
		{"log level", map[string]string{"LOG_LEVEL": "verbose"}},
		{"backend", map[string]string{"STORE_BACKEND": "sqlite"}},
		{"postgres without url", map[string]string{"STORE_BACKEND": "postgres"}},
		{"db max conns", map[string]string{"DB_MAX_CONNS": "0"}},
		{"redis db", map[string]string{"REDIS_DB": "-1"}},
		{"fee rate syntax", map[string]string{"TRADING_FEE_RATE": "abc"}},
		{"fee rate negative", map[string]string{"TRADING_FEE_RATE": "-0.01"}},
		{"fee rate too high", map[string]string{"TRADING_FEE_RATE": "0.5"}},
		{"initial balance", map[string]string{"DEFAULT_INITIAL_BALANCE": "0"}},
		{"initial balance sub-cent", map[string]string{"DEFAULT_INITIAL_BALANCE": "100000.123"}},
		{"initial balance above cap", map[string]string{"DEFAULT_INITIAL_BALANCE": "2e9"}},
		{"max accounts", map[string]string{"MAX_ACCOUNTS_PER_USER": "0"}},
		{"refresh too fast", map[string]string{"MARKET_REFRESH_INTERVAL": "500ms"}},
		{"rate limit", map[string]string{"MARKET_RATE_LIMIT_PER_MIN": "0"}},
		{"negative duration", map[string]string{"ORDER_TTL": "-1h"}},
		{"missing integrations file", map[string]string{"INTEGRATIONS_FILE": "/nonexistent/integrations.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %v", tt.env)
			}
		})
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	for _, key := range durationEnvKeys {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, "not-a-duration")

			_, err := Load()
			if err == nil {
				t.Fatalf("expected error for invalid %s", key)
			}
		})
	}
}

func TestLoad_IntegrationsFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "integrations.yaml")
	content := `
providers:
  - name: Ollama
    base_url: http://localhost:11434/v1
    default_model: llama3
exchanges:
  - name: Binance
    base_url: https://api.binance.example
    api_key: ${TEST_EXCHANGE_KEY}
    api_secret: ${TEST_EXCHANGE_SECRET}
    rate_limit_per_sec: 2
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("INTEGRATIONS_FILE", path)
	t.Setenv("TEST_EXCHANGE_KEY", "key-123")
	t.Setenv("TEST_EXCHANGE_SECRET", "secret-456")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	in := cfg.Integrations
	if in == nil || len(in.Providers) != 1 || len(in.Exchanges) != 1 {
		t.Fatalf("integrations = %+v", in)
	}
	if in.Providers[0].Name != "ollama" || in.Providers[0].DefaultModel != "llama3" {
		t.Errorf("provider = %+v", in.Providers[0])
	}
	ex := in.Exchanges[0]
	if ex.Name != "binance" || ex.APIKey != "key-123" || ex.APISecret != "secret-456" || ex.RateLimitPerSec != 2 {
		t.Errorf("exchange = %+v", ex)
	}
}

func TestParseIntegrations_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":           "providers: [",
		"provider no name":   "providers:\n  - base_url: http://x\n",
		"duplicate provider": "providers:\n  - name: a\n  - name: A\n",
		"exchange no name":   "exchanges:\n  - base_url: https://x\n",
		"duplicate exchange": "exchanges:\n  - name: x\n  - name: x\n",
		"exchange bad url":   "exchanges:\n  - name: x\n    base_url: ftp://x\n",
		"negative rate":      "exchanges:\n  - name: x\n    rate_limit_per_sec: -1\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseIntegrations([]byte(data)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
