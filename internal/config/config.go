package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrader/internal/domain"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config holds all runtime configuration for the paper-trading service.
type Config struct {
	Port     int
	LogLevel string
	LogFile  string

	StoreBackend string
	DatabaseURL  string
	DBMaxConns   int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	QuoteCacheTTL time.Duration

	MarketDataURL         string
	CoinGeckoAPIKey       string
	MarketRefreshInterval time.Duration
	MarketRateLimitPerMin int
	DefaultSymbols        []string

	TradingFeeRate        decimal.Decimal
	DefaultInitialBalance decimal.Decimal
	MaxAccountsPerUser    int
	OrderTTL              time.Duration
	ExpirationInterval    time.Duration
	WebhookTimeout        time.Duration
	FeedTickInterval      time.Duration

	AITimeout         time.Duration
	DefaultAIProvider string
	OpenAIAPIKey      string
	OpenRouterAPIKey  string
	GroqAPIKey        string
	DeepSeekAPIKey    string

	OTLPEndpoint string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	IntegrationsFile string
	Integrations     *Integrations
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. An optional .env file in the working directory is
// loaded first; variables already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid PORT: %d out of range", port)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	backend := getStr("STORE_BACKEND", BackendMemory)
	if backend != BackendMemory && backend != BackendPostgres {
		return nil, fmt.Errorf("invalid STORE_BACKEND: %q, must be one of: memory, postgres", backend)
	}
	databaseURL := getStr("DATABASE_URL", "")
	if backend == BackendPostgres && databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=postgres")
	}

	dbMaxConns, err := getInt("DB_MAX_CONNS", 10)
	if err != nil || dbMaxConns < 1 {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: must be a positive integer")
	}

	redisDB, err := getInt("REDIS_DB", 0)
	if err != nil || redisDB < 0 {
		return nil, fmt.Errorf("invalid REDIS_DB: must be a non-negative integer")
	}

	quoteCacheTTL, err := getDuration("QUOTE_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid QUOTE_CACHE_TTL: %w", err)
	}

	refreshInterval, err := getDuration("MARKET_REFRESH_INTERVAL", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid MARKET_REFRESH_INTERVAL: %w", err)
	}
	if refreshInterval < time.Second {
		return nil, fmt.Errorf("invalid MARKET_REFRESH_INTERVAL: must be at least 1s")
	}

	rateLimit, err := getInt("MARKET_RATE_LIMIT_PER_MIN", 25)
	if err != nil || rateLimit < 1 {
		return nil, fmt.Errorf("invalid MARKET_RATE_LIMIT_PER_MIN: must be a positive integer")
	}

	feeRate, err := getDecimal("TRADING_FEE_RATE", decimal.RequireFromString("0.001"))
	if err != nil {
		return nil, fmt.Errorf("invalid TRADING_FEE_RATE: %w", err)
	}
	if feeRate.IsNegative() || feeRate.GreaterThanOrEqual(decimal.NewFromFloat(0.1)) {
		return nil, fmt.Errorf("invalid TRADING_FEE_RATE: must be in [0, 0.1)")
	}

	initialBalance, err := getDecimal("DEFAULT_INITIAL_BALANCE", decimal.NewFromInt(100_000))
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_INITIAL_BALANCE: %w", err)
	}
	if err := domain.ValidateCash("value", initialBalance, domain.MaxInitialBalance); err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_INITIAL_BALANCE: %w", err)
	}

	maxAccounts, err := getInt("MAX_ACCOUNTS_PER_USER", 10)
	if err != nil || maxAccounts < 1 {
		return nil, fmt.Errorf("invalid MAX_ACCOUNTS_PER_USER: must be a positive integer")
	}

	orderTTL, err := getDuration("ORDER_TTL", 7*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid ORDER_TTL: %w", err)
	}

	expirationInterval, err := getDuration("EXPIRATION_INTERVAL", 1*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid EXPIRATION_INTERVAL: %w", err)
	}

	webhookTimeout, err := getDuration("WEBHOOK_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WEBHOOK_TIMEOUT: %w", err)
	}

	feedTick, err := getDuration("FEED_TICK_INTERVAL", 1*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid FEED_TICK_INTERVAL: %w", err)
	}

	aiTimeout, err := getDuration("AI_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid AI_TIMEOUT: %w", err)
	}

	readTimeout, err := getDuration("READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := getDuration("WRITE_TIMEOUT", 90*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}

	idleTimeout, err := getDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	for key, d := range map[string]time.Duration{
		"QUOTE_CACHE_TTL":     quoteCacheTTL,
		"ORDER_TTL":           orderTTL,
		"EXPIRATION_INTERVAL": expirationInterval,
		"WEBHOOK_TIMEOUT":     webhookTimeout,
		"FEED_TICK_INTERVAL":  feedTick,
		"AI_TIMEOUT":          aiTimeout,
		"READ_TIMEOUT":        readTimeout,
		"WRITE_TIMEOUT":       writeTimeout,
		"IDLE_TIMEOUT":        idleTimeout,
		"SHUTDOWN_TIMEOUT":    shutdownTimeout,
	} {
		if d <= 0 {
			return nil, fmt.Errorf("invalid %s: must be positive", key)
		}
	}

	cfg := &Config{
		Port:                  port,
		LogLevel:              logLevel,
		LogFile:               getStr("LOG_FILE", ""),
		StoreBackend:          backend,
		DatabaseURL:           databaseURL,
		DBMaxConns:            dbMaxConns,
		RedisAddr:             getStr("REDIS_ADDR", ""),
		RedisPassword:         getStr("REDIS_PASSWORD", ""),
		RedisDB:               redisDB,
		QuoteCacheTTL:         quoteCacheTTL,
		MarketDataURL:         getStr("MARKET_DATA_URL", "https://api.coingecko.com/api/v3"),
		CoinGeckoAPIKey:       getStr("COINGECKO_API_KEY", ""),
		MarketRefreshInterval: refreshInterval,
		MarketRateLimitPerMin: rateLimit,
		DefaultSymbols:        getList("DEFAULT_SYMBOLS", []string{"BTC", "ETH", "SOL"}),
		TradingFeeRate:        feeRate,
		DefaultInitialBalance: initialBalance,
		MaxAccountsPerUser:    maxAccounts,
		OrderTTL:              orderTTL,
		ExpirationInterval:    expirationInterval,
		WebhookTimeout:        webhookTimeout,
		FeedTickInterval:      feedTick,
		AITimeout:             aiTimeout,
		DefaultAIProvider:     strings.ToLower(getStr("DEFAULT_AI_PROVIDER", "openai")),
		OpenAIAPIKey:          getStr("OPENAI_API_KEY", ""),
		OpenRouterAPIKey:      getStr("OPENROUTER_API_KEY", ""),
		GroqAPIKey:            getStr("GROQ_API_KEY", ""),
		DeepSeekAPIKey:        getStr("DEEPSEEK_API_KEY", ""),
		OTLPEndpoint:          getStr("OTLP_ENDPOINT", ""),
		ReadTimeout:           readTimeout,
		WriteTimeout:          writeTimeout,
		IdleTimeout:           idleTimeout,
		ShutdownTimeout:       shutdownTimeout,
		IntegrationsFile:      getStr("INTEGRATIONS_FILE", ""),
	}

	if cfg.IntegrationsFile != "" {
		integrations, err := LoadIntegrations(cfg.IntegrationsFile)
		if err != nil {
			return nil, fmt.Errorf("invalid INTEGRATIONS_FILE: %w", err)
		}
		cfg.Integrations = integrations
	}

	return cfg, nil
}

// ParsedLogLevel returns LogLevel as a slog.Level.
func (c *Config) ParsedLogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ProviderKeys maps built-in LLM provider names to their API keys.
func (c *Config) ProviderKeys() map[string]string {
	return map[string]string{
		"openai":     c.OpenAIAPIKey,
		"openrouter": c.OpenRouterAPIKey,
		"groq":       c.GroqAPIKey,
		"deepseek":   c.DeepSeekAPIKey,
	}
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

func getDecimal(key string, defaultVal decimal.Decimal) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return decimal.NewFromString(v)
}

// getList splits a comma-separated value, uppercasing and dropping blanks.
func getList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		item = strings.ToUpper(strings.TrimSpace(item))
		if item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
