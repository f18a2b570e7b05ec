// Package cache keeps the latest quotes in Redis so reads skip the
// market_data_cache table while a quote is fresh.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/efreitasn/papertrader/internal/domain"
)

// Config holds Redis connection and cache settings.
type Config struct {
	// Addr is the Redis server address (e.g. "localhost:6379").
	Addr string
	// Password for Redis authentication (empty for no auth).
	Password string
	// DB is the Redis database number.
	DB int
	// TTL is how long a cached quote lives.
	TTL time.Duration
	// KeyPrefix is prepended to all cache keys.
	KeyPrefix string
}

// ConfigDefaults returns defaults for the quote cache.
func ConfigDefaults() Config {
	return Config{
		Addr:      "localhost:6379",
		TTL:       30 * time.Second,
		KeyPrefix: "papertrader",
	}
}

// NewClient opens a Redis client for cfg. It does not dial.
func NewClient(cfg Config) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), nil
}

// QuoteCache stores quotes as JSON under prefix:quote:SYMBOL.
type QuoteCache struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	logger    *slog.Logger
}

// NewQuoteCache creates a QuoteCache on an existing client.
func NewQuoteCache(client *redis.Client, cfg Config, logger *slog.Logger) *QuoteCache {
	defaults := ConfigDefaults()
	if cfg.TTL <= 0 {
		cfg.TTL = defaults.TTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaults.KeyPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QuoteCache{
		client:    client,
		ttl:       cfg.TTL,
		keyPrefix: cfg.KeyPrefix,
		logger:    logger.With("component", "quote-cache"),
	}
}

// Ping checks the Redis connection.
func (c *QuoteCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *QuoteCache) key(symbol string) string {
	return fmt.Sprintf("%s:quote:%s", c.keyPrefix, symbol)
}

// SetQuotes writes all quotes in a single pipeline.
func (c *QuoteCache) SetQuotes(ctx context.Context, quotes []*domain.Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for _, q := range quotes {
		data, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("failed to encode quote %s: %w", q.Symbol, err)
		}
		pipe.Set(ctx, c.key(q.Symbol), data, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache quotes: %w", err)
	}
	return nil
}

// GetQuote returns nil, nil on a cache miss.
func (c *QuoteCache) GetQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	data, err := c.client.Get(ctx, c.key(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}

	var q domain.Quote
	if err := json.Unmarshal(data, &q); err != nil {
		c.logger.Warn("dropping undecodable cached quote", "symbol", symbol, "error", err)
		return nil, nil
	}
	return &q, nil
}
