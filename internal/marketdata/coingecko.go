// Package marketdata fetches quotes from CoinGecko and refreshes them on a
// schedule.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/efreitasn/papertrader/internal/retry"
)

// Source is the value stored in Quote.Source for CoinGecko quotes.
const Source = "coingecko"

// maxIDsPerRequest is the page size accepted by /coins/markets.
const maxIDsPerRequest = 250

// ClientConfig holds configuration for the CoinGecko client.
type ClientConfig struct {
	// BaseURL defaults to the public API. Pro keys need the pro-api host.
	BaseURL string

	// APIKey is optional. It is sent as x-cg-pro-api-key on the pro host and
	// x-cg-demo-api-key elsewhere.
	APIKey string

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// RateLimitPerMin caps outbound requests per minute.
	RateLimitPerMin int

	Logger     *slog.Logger
	HTTPClient *http.Client
}

// ClientConfigDefaults returns a config with default values.
func ClientConfigDefaults() ClientConfig {
	return ClientConfig{
		BaseURL:         "https://api.coingecko.com/api/v3",
		Timeout:         15 * time.Second,
		MaxRetries:      3,
		InitialBackoff:  500 * time.Millisecond,
		MaxBackoff:      10 * time.Second,
		RateLimitPerMin: 25,
		Logger:          slog.Default(),
	}
}

// Market is one row of the /coins/markets response.
type Market struct {
	ID                       string          `json:"id"`
	Symbol                   string          `json:"symbol"`
	Name                     string          `json:"name"`
	CurrentPrice             decimal.Decimal `json:"current_price"`
	MarketCap                decimal.Decimal `json:"market_cap"`
	TotalVolume              decimal.Decimal `json:"total_volume"`
	High24h                  decimal.Decimal `json:"high_24h"`
	Low24h                   decimal.Decimal `json:"low_24h"`
	PriceChange24h           decimal.Decimal `json:"price_change_24h"`
	PriceChangePercentage24h decimal.Decimal `json:"price_change_percentage_24h"`
	LastUpdated              time.Time       `json:"last_updated"`
}

type apiError struct {
	Error  string `json:"error"`
	Status struct {
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
}

// Client calls the CoinGecko REST API.
type Client struct {
	config      ClientConfig
	httpClient  *http.Client
	logger      *slog.Logger
	limiter     *rate.Limiter
	retryConfig retry.Config
}

// NewClient creates a CoinGecko client, filling unset fields from
// ClientConfigDefaults.
func NewClient(config ClientConfig) *Client {
	applyDefaults(&config, ClientConfigDefaults())

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	rps := float64(config.RateLimitPerMin) / 60.0
	return &Client{
		config:     config,
		httpClient: httpClient,
		logger:     config.Logger.With("component", "coingecko-client"),
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		retryConfig: retry.Config{
			MaxRetries:     config.MaxRetries,
			InitialBackoff: config.InitialBackoff,
			MaxBackoff:     config.MaxBackoff,
			BackoffFactor:  2.0,
		},
	}
}

func applyDefaults(config *ClientConfig, defaults ClientConfig) {
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.RateLimitPerMin == 0 {
		config.RateLimitPerMin = defaults.RateLimitPerMin
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return Source
}

// GetMarkets fetches USD market data for the given asset ids, batching
// requests at maxIDsPerRequest ids each.
func (c *Client) GetMarkets(ctx context.Context, assetIDs []string) ([]Market, error) {
	if len(assetIDs) == 0 {
		return nil, nil
	}

	results := make([]Market, 0, len(assetIDs))
	for i := 0; i < len(assetIDs); i += maxIDsPerRequest {
		end := min(i+maxIDsPerRequest, len(assetIDs))

		params := url.Values{
			"vs_currency": {"usd"},
			"ids":         {strings.Join(assetIDs[i:end], ",")},
			"per_page":    {fmt.Sprintf("%d", maxIDsPerRequest)},
			"page":        {"1"},
		}
		var batch []Market
		if err := c.doRequest(ctx, c.config.BaseURL+"/coins/markets", params, &batch); err != nil {
			return nil, fmt.Errorf("fetching markets for batch starting at %d: %w", i, err)
		}
		results = append(results, batch...)
	}
	return results, nil
}

func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values, result any) error {
	fullURL := endpoint + "?" + params.Encode()

	onRetry := func(attempt int, err error, backoff time.Duration) {
		c.logger.Warn("request failed, retrying",
			"attempt", attempt,
			"maxRetries", c.retryConfig.MaxRetries,
			"backoff", backoff,
			"error", err,
		)
	}

	return retry.DoVoid(ctx, c.retryConfig, onRetry, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Permanent(fmt.Errorf("rate limiter: %w", err))
		}
		return c.doSingleRequest(ctx, fullURL, result)
	})
}

func (c *Client) doSingleRequest(ctx context.Context, fullURL string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		if strings.Contains(c.config.BaseURL, "pro-api") {
			req.Header.Set("x-cg-pro-api-key", c.config.APIKey)
		} else {
			req.Header.Set("x-cg-demo-api-key", c.config.APIKey)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("rate limited (HTTP 429)")
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("server error (HTTP %d)", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if jsonErr := json.Unmarshal(body, &apiErr); jsonErr == nil {
			msg := apiErr.Error
			if msg == "" {
				msg = apiErr.Status.ErrorMessage
			}
			if msg != "" {
				return retry.Permanent(fmt.Errorf("API error (HTTP %d): %s", resp.StatusCode, msg))
			}
		}
		return retry.Permanent(fmt.Errorf("client error (HTTP %d): %s", resp.StatusCode, string(body)))
	}

	if err := json.Unmarshal(body, result); err != nil {
		return retry.Permanent(fmt.Errorf("parsing response: %w", err))
	}
	return nil
}
