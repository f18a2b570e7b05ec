// Package llm talks to OpenAI-compatible chat completion APIs.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/retry"
)

// ErrNotConfigured is returned by Chat when the provider has no API key.
var ErrNotConfigured = errors.New("provider_not_configured")

// ProviderConfig describes one chat completion endpoint.
type ProviderConfig struct {
	Name         string
	BaseURL      string
	APIKey       string
	DefaultModel string
	// Headers are added to every request, e.g. OpenRouter's HTTP-Referer.
	Headers map[string]string
}

// DefaultProviders returns the built-in providers without API keys.
func DefaultProviders() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		"openai": {
			Name:         "openai",
			BaseURL:      "https://api.openai.com/v1",
			DefaultModel: "gpt-4o-mini",
		},
		"openrouter": {
			Name:         "openrouter",
			BaseURL:      "https://openrouter.ai/api/v1",
			DefaultModel: "openai/gpt-4o-mini",
			Headers:      map[string]string{"X-Title": "papertrader"},
		},
		"groq": {
			Name:         "groq",
			BaseURL:      "https://api.groq.com/openai/v1",
			DefaultModel: "llama-3.1-8b-instant",
		},
		"deepseek": {
			Name:         "deepseek",
			BaseURL:      "https://api.deepseek.com/v1",
			DefaultModel: "deepseek-chat",
		},
	}
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token counts from the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the assistant reply.
type Completion struct {
	Provider string
	Model    string
	Content  string
	Usage    Usage
}

// ProviderInfo is the public view of a provider.
type ProviderInfo struct {
	Name         string `json:"name"`
	DefaultModel string `json:"default_model"`
	Configured   bool   `json:"configured"`
}

// Config holds client settings.
type Config struct {
	Providers      map[string]ProviderConfig
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	Logger         *slog.Logger
	HTTPClient     *http.Client
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client dispatches chat requests to the named provider.
type Client struct {
	providers   map[string]ProviderConfig
	httpClient  *http.Client
	logger      *slog.Logger
	retryConfig retry.Config
}

// NewClient creates a Client. Providers default to DefaultProviders.
func NewClient(cfg Config) *Client {
	if cfg.Providers == nil {
		cfg.Providers = DefaultProviders()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	providers := make(map[string]ProviderConfig, len(cfg.Providers))
	for name, p := range cfg.Providers {
		p.Name = name
		p.BaseURL = strings.TrimRight(p.BaseURL, "/")
		providers[name] = p
	}

	return &Client{
		providers:  providers,
		httpClient: httpClient,
		logger:     cfg.Logger.With("component", "llm-client"),
		retryConfig: retry.Config{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff,
			MaxBackoff:     10 * time.Second,
			BackoffFactor:  2.0,
		},
	}
}

// Providers lists the providers sorted by name.
func (c *Client) Providers() []ProviderInfo {
	out := make([]ProviderInfo, 0, len(c.providers))
	for _, p := range c.providers {
		out = append(out, ProviderInfo{Name: p.Name, DefaultModel: p.DefaultModel, Configured: p.APIKey != ""})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Provider returns the named provider.
func (c *Client) Provider(name string) (ProviderConfig, bool) {
	p, ok := c.providers[name]
	return p, ok
}

// Chat sends messages to provider. An empty model selects the provider's
// default. It returns domain.ErrUnknownProvider for unknown names,
// ErrNotConfigured without an API key, and wraps
// domain.ErrUpstreamUnavailable on upstream failure.
func (c *Client) Chat(ctx context.Context, provider, model string, messages []Message) (*Completion, error) {
	p, ok := c.providers[provider]
	if !ok {
		return nil, domain.ErrUnknownProvider
	}
	if p.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if model == "" {
		model = p.DefaultModel
	}

	body, err := json.Marshal(chatRequest{Model: model, Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	onRetry := func(attempt int, err error, backoff time.Duration) {
		c.logger.Warn("chat request failed, retrying",
			"provider", provider,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)
	}

	resp, err := retry.Do(ctx, c.retryConfig, onRetry, func() (*chatResponse, error) {
		return c.post(ctx, p, body)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrUpstreamUnavailable, provider, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: %s returned no choices", domain.ErrUpstreamUnavailable, provider)
	}

	out := &Completion{
		Provider: provider,
		Model:    resp.Model,
		Content:  resp.Choices[0].Message.Content,
		Usage:    resp.Usage,
	}
	if out.Model == "" {
		out.Model = model
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, p ProviderConfig, body []byte) (*chatResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		var apiErr errorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, retry.Permanent(fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiErr.Error.Message))
		}
		return nil, retry.Permanent(fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, retry.Permanent(fmt.Errorf("parsing response: %w", err))
	}
	return &out, nil
}
