// Package exchange forwards signed order requests to configured live
// exchanges.
package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/efreitasn/papertrader/internal/domain"
)

// Config describes one exchange endpoint and its credentials.
type Config struct {
	Name      string
	BaseURL   string
	APIKey    string
	APISecret string
	// RateLimitPerSec caps order submissions. Zero means 5/s.
	RateLimitPerSec float64
}

// Configured reports whether the exchange has a base URL and credentials.
func (c Config) Configured() bool {
	return c.BaseURL != "" && c.APIKey != "" && c.APISecret != ""
}

// Info is the public view of an exchange.
type Info struct {
	Name       string `json:"name"`
	Configured bool   `json:"configured"`
}

// OrderRequest is an order to submit to a live exchange.
type OrderRequest struct {
	Symbol        string           `json:"symbol"`
	Side          domain.Side      `json:"side"`
	Type          domain.OrderType `json:"type"`
	Quantity      decimal.Decimal  `json:"quantity"`
	LimitPrice    *decimal.Decimal `json:"limit_price,omitempty"`
	ClientOrderID string           `json:"client_order_id"`
}

// Validate checks the request and normalizes its symbol.
func (r *OrderRequest) Validate() error {
	r.Symbol = domain.NormalizeSymbol(r.Symbol)
	if !domain.ValidSymbol(r.Symbol) {
		return &domain.ValidationError{Message: "symbol must be 1-10 uppercase letters or digits"}
	}
	if !domain.ValidSide(r.Side) {
		return &domain.ValidationError{Message: "side must be buy or sell"}
	}
	if !domain.ValidOrderType(r.Type) {
		return &domain.ValidationError{Message: "type must be market or limit"}
	}
	if err := domain.ValidateQuantity("quantity", r.Quantity); err != nil {
		return err
	}
	switch r.Type {
	case domain.OrderTypeLimit:
		if r.LimitPrice == nil {
			return &domain.ValidationError{Message: "limit_price is required for limit orders"}
		}
		if err := domain.ValidateQuantity("limit_price", *r.LimitPrice); err != nil {
			return err
		}
	case domain.OrderTypeMarket:
		if r.LimitPrice != nil {
			return &domain.ValidationError{Message: "limit_price must not be set for market orders"}
		}
	}
	return nil
}

// Ack is the exchange acknowledgement. Raw keeps the full response body.
type Ack struct {
	Exchange      string          `json:"exchange"`
	ClientOrderID string          `json:"client_order_id"`
	OrderID       string          `json:"order_id,omitempty"`
	Status        string          `json:"status,omitempty"`
	Raw           json.RawMessage `json:"raw,omitempty"`
	SubmittedAt   time.Time       `json:"submitted_at"`
}

type exchange struct {
	cfg     Config
	limiter *rate.Limiter
}

// Connector routes orders to exchanges by name.
type Connector struct {
	exchanges  map[string]*exchange
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// NewConnector creates a connector for the given exchanges.
func NewConnector(configs []Config, timeout time.Duration, logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	exchanges := make(map[string]*exchange, len(configs))
	for _, cfg := range configs {
		cfg.Name = strings.ToLower(cfg.Name)
		cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
		rps := cfg.RateLimitPerSec
		if rps <= 0 {
			rps = 5
		}
		exchanges[cfg.Name] = &exchange{cfg: cfg, limiter: rate.NewLimiter(rate.Limit(rps), 1)}
	}
	return &Connector{
		exchanges:  exchanges,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "exchange-connector"),
		now:        time.Now,
	}
}

// List returns the exchanges sorted by name.
func (c *Connector) List() []Info {
	out := make([]Info, 0, len(c.exchanges))
	for _, ex := range c.exchanges {
		out = append(out, Info{Name: ex.cfg.Name, Configured: ex.cfg.Configured()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Sign returns the hex HMAC-SHA256 of timestamp followed by body.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SubmitOrder validates req, signs it and POSTs it to {base}/orders.
func (c *Connector) SubmitOrder(ctx context.Context, name string, req OrderRequest) (*Ack, error) {
	ex, ok := c.exchanges[strings.ToLower(name)]
	if !ok {
		return nil, domain.ErrUnknownExchange
	}
	if !ex.cfg.Configured() {
		return nil, domain.ErrExchangeNotConfigured
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.ClientOrderID == "" {
		req.ClientOrderID = uuid.NewString()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}
	if err := ex.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	now := c.now()
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, ex.cfg.BaseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", ex.cfg.APIKey)
	httpReq.Header.Set("X-Timestamp", ts)
	httpReq.Header.Set("X-Signature", Sign(ex.cfg.APISecret, ts, body))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("exchange request failed", "exchange", ex.cfg.Name, "error", err)
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrUpstreamUnavailable, ex.cfg.Name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s response: %v", domain.ErrUpstreamUnavailable, ex.cfg.Name, err)
	}
	if resp.StatusCode >= 300 {
		c.logger.Warn("exchange rejected order",
			"exchange", ex.cfg.Name,
			"status", resp.StatusCode,
			"client_order_id", req.ClientOrderID,
		)
		return nil, fmt.Errorf("%w: %s returned HTTP %d: %s", domain.ErrUpstreamUnavailable, ex.cfg.Name, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	ack := &Ack{
		Exchange:      ex.cfg.Name,
		ClientOrderID: req.ClientOrderID,
		SubmittedAt:   now.UTC(),
	}
	var parsed struct {
		OrderID string `json:"order_id"`
		ID      string `json:"id"`
		Status  string `json:"status"`
	}
	if json.Valid(data) {
		ack.Raw = data
		if json.Unmarshal(data, &parsed) == nil {
			ack.OrderID = parsed.OrderID
			if ack.OrderID == "" {
				ack.OrderID = parsed.ID
			}
			ack.Status = parsed.Status
		}
	}
	c.logger.Info("order forwarded",
		"exchange", ex.cfg.Name,
		"symbol", req.Symbol,
		"side", req.Side,
		"client_order_id", req.ClientOrderID,
		"order_id", ack.OrderID,
	)
	return ack, nil
}
