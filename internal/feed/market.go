package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrader/internal/domain"
)

// maxStep is the largest relative move of one tick (0.5%).
var maxStep = decimal.RequireFromString("0.005")

// fallbackPrice seeds symbols that have no quote yet.
var fallbackPrice = decimal.NewFromInt(100)

// PriceSource supplies the latest known price of a symbol.
type PriceSource interface {
	LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, bool)
}

// ClientMessage is what clients send on the market stream.
type ClientMessage struct {
	Type    string   `json:"type"` // subscribe | unsubscribe
	Symbols []string `json:"symbols"`
}

// ServerMessage acknowledges subscriptions and reports errors.
type ServerMessage struct {
	Type    string   `json:"type"` // subscribed | unsubscribed | error
	Symbols []string `json:"symbols,omitempty"`
	Message string   `json:"message,omitempty"`
}

// Tick is one simulated price update.
type Tick struct {
	Type      string          `json:"type"`
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Change    decimal.Decimal `json:"change"`
	Volume    decimal.Decimal `json:"volume"`
	Timestamp time.Time       `json:"timestamp"`
}

// MarketFeed streams random-walk ticks seeded from the latest quotes.
type MarketFeed struct {
	cfg    Config
	prices PriceSource
	logger *slog.Logger

	mu      sync.Mutex
	clients int
}

// NewMarketFeed creates a market stream.
func NewMarketFeed(cfg Config, prices PriceSource, logger *slog.Logger) *MarketFeed {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &MarketFeed{cfg: cfg, prices: prices, logger: logger.With("component", "market-feed")}
}

// Clients returns the number of connected clients.
func (f *MarketFeed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients
}

// ServeHTTP upgrades the request and streams ticks until the client leaves.
func (f *MarketFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Debug("upgrade failed", "error", err)
		return
	}
	c := newConn(ws, f.cfg, f.logger)
	s := &marketSession{feed: f, conn: c, walks: make(map[string]decimal.Decimal)}

	f.mu.Lock()
	f.clients++
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.clients--
		f.mu.Unlock()
	}()

	go c.keepalive()
	go s.tickLoop(r.Context())
	s.readLoop(r.Context())
	c.close()
}

type marketSession struct {
	feed *MarketFeed
	conn *conn

	mu    sync.Mutex
	walks map[string]decimal.Decimal // symbol → last simulated price
}

func (s *marketSession) readLoop(ctx context.Context) {
	for {
		_, data, err := s.conn.ws.ReadMessage()
		if err != nil {
			if isUnexpectedClose(err) {
				s.feed.logger.Debug("market client disconnected", "error", err)
			}
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = s.conn.writeJSON(ServerMessage{Type: "error", Message: "invalid JSON"})
			continue
		}
		switch msg.Type {
		case "subscribe":
			s.subscribe(ctx, msg.Symbols)
		case "unsubscribe":
			s.unsubscribe(msg.Symbols)
		default:
			_ = s.conn.writeJSON(ServerMessage{Type: "error", Message: "type must be subscribe or unsubscribe"})
		}
	}
}

func (s *marketSession) subscribe(ctx context.Context, symbols []string) {
	var added, invalid []string
	s.mu.Lock()
	for _, raw := range symbols {
		sym := domain.NormalizeSymbol(raw)
		if !domain.ValidSymbol(sym) {
			invalid = append(invalid, raw)
			continue
		}
		if _, ok := s.walks[sym]; ok {
			continue
		}
		if len(s.walks) >= s.feed.cfg.MaxSymbols {
			invalid = append(invalid, raw)
			continue
		}
		seed := fallbackPrice
		if s.feed.prices != nil {
			if p, ok := s.feed.prices.LatestPrice(ctx, sym); ok && p.IsPositive() {
				seed = p
			}
		}
		s.walks[sym] = seed
		added = append(added, sym)
	}
	current := s.symbolsLocked()
	s.mu.Unlock()

	if len(invalid) > 0 {
		_ = s.conn.writeJSON(ServerMessage{Type: "error", Symbols: invalid, Message: "invalid symbols or subscription limit reached"})
	}
	if len(added) > 0 {
		s.feed.logger.Debug("market subscription", "added", added)
	}
	_ = s.conn.writeJSON(ServerMessage{Type: "subscribed", Symbols: current})
}

func (s *marketSession) unsubscribe(symbols []string) {
	s.mu.Lock()
	for _, raw := range symbols {
		delete(s.walks, domain.NormalizeSymbol(raw))
	}
	current := s.symbolsLocked()
	s.mu.Unlock()
	_ = s.conn.writeJSON(ServerMessage{Type: "unsubscribed", Symbols: current})
}

func (s *marketSession) symbolsLocked() []string {
	out := make([]string, 0, len(s.walks))
	for sym := range s.walks {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func (s *marketSession) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(s.feed.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.conn.done:
			return
		case now := <-ticker.C:
			for _, tick := range s.step(now) {
				if err := s.conn.writeJSON(tick); err != nil {
					s.conn.close()
					return
				}
			}
		}
	}
}

// step advances every subscribed walk by one tick.
func (s *marketSession) step(now time.Time) []Tick {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticks := make([]Tick, 0, len(s.walks))
	for _, sym := range s.symbolsLocked() {
		prev := s.walks[sym]
		next := NextPrice(prev, rand.Float64())
		s.walks[sym] = next
		ticks = append(ticks, Tick{
			Type:      "tick",
			Symbol:    sym,
			Price:     next,
			Change:    next.Sub(prev),
			Volume:    decimal.NewFromFloat(rand.Float64() * 1000).Round(4),
			Timestamp: now.UTC(),
		})
	}
	return ticks
}

// NextPrice moves price by up to ±0.5%. u in [0, 1) picks the move: 0 is the
// largest drop and values near 1 the largest rise.
func NextPrice(price decimal.Decimal, u float64) decimal.Decimal {
	move := decimal.NewFromFloat(u*2 - 1).Mul(maxStep)
	next := domain.RoundAmount(price.Mul(decimal.NewFromInt(1).Add(move)))
	if !next.IsPositive() {
		return price
	}
	return next
}
