package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/engine"
	"github.com/efreitasn/papertrader/internal/marketdata"
	"github.com/efreitasn/papertrader/internal/store"
	"github.com/efreitasn/papertrader/internal/telemetry"
)

// MarketFetcher pulls market rows for asset ids from an upstream API.
type MarketFetcher interface {
	Name() string
	GetMarkets(ctx context.Context, assetIDs []string) ([]marketdata.Market, error)
}

// QuoteCache is the hot cache in front of market_data_cache.
type QuoteCache interface {
	SetQuotes(ctx context.Context, quotes []*domain.Quote) error
	GetQuote(ctx context.Context, symbol string) (*domain.Quote, error)
}

// QuoteListener is told about every batch of fresh quotes.
type QuoteListener interface {
	OnQuotes(ctx context.Context, quotes []*domain.Quote)
}

// BookSymbols lists symbols with resting limit orders.
type BookSymbols interface {
	Symbols() []string
	Depth(symbol string, n int) (buys, sells []engine.PriceLevel)
}

// MarketService refreshes market_data_cache from the upstream API and serves
// quotes from the Redis cache with the table as fallback.
type MarketService struct {
	fetcher        MarketFetcher
	quotes         store.QuoteRepository
	cache          QuoteCache
	symbols        *domain.SymbolRegistry
	books          BookSymbols
	defaultSymbols []string
	metrics        *telemetry.Metrics
	logger         *slog.Logger

	mu        sync.RWMutex
	listeners []QuoteListener
	tracked   map[string]bool
}

// NewMarketService creates a new MarketService. cache and books may be nil.
func NewMarketService(
	fetcher MarketFetcher,
	quotes store.QuoteRepository,
	cache QuoteCache,
	symbols *domain.SymbolRegistry,
	books BookSymbols,
	defaultSymbols []string,
	metrics *telemetry.Metrics,
	logger *slog.Logger,
) *MarketService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MarketService{
		fetcher:        fetcher,
		quotes:         quotes,
		cache:          cache,
		symbols:        symbols,
		books:          books,
		defaultSymbols: defaultSymbols,
		metrics:        metrics,
		logger:         logger.With("component", "market"),
		tracked:        make(map[string]bool),
	}
}

// AddListener registers l for fresh quotes. Call before the poller starts.
func (s *MarketService) AddListener(l QuoteListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Track adds symbols to the refresh set.
func (s *MarketService) Track(symbols ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sym := range symbols {
		s.tracked[domain.NormalizeSymbol(sym)] = true
	}
}

// WatchedSymbols is the union of the default symbols, tracked symbols and
// symbols with resting limit orders, sorted.
func (s *MarketService) WatchedSymbols() []string {
	set := make(map[string]bool)
	for _, sym := range s.defaultSymbols {
		set[sym] = true
	}
	s.mu.RLock()
	for sym := range s.tracked {
		set[sym] = true
	}
	s.mu.RUnlock()
	if s.books != nil {
		for _, sym := range s.books.Symbols() {
			set[sym] = true
		}
	}
	out := make([]string, 0, len(set))
	for sym := range set {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// RegisterSymbol maps a ticker to an upstream asset id and starts tracking it.
func (s *MarketService) RegisterSymbol(symbol, assetID string) (string, error) {
	symbol = domain.NormalizeSymbol(symbol)
	assetID = strings.TrimSpace(strings.ToLower(assetID))
	if !domain.ValidSymbol(symbol) {
		return "", &domain.ValidationError{Message: "symbol must be 1-10 uppercase letters or digits"}
	}
	if assetID == "" || len(assetID) > 100 {
		return "", &domain.ValidationError{Message: "asset_id must be 1-100 characters"}
	}
	s.symbols.Register(symbol, assetID)
	s.Track(symbol)
	return symbol, nil
}

// AssetID returns the upstream asset id registered for symbol.
func (s *MarketService) AssetID(symbol string) (string, bool) {
	return s.symbols.AssetID(domain.NormalizeSymbol(symbol))
}

// Refresh fetches quotes for symbols (all watched symbols when empty),
// upserts them into market_data_cache, writes the Redis cache and notifies
// listeners. Unknown symbols are skipped. It returns the number of quotes
// stored.
func (s *MarketService) Refresh(ctx context.Context, symbols []string) (n int, err error) {
	start := time.Now()
	defer func() { s.metrics.RecordRefresh(ctx, time.Since(start), n, err) }()

	if len(symbols) == 0 {
		symbols = s.WatchedSymbols()
	}

	bySymbol := make(map[string]string, len(symbols))
	symbolByAsset := make(map[string]string, len(symbols))
	assetIDs := make([]string, 0, len(symbols))
	for _, raw := range symbols {
		sym := domain.NormalizeSymbol(raw)
		if _, dup := bySymbol[sym]; dup {
			continue
		}
		assetID, ok := s.symbols.AssetID(sym)
		if !ok {
			s.logger.Debug("skipping unknown symbol", "symbol", sym)
			continue
		}
		bySymbol[sym] = assetID
		if _, dup := symbolByAsset[assetID]; !dup {
			symbolByAsset[assetID] = sym
			assetIDs = append(assetIDs, assetID)
		}
	}
	if len(assetIDs) == 0 {
		return 0, nil
	}

	markets, err := s.fetcher.GetMarkets(ctx, assetIDs)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}

	now := time.Now().UTC()
	quotes := make([]*domain.Quote, 0, len(markets))
	for _, m := range markets {
		sym, ok := symbolByAsset[m.ID]
		if !ok || !m.CurrentPrice.IsPositive() {
			continue
		}
		updated := m.LastUpdated.UTC()
		if updated.IsZero() {
			updated = now
		}
		quotes = append(quotes, &domain.Quote{
			Symbol:           sym,
			AssetID:          m.ID,
			Name:             m.Name,
			Price:            domain.RoundAmount(m.CurrentPrice),
			Change24h:        domain.RoundAmount(m.PriceChange24h),
			ChangePercent24h: domain.RoundAmount(m.PriceChangePercentage24h),
			Volume24h:        domain.RoundAmount(m.TotalVolume),
			MarketCap:        domain.RoundAmount(m.MarketCap),
			High24h:          domain.RoundAmount(m.High24h),
			Low24h:           domain.RoundAmount(m.Low24h),
			Source:           s.fetcher.Name(),
			UpdatedAt:        updated,
		})
	}
	if len(quotes) == 0 {
		return 0, nil
	}

	if err := s.quotes.Upsert(ctx, quotes); err != nil {
		return 0, fmt.Errorf("storing quotes: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.SetQuotes(ctx, quotes); err != nil {
			s.logger.Warn("quote cache write failed", "error", err)
		}
	}

	s.mu.RLock()
	listeners := append([]QuoteListener(nil), s.listeners...)
	s.mu.RUnlock()
	for _, l := range listeners {
		l.OnQuotes(ctx, quotes)
	}

	s.logger.Debug("market data refreshed", "quotes", len(quotes), "duration", time.Since(start))
	return len(quotes), nil
}

// Get returns the latest quote for symbol from the cache, falling back to
// the table.
func (s *MarketService) Get(ctx context.Context, symbol string) (*domain.Quote, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if !domain.ValidSymbol(symbol) {
		return nil, &domain.ValidationError{Message: "symbol must be 1-10 uppercase letters or digits"}
	}
	if s.cache != nil {
		q, err := s.cache.GetQuote(ctx, symbol)
		if err != nil {
			s.logger.Warn("quote cache read failed", "symbol", symbol, "error", err)
		} else if q != nil {
			return q, nil
		}
	}
	q, err := s.quotes.Get(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetQuotes(ctx, []*domain.Quote{q}); err != nil {
			s.logger.Debug("quote cache backfill failed", "symbol", symbol, "error", err)
		}
	}
	return q, nil
}

// List returns every cached quote ordered by symbol.
func (s *MarketService) List(ctx context.Context) ([]*domain.Quote, error) {
	return s.quotes.List(ctx)
}

// LatestPrice returns the latest known price of symbol.
func (s *MarketService) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	q, err := s.Get(ctx, symbol)
	if err != nil {
		if !errors.Is(err, domain.ErrQuoteNotFound) {
			s.logger.Warn("price lookup failed", "symbol", symbol, "error", err)
		}
		return decimal.Zero, false
	}
	return q.Price, true
}

// Book returns up to depth aggregated levels of resting limit orders.
func (s *MarketService) Book(symbol string, depth int) (buys, sells []engine.PriceLevel, err error) {
	symbol = domain.NormalizeSymbol(symbol)
	if !domain.ValidSymbol(symbol) {
		return nil, nil, &domain.ValidationError{Message: "symbol must be 1-10 uppercase letters or digits"}
	}
	if depth < 1 || depth > 50 {
		return nil, nil, &domain.ValidationError{Message: "depth must be between 1 and 50"}
	}
	if s.books == nil {
		return nil, nil, nil
	}
	buys, sells = s.books.Depth(symbol, depth)
	return buys, sells, nil
}
