package domain

import (
	"regexp"
	"sort"
	"strings"
	"sync"
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{1,10}$`)

// NormalizeSymbol trims and upper-cases a ticker symbol.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ValidSymbol reports whether s is a normalized ticker of 1–10 letters or digits.
func ValidSymbol(s string) bool {
	return symbolPattern.MatchString(s)
}

// DefaultAssets maps well-known tickers to their market-data asset ids.
var DefaultAssets = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"SOL":   "solana",
	"BNB":   "binancecoin",
	"XRP":   "ripple",
	"ADA":   "cardano",
	"DOGE":  "dogecoin",
	"AVAX":  "avalanche-2",
	"DOT":   "polkadot",
	"LINK":  "chainlink",
	"MATIC": "matic-network",
	"LTC":   "litecoin",
	"TRX":   "tron",
	"ATOM":  "cosmos",
	"USDT":  "tether",
}

// SymbolRegistry tracks tradeable symbols and the market-data asset id each
// one resolves to. Safe for concurrent use.
type SymbolRegistry struct {
	mu     sync.RWMutex
	assets map[string]string
}

// NewSymbolRegistry creates an empty SymbolRegistry.
func NewSymbolRegistry() *SymbolRegistry {
	return &SymbolRegistry{
		assets: make(map[string]string),
	}
}

// NewDefaultSymbolRegistry creates a registry seeded with DefaultAssets.
func NewDefaultSymbolRegistry() *SymbolRegistry {
	r := NewSymbolRegistry()
	for sym, id := range DefaultAssets {
		r.Register(sym, id)
	}
	return r
}

// Register maps symbol to assetID, replacing any previous mapping.
func (r *SymbolRegistry) Register(symbol, assetID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets[symbol] = assetID
}

// Exists returns true if the symbol has been registered.
func (r *SymbolRegistry) Exists(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.assets[symbol]
	return ok
}

// AssetID returns the asset id registered for symbol.
func (r *SymbolRegistry) AssetID(symbol string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.assets[symbol]
	return id, ok
}

// Symbols returns every registered symbol in sorted order.
func (r *SymbolRegistry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.assets))
	for sym := range r.assets {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
