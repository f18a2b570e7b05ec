package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the latest market snapshot for a symbol, a row of
// market_data_cache.
type Quote struct {
	Symbol           string          `json:"symbol"`
	AssetID          string          `json:"asset_id"`
	Name             string          `json:"name"`
	Price            decimal.Decimal `json:"price"`
	Change24h        decimal.Decimal `json:"change_24h"`
	ChangePercent24h decimal.Decimal `json:"change_percent_24h"`
	Volume24h        decimal.Decimal `json:"volume_24h"`
	MarketCap        decimal.Decimal `json:"market_cap"`
	High24h          decimal.Decimal `json:"high_24h"`
	Low24h           decimal.Decimal `json:"low_24h"`
	Source           string          `json:"source"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
