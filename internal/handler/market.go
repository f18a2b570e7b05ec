package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/engine"
	"github.com/efreitasn/papertrader/internal/service"
)

const defaultBookDepth = 10

// MarketHandler handles HTTP requests for market data endpoints.
type MarketHandler struct {
	marketSvc *service.MarketService
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(marketSvc *service.MarketService) *MarketHandler {
	return &MarketHandler{marketSvc: marketSvc}
}

type quoteResponse struct {
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
	UpdatedAt        string          `json:"updated_at"`
}

type quoteListResponse struct {
	Quotes []quoteResponse `json:"quotes"`
}

// refreshRequest is the optional JSON body for POST /market/refresh.
type refreshRequest struct {
	Symbols []string `json:"symbols"`
}

type refreshResponse struct {
	Refreshed int `json:"refreshed"`
}

type registerSymbolRequest struct {
	Symbol  string `json:"symbol"`
	AssetID string `json:"asset_id"`
}

type registerSymbolResponse struct {
	Symbol  string `json:"symbol"`
	AssetID string `json:"asset_id"`
}

type priceLevelResponse struct {
	Price         decimal.Decimal `json:"price"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	OrderCount    int             `json:"order_count"`
}

// bookResponse is the JSON response for GET /market/{symbol}/book: the
// aggregated resting paper limit orders for a symbol.
type bookResponse struct {
	Symbol string               `json:"symbol"`
	Bids   []priceLevelResponse `json:"bids"`
	Asks   []priceLevelResponse `json:"asks"`
}

// List handles GET /market.
func (h *MarketHandler) List(w http.ResponseWriter, r *http.Request) {
	quotes, err := h.marketSvc.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := quoteListResponse{Quotes: make([]quoteResponse, len(quotes))}
	for i, q := range quotes {
		resp.Quotes[i] = buildQuoteResponse(q)
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Refresh handles POST /market/refresh. Without a body every watched symbol
// is refreshed.
func (h *MarketHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if r.ContentLength != 0 {
		if err := ParseJSON(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}

	n, err := h.marketSvc.Refresh(r.Context(), req.Symbols)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, refreshResponse{Refreshed: n})
}

// RegisterSymbol handles POST /market/symbols.
func (h *MarketHandler) RegisterSymbol(w http.ResponseWriter, r *http.Request) {
	var req registerSymbolRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	symbol, err := h.marketSvc.RegisterSymbol(req.Symbol, req.AssetID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	assetID, _ := h.marketSvc.AssetID(symbol)
	WriteJSON(w, http.StatusCreated, registerSymbolResponse{Symbol: symbol, AssetID: assetID})
}

// Get handles GET /market/{symbol}.
func (h *MarketHandler) Get(w http.ResponseWriter, r *http.Request) {
	q, err := h.marketSvc.Get(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildQuoteResponse(q))
}

// GetBook handles GET /market/{symbol}/book?depth=N.
func (h *MarketHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	depth := defaultBookDepth
	if v := r.URL.Query().Get("depth"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "depth must be an integer")
			return
		}
		depth = d
	}

	symbol := domain.NormalizeSymbol(chi.URLParam(r, "symbol"))
	buys, sells, err := h.marketSvc.Book(symbol, depth)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, bookResponse{
		Symbol: symbol,
		Bids:   buildLevels(buys),
		Asks:   buildLevels(sells),
	})
}

func buildLevels(levels []engine.PriceLevel) []priceLevelResponse {
	out := make([]priceLevelResponse, len(levels))
	for i, l := range levels {
		out[i] = priceLevelResponse{Price: l.Price, TotalQuantity: l.TotalQuantity, OrderCount: l.OrderCount}
	}
	return out
}

func buildQuoteResponse(q *domain.Quote) quoteResponse {
	return quoteResponse{
		Symbol:           q.Symbol,
		AssetID:          q.AssetID,
		Name:             q.Name,
		Price:            q.Price,
		Change24h:        q.Change24h,
		ChangePercent24h: q.ChangePercent24h,
		Volume24h:        q.Volume24h,
		MarketCap:        q.MarketCap,
		High24h:          q.High24h,
		Low24h:           q.Low24h,
		Source:           q.Source,
		UpdatedAt:        formatTime(q.UpdatedAt),
	}
}
