package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/service"
)

// TradeHandler handles HTTP requests for trade and order endpoints.
type TradeHandler struct {
	tradingSvc *service.TradingService
}

// NewTradeHandler creates a new TradeHandler.
func NewTradeHandler(tradingSvc *service.TradingService) *TradeHandler {
	return &TradeHandler{tradingSvc: tradingSvc}
}

// executeTradeRequest is the JSON request body for POST /trades. Type
// defaults to market and account_id to the caller's default account.
type executeTradeRequest struct {
	AccountID  string           `json:"account_id"`
	Symbol     string           `json:"symbol"`
	Side       string           `json:"side"`
	Type       string           `json:"type"`
	Quantity   decimal.Decimal  `json:"quantity"`
	LimitPrice *decimal.Decimal `json:"limit_price"`
	ExpiresAt  *string          `json:"expires_at"`
}

// tradeResponse is the JSON representation of an executed trade.
type tradeResponse struct {
	TradeID     string          `json:"trade_id"`
	AccountID   string          `json:"account_id"`
	OrderID     *string         `json:"order_id"`
	Symbol      string          `json:"symbol"`
	Side        string          `json:"side"`
	OrderType   string          `json:"order_type"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Total       decimal.Decimal `json:"total"`
	Fee         decimal.Decimal `json:"fee"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	ExecutedAt  string          `json:"executed_at"`
}

// orderResponse is the JSON representation of a limit order. Nullable fields
// are always present.
type orderResponse struct {
	OrderID      string          `json:"order_id"`
	AccountID    string          `json:"account_id"`
	Symbol       string          `json:"symbol"`
	Side         string          `json:"side"`
	Type         string          `json:"type"`
	LimitPrice   decimal.Decimal `json:"limit_price"`
	Quantity     decimal.Decimal `json:"quantity"`
	Reserved     decimal.Decimal `json:"reserved"`
	Status       string          `json:"status"`
	TradeID      *string         `json:"trade_id"`
	RejectReason *string         `json:"reject_reason"`
	ExpiresAt    string          `json:"expires_at"`
	CreatedAt    string          `json:"created_at"`
	FilledAt     *string         `json:"filled_at"`
	CancelledAt  *string         `json:"cancelled_at"`
	ExpiredAt    *string         `json:"expired_at"`
}

// executeTradeResponse carries either the trade (market) or the resting
// order (limit), plus the account after the operation.
type executeTradeResponse struct {
	Trade   *tradeResponse  `json:"trade"`
	Order   *orderResponse  `json:"order"`
	Account accountResponse `json:"account"`
}

// ExecuteTrade handles POST /trades.
func (h *TradeHandler) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var req executeTradeRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var expiresAt *time.Time
	if req.ExpiresAt != nil {
		t, err := time.Parse(time.RFC3339, *req.ExpiresAt)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "expires_at must be a valid RFC 3339 timestamp")
			return
		}
		expiresAt = &t
	}

	orderType := domain.OrderType(req.Type)
	if orderType == "" {
		orderType = domain.OrderTypeMarket
	}

	result, err := h.tradingSvc.ExecuteTrade(r.Context(), service.ExecuteTradeRequest{
		UserID:     userID(r),
		AccountID:  req.AccountID,
		Symbol:     req.Symbol,
		Side:       domain.Side(req.Side),
		Type:       orderType,
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
		ExpiresAt:  expiresAt,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := executeTradeResponse{Account: buildAccountResponse(result.Account)}
	if result.Trade != nil {
		t := buildTradeResponse(result.Trade)
		resp.Trade = &t
	}
	if result.Order != nil {
		o := buildOrderResponse(result.Order)
		resp.Order = &o
	}
	WriteJSON(w, http.StatusCreated, resp)
}

// GetOrder handles GET /orders/{order_id}.
func (h *TradeHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.tradingSvc.GetOrder(r.Context(), userID(r), chi.URLParam(r, "order_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(order))
}

// CancelOrder handles DELETE /orders/{order_id}.
func (h *TradeHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.tradingSvc.CancelOrder(r.Context(), userID(r), chi.URLParam(r, "order_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(order))
}

func buildTradeResponse(t *domain.Trade) tradeResponse {
	resp := tradeResponse{
		TradeID:     t.TradeID,
		AccountID:   t.AccountID,
		Symbol:      t.Symbol,
		Side:        string(t.Side),
		OrderType:   string(t.OrderType),
		Quantity:    t.Quantity,
		Price:       t.Price,
		Total:       t.Total,
		Fee:         t.Fee,
		RealizedPnL: t.RealizedPnL,
		ExecutedAt:  formatTime(t.ExecutedAt),
	}
	if t.OrderID != "" {
		id := t.OrderID
		resp.OrderID = &id
	}
	return resp
}

func buildOrderResponse(o *domain.Order) orderResponse {
	resp := orderResponse{
		OrderID:     o.OrderID,
		AccountID:   o.AccountID,
		Symbol:      o.Symbol,
		Side:        string(o.Side),
		Type:        string(domain.OrderTypeLimit),
		LimitPrice:  o.LimitPrice,
		Quantity:    o.Quantity,
		Reserved:    o.Reserved,
		Status:      string(o.Status),
		ExpiresAt:   formatTime(o.ExpiresAt),
		CreatedAt:   formatTime(o.CreatedAt),
		FilledAt:    formatTimePtr(o.FilledAt),
		CancelledAt: formatTimePtr(o.CancelledAt),
		ExpiredAt:   formatTimePtr(o.ExpiredAt),
	}
	if o.TradeID != "" {
		id := o.TradeID
		resp.TradeID = &id
	}
	if o.RejectReason != "" {
		reason := o.RejectReason
		resp.RejectReason = &reason
	}
	return resp
}
