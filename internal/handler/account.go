package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/service"
)

// AccountHandler handles HTTP requests for account endpoints.
type AccountHandler struct {
	accountSvc *service.AccountService
	tradingSvc *service.TradingService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountSvc *service.AccountService, tradingSvc *service.TradingService) *AccountHandler {
	return &AccountHandler{accountSvc: accountSvc, tradingSvc: tradingSvc}
}

// createAccountRequest is the JSON request body for POST /accounts.
type createAccountRequest struct {
	Name           string           `json:"name"`
	InitialBalance *decimal.Decimal `json:"initial_balance"`
}

// positionResponse is a holding inside an account response.
type positionResponse struct {
	Symbol           string          `json:"symbol"`
	Quantity         decimal.Decimal `json:"quantity"`
	ReservedQuantity decimal.Decimal `json:"reserved_quantity"`
	AverageCost      decimal.Decimal `json:"average_cost"`
}

// accountResponse is the JSON representation of an account.
type accountResponse struct {
	AccountID      string             `json:"account_id"`
	Name           string             `json:"name"`
	InitialBalance decimal.Decimal    `json:"initial_balance"`
	CashBalance    decimal.Decimal    `json:"cash_balance"`
	ReservedCash   decimal.Decimal    `json:"reserved_cash"`
	AvailableCash  decimal.Decimal    `json:"available_cash"`
	IsDefault      bool               `json:"is_default"`
	Positions      []positionResponse `json:"positions"`
	CreatedAt      string             `json:"created_at"`
	UpdatedAt      string             `json:"updated_at"`
}

type accountListResponse struct {
	Accounts []accountResponse `json:"accounts"`
}

// resetResultResponse is one entry of POST /accounts/reset.
type resetResultResponse struct {
	AccountID string           `json:"account_id"`
	Name      string           `json:"name"`
	Success   bool             `json:"success"`
	Account   *accountResponse `json:"account,omitempty"`
	Error     string           `json:"error,omitempty"`
}

type resetAllResponse struct {
	Results []resetResultResponse `json:"results"`
	Reset   int                   `json:"reset"`
	Failed  int                   `json:"failed"`
}

type valuedPositionResponse struct {
	Symbol               string           `json:"symbol"`
	Quantity             decimal.Decimal  `json:"quantity"`
	ReservedQuantity     decimal.Decimal  `json:"reserved_quantity"`
	AverageCost          decimal.Decimal  `json:"average_cost"`
	CostBasis            decimal.Decimal  `json:"cost_basis"`
	CurrentPrice         *decimal.Decimal `json:"current_price"`
	MarketValue          decimal.Decimal  `json:"market_value"`
	UnrealizedPnL        decimal.Decimal  `json:"unrealized_pnl"`
	UnrealizedPnLPercent decimal.Decimal  `json:"unrealized_pnl_percent"`
	PriceAvailable       bool             `json:"price_available"`
}

// portfolioResponse is the JSON response for GET /accounts/{id}/portfolio.
type portfolioResponse struct {
	AccountID       string                   `json:"account_id"`
	Name            string                   `json:"name"`
	CashBalance     decimal.Decimal          `json:"cash_balance"`
	AvailableCash   decimal.Decimal          `json:"available_cash"`
	PositionsValue  decimal.Decimal          `json:"positions_value"`
	TotalValue      decimal.Decimal          `json:"total_value"`
	InitialBalance  decimal.Decimal          `json:"initial_balance"`
	TotalPnL        decimal.Decimal          `json:"total_pnl"`
	TotalPnLPercent decimal.Decimal          `json:"total_pnl_percent"`
	Positions       []valuedPositionResponse `json:"positions"`
	ValuedAt        string                   `json:"valued_at"`
}

type tradeListResponse struct {
	Trades []tradeResponse `json:"trades"`
	paginationResponse
}

type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	paginationResponse
}

// Create handles POST /accounts.
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if r.ContentLength != 0 {
		if err := ParseJSON(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}

	account, err := h.accountSvc.Create(r.Context(), service.CreateAccountRequest{
		UserID:         userID(r),
		Name:           req.Name,
		InitialBalance: req.InitialBalance,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, buildAccountResponse(account))
}

// List handles GET /accounts.
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accountSvc.List(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := accountListResponse{Accounts: make([]accountResponse, len(accounts))}
	for i, a := range accounts {
		resp.Accounts[i] = buildAccountResponse(a)
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Get handles GET /accounts/{account_id}.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	account, err := h.accountSvc.Get(r.Context(), userID(r), chi.URLParam(r, "account_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildAccountResponse(account))
}

// Delete handles DELETE /accounts/{account_id}.
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.accountSvc.Delete(r.Context(), userID(r), chi.URLParam(r, "account_id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetDefault handles POST /accounts/{account_id}/default.
func (h *AccountHandler) SetDefault(w http.ResponseWriter, r *http.Request) {
	account, err := h.accountSvc.SetDefault(r.Context(), userID(r), chi.URLParam(r, "account_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildAccountResponse(account))
}

// Reset handles POST /accounts/{account_id}/reset.
func (h *AccountHandler) Reset(w http.ResponseWriter, r *http.Request) {
	account, err := h.accountSvc.Reset(r.Context(), userID(r), chi.URLParam(r, "account_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildAccountResponse(account))
}

// ResetAll handles POST /accounts/reset. Individual failures are reported
// per account and do not fail the request.
func (h *AccountHandler) ResetAll(w http.ResponseWriter, r *http.Request) {
	results, err := h.accountSvc.ResetAll(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := resetAllResponse{Results: make([]resetResultResponse, len(results))}
	for i, res := range results {
		entry := resetResultResponse{AccountID: res.AccountID, Name: res.Name}
		if res.Err != nil {
			entry.Error = res.Err.Error()
			resp.Failed++
		} else {
			a := buildAccountResponse(res.Account)
			entry.Account = &a
			entry.Success = true
			resp.Reset++
		}
		resp.Results[i] = entry
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Portfolio handles GET /accounts/{account_id}/portfolio.
func (h *AccountHandler) Portfolio(w http.ResponseWriter, r *http.Request) {
	p, err := h.accountSvc.Portfolio(r.Context(), userID(r), chi.URLParam(r, "account_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := portfolioResponse{
		AccountID:       p.Account.AccountID,
		Name:            p.Account.Name,
		CashBalance:     p.Account.CashBalance,
		AvailableCash:   p.AvailableCash,
		PositionsValue:  p.PositionsValue,
		TotalValue:      p.TotalValue,
		InitialBalance:  p.Account.InitialBalance,
		TotalPnL:        p.TotalPnL,
		TotalPnLPercent: p.TotalPnLPercent,
		Positions:       make([]valuedPositionResponse, len(p.Positions)),
		ValuedAt:        formatTime(p.ValuedAt),
	}
	for i, pos := range p.Positions {
		v := valuedPositionResponse{
			Symbol:               pos.Symbol,
			Quantity:             pos.Quantity,
			ReservedQuantity:     pos.ReservedQuantity,
			AverageCost:          pos.AverageCost,
			CostBasis:            pos.CostBasis,
			MarketValue:          pos.MarketValue,
			UnrealizedPnL:        pos.UnrealizedPnL,
			UnrealizedPnLPercent: pos.UnrealizedPnLPercent,
			PriceAvailable:       pos.PriceAvailable,
		}
		if pos.PriceAvailable {
			price := pos.CurrentPrice
			v.CurrentPrice = &price
		}
		resp.Positions[i] = v
	}
	WriteJSON(w, http.StatusOK, resp)
}

// ListTrades handles GET /accounts/{account_id}/trades.
func (h *AccountHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	page, limit, err := parsePagination(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	trades, total, err := h.tradingSvc.ListTrades(r.Context(), userID(r), chi.URLParam(r, "account_id"), page, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := tradeListResponse{
		Trades:             make([]tradeResponse, len(trades)),
		paginationResponse: paginationResponse{Page: page, Limit: limit, Total: total},
	}
	for i, t := range trades {
		resp.Trades[i] = buildTradeResponse(t)
	}
	WriteJSON(w, http.StatusOK, resp)
}

// ListOrders handles GET /accounts/{account_id}/orders. The optional status
// query parameter filters by order status.
func (h *AccountHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	page, limit, err := parsePagination(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var status *domain.OrderStatus
	if v := r.URL.Query().Get("status"); v != "" {
		s := domain.OrderStatus(v)
		if !domain.ValidOrderStatus(s) {
			WriteError(w, http.StatusBadRequest, "validation_error",
				"status must be one of open, filled, cancelled, expired, rejected")
			return
		}
		status = &s
	}

	orders, total, err := h.tradingSvc.ListOrders(r.Context(), userID(r), chi.URLParam(r, "account_id"), status, page, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := orderListResponse{
		Orders:             make([]orderResponse, len(orders)),
		paginationResponse: paginationResponse{Page: page, Limit: limit, Total: total},
	}
	for i, o := range orders {
		resp.Orders[i] = buildOrderResponse(o)
	}
	WriteJSON(w, http.StatusOK, resp)
}

// buildAccountResponse converts a domain account, listing positions in
// symbol order.
func buildAccountResponse(a *domain.Account) accountResponse {
	resp := accountResponse{
		AccountID:      a.AccountID,
		Name:           a.Name,
		InitialBalance: a.InitialBalance,
		CashBalance:    a.CashBalance,
		ReservedCash:   a.ReservedCash,
		AvailableCash:  a.AvailableCash(),
		IsDefault:      a.IsDefault,
		Positions:      []positionResponse{},
		CreatedAt:      formatTime(a.CreatedAt),
		UpdatedAt:      formatTime(a.UpdatedAt),
	}
	for _, symbol := range a.Symbols() {
		p := a.Positions[symbol]
		resp.Positions = append(resp.Positions, positionResponse{
			Symbol:           p.Symbol,
			Quantity:         p.Quantity,
			ReservedQuantity: p.ReservedQuantity,
			AverageCost:      p.AverageCost,
		})
	}
	return resp
}
