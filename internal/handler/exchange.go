package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/papertrader/internal/exchange"
)

// ExchangeConnector submits orders to live exchanges.
type ExchangeConnector interface {
	List() []exchange.Info
	SubmitOrder(ctx context.Context, name string, req exchange.OrderRequest) (*exchange.Ack, error)
}

// ExchangeHandler handles HTTP requests for live exchange endpoints.
type ExchangeHandler struct {
	connector ExchangeConnector
	logger    *slog.Logger
}

// NewExchangeHandler creates a new ExchangeHandler. A nil connector serves
// an empty exchange list.
func NewExchangeHandler(connector ExchangeConnector, logger *slog.Logger) *ExchangeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExchangeHandler{connector: connector, logger: logger.With("component", "exchange_handler")}
}

type exchangeListResponse struct {
	Exchanges []exchange.Info `json:"exchanges"`
}

// List handles GET /exchanges.
func (h *ExchangeHandler) List(w http.ResponseWriter, r *http.Request) {
	resp := exchangeListResponse{Exchanges: []exchange.Info{}}
	if h.connector != nil {
		resp.Exchanges = append(resp.Exchanges, h.connector.List()...)
	}
	WriteJSON(w, http.StatusOK, resp)
}

// SubmitOrder handles POST /exchanges/{exchange}/orders.
func (h *ExchangeHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "exchange")
	if h.connector == nil {
		WriteError(w, http.StatusNotFound, "unknown_exchange", "Exchange not found")
		return
	}

	var req exchange.OrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ack, err := h.connector.SubmitOrder(r.Context(), name, req)
	if err != nil {
		h.logger.Warn("live order rejected", "exchange", name, "user_id", userID(r), "error", err)
		writeServiceError(w, err)
		return
	}

	h.logger.Info("live order submitted", "exchange", name, "user_id", userID(r), "client_order_id", ack.ClientOrderID)
	WriteJSON(w, http.StatusCreated, ack)
}
