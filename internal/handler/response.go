package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/service"
)

// WriteJSON writes a JSON response with the given status code and data.
// Sets Content-Type to application/json before writing the status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) // Write error intentionally ignored in response helper
}

// errorResponse is the standard error response format.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a standard error response with the given status code,
// error code, and human-readable message.
func WriteError(w http.ResponseWriter, status int, errorCode, message string) {
	WriteJSON(w, status, errorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// ParseJSON decodes the request body as JSON into v.
// It validates that the Content-Type header is application/json and
// returns an error for missing/incorrect content type or malformed JSON.
func ParseJSON(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}

	return nil
}

const timeFormat = "2006-01-02T15:04:05Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

// parsePagination reads page and limit query parameters.
func parsePagination(r *http.Request) (page, limit int, err error) {
	page, limit = 1, service.DefaultPageLimit
	if v := r.URL.Query().Get("page"); v != "" {
		page, err = strconv.Atoi(v)
		if err != nil {
			return 0, 0, &domain.ValidationError{Message: "page must be an integer"}
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil {
			return 0, 0, &domain.ValidationError{Message: "limit must be an integer"}
		}
	}
	return page, limit, nil
}

// paginationResponse is embedded in paginated list responses.
type paginationResponse struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// writeServiceError maps domain errors to HTTP responses. Sentinel error
// messages double as the error code.
func writeServiceError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}

	switch {
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrSymbolNotFound),
		errors.Is(err, domain.ErrQuoteNotFound),
		errors.Is(err, domain.ErrNotificationNotFound),
		errors.Is(err, domain.ErrWebhookNotFound),
		errors.Is(err, domain.ErrUnknownExchange):
		WriteError(w, http.StatusNotFound, sentinelCode(err), messageFor(err))
	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInsufficientHoldings),
		errors.Is(err, domain.ErrOrderNotCancellable),
		errors.Is(err, domain.ErrAccountLimitReached),
		errors.Is(err, domain.ErrNoMarketPrice),
		errors.Is(err, domain.ErrExchangeNotConfigured):
		WriteError(w, http.StatusConflict, sentinelCode(err), messageFor(err))
	case errors.Is(err, domain.ErrUnknownProvider):
		WriteError(w, http.StatusBadRequest, sentinelCode(err), messageFor(err))
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		WriteError(w, http.StatusBadGateway, "upstream_unavailable", "An upstream service is unavailable, try again later")
	default:
		slog.Error("unhandled error", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

var sentinels = []error{
	domain.ErrAccountNotFound,
	domain.ErrAccountLimitReached,
	domain.ErrOrderNotFound,
	domain.ErrOrderNotCancellable,
	domain.ErrInsufficientBalance,
	domain.ErrInsufficientHoldings,
	domain.ErrNoMarketPrice,
	domain.ErrSymbolNotFound,
	domain.ErrQuoteNotFound,
	domain.ErrNotificationNotFound,
	domain.ErrWebhookNotFound,
	domain.ErrUnknownProvider,
	domain.ErrUnknownExchange,
	domain.ErrExchangeNotConfigured,
}

func sentinelCode(err error) string {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal_error"
}

var sentinelMessages = map[error]string{
	domain.ErrAccountNotFound:       "Account not found",
	domain.ErrAccountLimitReached:   "Maximum number of accounts reached",
	domain.ErrOrderNotFound:         "Order not found",
	domain.ErrOrderNotCancellable:   "Only open orders can be cancelled",
	domain.ErrInsufficientBalance:   "Insufficient available balance",
	domain.ErrInsufficientHoldings:  "Insufficient available holdings",
	domain.ErrNoMarketPrice:         "No market price available for symbol",
	domain.ErrSymbolNotFound:        "Symbol not found",
	domain.ErrQuoteNotFound:         "No quote cached for symbol",
	domain.ErrNotificationNotFound:  "Notification not found",
	domain.ErrWebhookNotFound:       "Webhook not found",
	domain.ErrUnknownProvider:       "Unknown AI provider",
	domain.ErrUnknownExchange:       "Exchange not found",
	domain.ErrExchangeNotConfigured: "Exchange credentials are not configured",
}

func messageFor(err error) string {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return sentinelMessages[s]
		}
	}
	return err.Error()
}
