package handler

import (
	"net/http"
	"strings"

	"github.com/efreitasn/papertrader/internal/sentiment"
	"github.com/efreitasn/papertrader/internal/service"
)

// SentimentHandler serves simulated social sentiment.
type SentimentHandler struct {
	sentimentSvc *service.SentimentService
}

// NewSentimentHandler creates a new SentimentHandler.
func NewSentimentHandler(sentimentSvc *service.SentimentService) *SentimentHandler {
	return &SentimentHandler{sentimentSvc: sentimentSvc}
}

type sentimentResponse struct {
	Records []sentiment.Record `json:"records"`
}

// Get handles GET /sentiment?symbols=BTC,ETH. Without symbols the caller's
// watchlist is used.
func (h *SentimentHandler) Get(w http.ResponseWriter, r *http.Request) {
	var symbols []string
	if v := r.URL.Query().Get("symbols"); v != "" {
		symbols = strings.Split(v, ",")
	}

	records, err := h.sentimentSvc.Snapshot(r.Context(), userID(r), symbols)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, sentimentResponse{Records: records})
}
