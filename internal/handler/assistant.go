package handler

import (
	"net/http"

	"github.com/efreitasn/papertrader/internal/llm"
	"github.com/efreitasn/papertrader/internal/service"
)

// AssistantHandler handles HTTP requests for the AI assistant.
type AssistantHandler struct {
	assistantSvc *service.AssistantService
}

// NewAssistantHandler creates a new AssistantHandler.
func NewAssistantHandler(assistantSvc *service.AssistantService) *AssistantHandler {
	return &AssistantHandler{assistantSvc: assistantSvc}
}

type chatRequest struct {
	Provider  string        `json:"provider"`
	Model     string        `json:"model"`
	AccountID string        `json:"account_id"`
	Messages  []llm.Message `json:"messages"`
}

type chatResponse struct {
	Provider   string      `json:"provider"`
	Model      string      `json:"model"`
	Message    llm.Message `json:"message"`
	Configured bool        `json:"configured"`
	Usage      llm.Usage   `json:"usage"`
}

type providerListResponse struct {
	Providers []llm.ProviderInfo `json:"providers"`
}

// Chat handles POST /ai/chat.
func (h *AssistantHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := h.assistantSvc.Chat(r.Context(), service.ChatRequest{
		UserID:    userID(r),
		Provider:  req.Provider,
		Model:     req.Model,
		AccountID: req.AccountID,
		Messages:  req.Messages,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, chatResponse{
		Provider:   res.Provider,
		Model:      res.Model,
		Message:    res.Message,
		Configured: res.Configured,
		Usage:      res.Usage,
	})
}

// Providers handles GET /ai/providers.
func (h *AssistantHandler) Providers(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, providerListResponse{Providers: h.assistantSvc.Providers()})
}
