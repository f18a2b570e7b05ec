package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/service"
)

// WebhookHandler serves the caller's webhook subscriptions.
type WebhookHandler struct {
	webhookSvc *service.WebhookService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(webhookSvc *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookSvc: webhookSvc}
}

type upsertWebhookRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

// subscriptionResponse is one (event, url) subscription.
type subscriptionResponse struct {
	WebhookID string `json:"webhook_id"`
	Event     string `json:"event"`
	URL       string `json:"url"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type subscriptionListResponse struct {
	Webhooks []subscriptionResponse `json:"webhooks"`
}

type eventCatalogResponse struct {
	Events []string `json:"events"`
}

// Events handles GET /webhooks/events.
func (h *WebhookHandler) Events(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, eventCatalogResponse{Events: domain.WebhookEvents})
}

// Upsert handles POST /webhooks. One subscription is stored per requested
// event; the status is 201 if at least one of them is new.
func (h *WebhookHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertWebhookRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	subs, created, err := h.webhookSvc.Upsert(r.Context(), service.UpsertWebhookRequest{
		UserID: userID(r),
		URL:    req.URL,
		Events: req.Events,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	WriteJSON(w, status, toSubscriptionList(subs, ""))
}

// List handles GET /webhooks. ?event= narrows the list to one event type.
func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	event := r.URL.Query().Get("event")
	if event != "" && !domain.ValidWebhookEvent(event) {
		WriteError(w, http.StatusBadRequest, "validation_error", "unknown event "+event)
		return
	}

	subs, err := h.webhookSvc.List(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toSubscriptionList(subs, event))
}

// Delete handles DELETE /webhooks/{webhook_id}.
func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.webhookSvc.Delete(r.Context(), userID(r), chi.URLParam(r, "webhook_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toSubscriptionList(subs []*domain.Webhook, event string) subscriptionListResponse {
	out := subscriptionListResponse{Webhooks: make([]subscriptionResponse, 0, len(subs))}
	for _, s := range subs {
		if event != "" && s.Event != event {
			continue
		}
		out.Webhooks = append(out.Webhooks, subscriptionResponse{
			WebhookID: s.WebhookID,
			Event:     s.Event,
			URL:       s.URL,
			CreatedAt: formatTime(s.CreatedAt),
			UpdatedAt: formatTime(s.UpdatedAt),
		})
	}
	return out
}
