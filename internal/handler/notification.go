package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/feed"
	"github.com/efreitasn/papertrader/internal/service"
)

// NotificationHandler handles HTTP requests for notifications and the
// per-user notification stream.
type NotificationHandler struct {
	notificationSvc *service.NotificationService
	stream          *feed.NotificationFeed
}

// NewNotificationHandler creates a new NotificationHandler. A nil stream
// disables /ws/notifications.
func NewNotificationHandler(notificationSvc *service.NotificationService, stream *feed.NotificationFeed) *NotificationHandler {
	return &NotificationHandler{notificationSvc: notificationSvc, stream: stream}
}

type notificationResponse struct {
	ID        string  `json:"id"`
	AccountID *string `json:"account_id"`
	Type      string  `json:"type"`
	Title     string  `json:"title"`
	Message   string  `json:"message"`
	Read      bool    `json:"read"`
	CreatedAt string  `json:"created_at"`
	ReadAt    *string `json:"read_at"`
}

type notificationListResponse struct {
	Notifications []notificationResponse `json:"notifications"`
}

type markAllReadResponse struct {
	Updated int `json:"updated"`
}

// List handles GET /notifications?unread=true&limit=N.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	unreadOnly := false
	if v := q.Get("unread"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "unread must be a boolean")
			return
		}
		unreadOnly = b
	}

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "limit must be an integer")
			return
		}
		limit = n
	}

	items, err := h.notificationSvc.List(r.Context(), userID(r), unreadOnly, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := notificationListResponse{Notifications: make([]notificationResponse, len(items))}
	for i, n := range items {
		resp.Notifications[i] = buildNotificationResponse(n)
	}
	WriteJSON(w, http.StatusOK, resp)
}

// MarkRead handles POST /notifications/{notification_id}/read.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.notificationSvc.MarkRead(r.Context(), userID(r), chi.URLParam(r, "notification_id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead handles POST /notifications/read-all.
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.notificationSvc.MarkAllRead(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, markAllReadResponse{Updated: n})
}

// Delete handles DELETE /notifications/{notification_id}.
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.notificationSvc.Delete(r.Context(), userID(r), chi.URLParam(r, "notification_id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stream handles GET /ws/notifications.
func (h *NotificationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if h.stream == nil {
		WriteError(w, http.StatusNotFound, "not_found", "Notification stream is disabled")
		return
	}
	h.stream.Serve(w, r, userID(r))
}

func buildNotificationResponse(n *domain.Notification) notificationResponse {
	resp := notificationResponse{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Read:      n.Read,
		CreatedAt: formatTime(n.CreatedAt),
		ReadAt:    formatTimePtr(n.ReadAt),
	}
	if n.AccountID != "" {
		id := n.AccountID
		resp.AccountID = &id
	}
	return resp
}
