package handler

import (
	"net/http"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/service"
)

// SettingsHandler handles HTTP requests for user settings.
type SettingsHandler struct {
	settingsSvc *service.SettingsService
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(settingsSvc *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settingsSvc: settingsSvc}
}

// updateSettingsRequest is the JSON body for PUT /settings. Omitted fields
// keep their current value.
type updateSettingsRequest struct {
	DefaultAccountID       *string   `json:"default_account_id"`
	AIProvider             *string   `json:"ai_provider"`
	AIModel                *string   `json:"ai_model"`
	RefreshIntervalSeconds *int      `json:"refresh_interval_seconds"`
	NotificationsEnabled   *bool     `json:"notifications_enabled"`
	Watchlist              *[]string `json:"watchlist"`
}

type settingsResponse struct {
	DefaultAccountID       *string  `json:"default_account_id"`
	AIProvider             string   `json:"ai_provider"`
	AIModel                *string  `json:"ai_model"`
	RefreshIntervalSeconds int      `json:"refresh_interval_seconds"`
	NotificationsEnabled   bool     `json:"notifications_enabled"`
	Watchlist              []string `json:"watchlist"`
	UpdatedAt              *string  `json:"updated_at"`
}

// Get handles GET /settings.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	st, err := h.settingsSvc.Get(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildSettingsResponse(st))
}

// Update handles PUT /settings.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	st, err := h.settingsSvc.Update(r.Context(), service.UpdateSettingsRequest{
		UserID:                 userID(r),
		DefaultAccountID:       req.DefaultAccountID,
		AIProvider:             req.AIProvider,
		AIModel:                req.AIModel,
		RefreshIntervalSeconds: req.RefreshIntervalSeconds,
		NotificationsEnabled:   req.NotificationsEnabled,
		Watchlist:              req.Watchlist,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildSettingsResponse(st))
}

func buildSettingsResponse(st *domain.Settings) settingsResponse {
	resp := settingsResponse{
		AIProvider:             st.AIProvider,
		RefreshIntervalSeconds: st.RefreshIntervalSeconds,
		NotificationsEnabled:   st.NotificationsEnabled,
		Watchlist:              st.Watchlist,
	}
	if resp.Watchlist == nil {
		resp.Watchlist = []string{}
	}
	if st.DefaultAccountID != "" {
		id := st.DefaultAccountID
		resp.DefaultAccountID = &id
	}
	if st.AIModel != "" {
		m := st.AIModel
		resp.AIModel = &m
	}
	if !st.UpdatedAt.IsZero() {
		s := formatTime(st.UpdatedAt)
		resp.UpdatedAt = &s
	}
	return resp
}
