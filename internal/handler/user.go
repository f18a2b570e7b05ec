package handler

import (
	"context"
	"net/http"
	"regexp"
	"strings"
)

// UserHeader carries the caller's identity. Authentication happens upstream
// of this service.
const UserHeader = "X-User-ID"

var userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.@:-]{1,128}$`)

type userKey struct{}

// requireUser rejects requests without a valid X-User-ID header. Browsers
// cannot set headers on WebSocket handshakes, so /ws routes also accept a
// user_id query parameter.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(UserHeader)
		if userID == "" && r.URL.Query().Get("user_id") != "" && isWebSocketUpgrade(r) {
			userID = r.URL.Query().Get("user_id")
		}
		if userID == "" {
			WriteError(w, http.StatusUnauthorized, "unauthorized", "X-User-ID header is required")
			return
		}
		if !userIDRegex.MatchString(userID) {
			WriteError(w, http.StatusUnauthorized, "unauthorized", "X-User-ID header is malformed")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, userID)))
	})
}

// userID returns the caller set by requireUser.
func userID(r *http.Request) string {
	id, _ := r.Context().Value(userKey{}).(string)
	return id
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
