package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/efreitasn/papertrader/internal/feed"
	"github.com/efreitasn/papertrader/internal/service"
)

// Services bundles everything the router serves.
type Services struct {
	Accounts      *service.AccountService
	Trading       *service.TradingService
	Market        *service.MarketService
	Settings      *service.SettingsService
	Notifications *service.NotificationService
	Webhooks      *service.WebhookService
	Assistant     *service.AssistantService
	Sentiment     *service.SentimentService
	Exchanges     ExchangeConnector
	MarketFeed    http.Handler
	Notifier      *feed.NotificationFeed
}

// NewRouter creates a chi router with all routes registered, request logging,
// and Content-Type validation middleware. Every route except /healthz and
// /ws/market requires the X-User-ID header.
func NewRouter(svc Services, logger *slog.Logger) chi.Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	// Global middleware.
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogging(logger))
	r.Use(contentTypeJSON)

	accountH := NewAccountHandler(svc.Accounts, svc.Trading)
	tradeH := NewTradeHandler(svc.Trading)
	marketH := NewMarketHandler(svc.Market)
	settingsH := NewSettingsHandler(svc.Settings)
	notificationH := NewNotificationHandler(svc.Notifications, svc.Notifier)
	webhookH := NewWebhookHandler(svc.Webhooks)
	assistantH := NewAssistantHandler(svc.Assistant)
	exchangeH := NewExchangeHandler(svc.Exchanges, logger)
	sentimentH := NewSentimentHandler(svc.Sentiment)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// The market stream carries public prices only.
	if svc.MarketFeed != nil {
		r.Get("/ws/market", svc.MarketFeed.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(requireUser)

		// Account routes.
		r.Post("/accounts", accountH.Create)
		r.Get("/accounts", accountH.List)
		r.Post("/accounts/reset", accountH.ResetAll)
		r.Get("/accounts/{account_id}", accountH.Get)
		r.Delete("/accounts/{account_id}", accountH.Delete)
		r.Post("/accounts/{account_id}/default", accountH.SetDefault)
		r.Post("/accounts/{account_id}/reset", accountH.Reset)
		r.Get("/accounts/{account_id}/portfolio", accountH.Portfolio)
		r.Get("/accounts/{account_id}/trades", accountH.ListTrades)
		r.Get("/accounts/{account_id}/orders", accountH.ListOrders)

		// Trading routes.
		r.Post("/trades", tradeH.ExecuteTrade)
		r.Get("/orders/{order_id}", tradeH.GetOrder)
		r.Delete("/orders/{order_id}", tradeH.CancelOrder)

		// Market routes.
		r.Get("/market", marketH.List)
		r.Post("/market/refresh", marketH.Refresh)
		r.Post("/market/symbols", marketH.RegisterSymbol)
		r.Get("/market/{symbol}", marketH.Get)
		r.Get("/market/{symbol}/book", marketH.GetBook)

		// Settings routes.
		r.Get("/settings", settingsH.Get)
		r.Put("/settings", settingsH.Update)

		// Notification routes.
		r.Get("/notifications", notificationH.List)
		r.Post("/notifications/read-all", notificationH.MarkAllRead)
		r.Post("/notifications/{notification_id}/read", notificationH.MarkRead)
		r.Delete("/notifications/{notification_id}", notificationH.Delete)
		r.Get("/ws/notifications", notificationH.Stream)

		// Webhook routes.
		r.Post("/webhooks", webhookH.Upsert)
		r.Get("/webhooks", webhookH.List)
		r.Get("/webhooks/events", webhookH.Events)
		r.Delete("/webhooks/{webhook_id}", webhookH.Delete)

		// Assistant routes.
		r.Post("/ai/chat", assistantH.Chat)
		r.Get("/ai/providers", assistantH.Providers)

		// Live exchange routes.
		r.Get("/exchanges", exchangeH.List)
		r.Post("/exchanges/{exchange}/orders", exchangeH.SubmitOrder)

		r.Get("/sentiment", sentimentH.Get)
	})

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			// WrapResponseWriter keeps http.Hijacker so WebSocket upgrades
			// pass through.
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// contentTypeJSON is middleware that validates Content-Type for POST, PUT, and
// PATCH requests that carry a body. If the Content-Type header doesn't start
// with "application/json", it returns 400 Bad Request before the handler runs.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) && r.ContentLength != 0 {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
