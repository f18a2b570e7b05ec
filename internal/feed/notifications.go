package feed

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/efreitasn/papertrader/internal/domain"
)

// Subscriber opens a user's notification channel.
type Subscriber interface {
	Subscribe(ctx context.Context, userID string) (<-chan *domain.Notification, func(), error)
}

// NotificationMessage wraps a notification pushed to the client.
type NotificationMessage struct {
	Type         string               `json:"type"`
	Notification *domain.Notification `json:"notification"`
}

// NotificationFeed pushes a user's notifications over a socket.
type NotificationFeed struct {
	cfg    Config
	subs   Subscriber
	logger *slog.Logger
}

// NewNotificationFeed creates a notification stream.
func NewNotificationFeed(cfg Config, subs Subscriber, logger *slog.Logger) *NotificationFeed {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationFeed{cfg: cfg, subs: subs, logger: logger.With("component", "notification-feed")}
}

// Serve subscribes before upgrading so a broker failure is reported as a
// plain HTTP error, then relays notifications until either side closes.
func (f *NotificationFeed) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	ctx, cancelCtx := context.WithCancel(r.Context())
	defer cancelCtx()

	ch, cancel, err := f.subs.Subscribe(ctx, userID)
	if err != nil {
		f.logger.Error("subscribe failed", "user_id", userID, "error", err)
		http.Error(w, "notifications unavailable", http.StatusServiceUnavailable)
		return
	}
	defer cancel()

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Debug("upgrade failed", "error", err)
		return
	}
	c := newConn(ws, f.cfg, f.logger)
	defer c.close()
	go c.keepalive()

	// Drain client frames so pongs and close frames are processed.
	go func() {
		defer cancelCtx()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			if err := c.writeJSON(NotificationMessage{Type: "notification", Notification: n}); err != nil {
				f.logger.Debug("write failed", "user_id", userID, "error", err)
				return
			}
		}
	}
}
