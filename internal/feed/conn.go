// Package feed serves the realtime WebSocket streams: simulated market
// ticks and user notifications.
package feed

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Config holds socket timing settings shared by both streams.
type Config struct {
	// TickInterval is how often each subscribed symbol gets a tick.
	TickInterval time.Duration
	// PingInterval is how often the server pings the client.
	PingInterval time.Duration
	// PongWait is how long the server waits for a pong before dropping the
	// connection. Must exceed PingInterval.
	PongWait time.Duration
	// WriteTimeout bounds each write.
	WriteTimeout time.Duration
	// MaxSymbols caps the subscriptions of one market connection.
	MaxSymbols int
}

// DefaultConfig returns the default socket settings.
func DefaultConfig() Config {
	return Config{
		TickInterval: time.Second,
		PingInterval: 30 * time.Second,
		PongWait:     60 * time.Second,
		WriteTimeout: 5 * time.Second,
		MaxSymbols:   50,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.PongWait <= c.PingInterval {
		c.PongWait = 2 * c.PingInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.MaxSymbols <= 0 {
		c.MaxSymbols = d.MaxSymbols
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// conn wraps a server-side socket with serialized writes and the ping/pong
// keepalive.
type conn struct {
	ws      *websocket.Conn
	cfg     Config
	logger  *slog.Logger
	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

func newConn(ws *websocket.Conn, cfg Config, logger *slog.Logger) *conn {
	c := &conn{ws: ws, cfg: cfg, logger: logger, done: make(chan struct{})}
	ws.SetReadLimit(4096)
	_ = ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})
	return c
}

func (c *conn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.ws.WriteJSON(v)
}

func (c *conn) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(c.cfg.WriteTimeout))
}

// close sends a close frame once and tears the socket down.
func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		_ = c.ws.Close()
	})
}

// keepalive pings until the connection closes.
func (c *conn) keepalive() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				c.close()
				return
			}
		}
	}
}

func isUnexpectedClose(err error) bool {
	return websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
