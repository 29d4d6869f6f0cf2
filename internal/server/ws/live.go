// Package ws serves the per-order live update WebSocket endpoint.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dexpipe/dexpipe/internal/live"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message. Clients
	// only ever send control frames, so this stays small.
	maxMessageSize = 512
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins. In production, restrict this to known origins.
		return true
	},
}

// LiveHandler upgrades connections on /ws/orders/{id} and relays that
// order's status events until the client disconnects. Each connection owns
// exactly one router handle and always detaches it on teardown.
type LiveHandler struct {
	router *live.Router
	logger *slog.Logger
}

// NewLiveHandler creates a LiveHandler over the given router.
func NewLiveHandler(router *live.Router, logger *slog.Logger) *LiveHandler {
	return &LiveHandler{
		router: router,
		logger: logger.With(slog.String("component", "ws")),
	}
}

// HandleOrder upgrades the request and starts the read/write pumps.
// GET /ws/orders/{id}
func (lh *LiveHandler) HandleOrder(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")
	if orderID == "" {
		http.Error(w, "missing order id", http.StatusBadRequest)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		lh.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &conn{
		ws:     wsConn,
		handle: lh.router.Attach(orderID),
		router: lh.router,
		logger: lh.logger,
	}

	lh.logger.Info("client connected", slog.String("order_id", orderID))

	go c.writePump()
	c.readPump()
}

// conn is a single live-update WebSocket connection.
type conn struct {
	ws     *websocket.Conn
	handle *live.Handle
	router *live.Router
	logger *slog.Logger
}

// readPump consumes (and discards) client frames so close and pong control
// messages are processed. When it returns, the connection is torn down and
// the handle detached; detaching is idempotent, so racing with writePump's
// teardown is harmless.
func (c *conn) readPump() {
	defer func() {
		c.router.Detach(c.handle)
		c.ws.Close()
		c.logger.Info("client disconnected", slog.String("order_id", c.handle.OrderID()))
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("unexpected close",
					slog.String("order_id", c.handle.OrderID()),
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}

// writePump relays the handle's events as JSON text frames and keeps the
// connection alive with periodic pings.
func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.router.Detach(c.handle)
		c.ws.Close()
	}()

	for {
		select {
		case ev, ok := <-c.handle.Events():
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Handle detached or router shut down.
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(ev)
			if err != nil {
				c.logger.Error("marshal status event",
					slog.String("order_id", c.handle.OrderID()),
					slog.String("error", err.Error()),
				)
				continue
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
