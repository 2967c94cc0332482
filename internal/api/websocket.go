package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"moneychanger/internal/engine"
)

// WebSocketHub upgrades incoming connections and relays every event off
// an engine.Hub subscription to the client as JSON, one goroutine per
// connection, until a write to the client fails. Events that arrive while
// the subscription's buffer is full are dropped by the hub.
type WebSocketHub struct {
	hub      *engine.Hub
	upgrader websocket.Upgrader
	log      *logrus.Entry
}

func NewWebSocketHub(hub *engine.Hub, log *logrus.Logger) *WebSocketHub {
	return &WebSocketHub{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log.WithField("component", "websocket"),
	}
}

func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, unsubscribe := h.hub.Subscribe(32)
	defer unsubscribe()

	// Drain and discard inbound frames so control frames (pong, close) are
	// processed; this stream is broadcast-only.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
