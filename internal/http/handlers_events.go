package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/compudrive/drivebench/internal/notify"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// EventHandlers streams notification events to WebSocket clients.
type EventHandlers struct {
	Hub    *notify.Hub
	Logger *slog.Logger

	upgrader websocket.Upgrader
}

// NewEventHandlers builds the WebSocket event handler.
func NewEventHandlers(hub *notify.Hub, logger *slog.Logger) *EventHandlers {
	if logger == nil {
		logger = slog.Default().With("component", "ws_events")
	}
	return &EventHandlers{
		Hub:    hub,
		Logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The bench UI is served from the same host; other consumers
			// are trusted tools on the bench network.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Stream handles GET /api/events. Each connection gets its own hub
// subscription; slow consumers lose oldest events rather than blocking the
// emitters.
func (h *EventHandlers) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.Logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			h.Logger.DebugContext(r.Context(), "closing websocket failed", "error", cerr)
		}
	}()

	unsubscribe, events := h.Hub.Subscribe()
	defer unsubscribe()

	// Reader goroutine: clients never send payloads, but reading is how we
	// notice the peer going away and how control frames get processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, rerr := conn.ReadMessage(); rerr != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return
		case <-ping.C:
			deadline := time.Now().Add(wsWriteTimeout)
			if werr := conn.WriteControl(websocket.PingMessage, nil, deadline); werr != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if werr := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); werr != nil {
				return
			}
			if werr := conn.WriteJSON(ev); werr != nil {
				h.Logger.DebugContext(r.Context(), "websocket write failed", "error", werr)
				return
			}
		}
	}
}
