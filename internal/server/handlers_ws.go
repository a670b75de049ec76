package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/NAinfini/guildhall/internal/metrics"
	"github.com/NAinfini/guildhall/internal/push"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Portal pages are served from multiple origins
	},
}

// clientControlMessage is the inbound WebSocket control protocol. Only
// "subscribe" mutates state; everything else is echoed back for diagnostics.
type clientControlMessage struct {
	Type     string   `json:"type"`
	Entities []string `json:"entities"`
}

func (s *Server) handleWebSocket(c echo.Context) error {
	ip := c.RealIP()
	if ok, reason := s.limits.Acquire(ip); !ok {
		return rejectConnection(c, reason)
	}
	defer s.limits.Release(ip)

	identity := c.QueryParam("user")
	if identity == "" {
		identity = "anon-" + uuid.NewString()[:8]
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade WebSocket: %w", err)
	}

	transport := push.NewWSTransport(conn, s.clock)
	sess, err := s.coordinator.Connect(c.Request().Context(), identity, transport)
	if err != nil {
		slog.Error("Failed to register WebSocket session", "identity", identity, "error", err)
		return nil // transport already closed by the coordinator
	}

	metrics.WebSocketConnectionsTotal.Inc()
	metrics.WebSocketConnectionsCurrent.Inc()
	defer metrics.WebSocketConnectionsCurrent.Dec()

	// Read pump — blocks until the connection closes.
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		s.handleClientMessage(sess, transport, msg)
	}

	s.coordinator.Disconnect(sess.ID)
	return nil
}

// handleClientMessage processes one inbound control message. Malformed
// messages are dropped and logged, never fatal to the connection.
func (s *Server) handleClientMessage(sess push.Session, transport push.Transport, msg []byte) {
	var ctrl clientControlMessage
	if err := json.Unmarshal(msg, &ctrl); err != nil {
		slog.Debug("Dropping malformed client message", "session_id", sess.ID, "error", err)
		return
	}

	switch ctrl.Type {
	case "subscribe":
		s.coordinator.Subscribe(sess.ID, ctrl.Entities)
	default:
		frame, err := push.NewEchoFrame(msg)
		if err != nil {
			slog.Debug("Dropping unechoable client message", "session_id", sess.ID, "error", err)
			return
		}
		// Best effort; a dead transport is reclaimed by the coordinator.
		_ = transport.Send(frame)
	}
}

func rejectConnection(c echo.Context, reason LimitReason) error {
	metrics.ConnectionsRejectedTotal.WithLabelValues(string(reason)).Inc()
	status := http.StatusServiceUnavailable
	if reason == LimitReasonRate {
		status = http.StatusTooManyRequests
	}
	return c.JSON(status, map[string]string{"error": "connection limit reached", "reason": string(reason)})
}
