package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/ultrapreps/hypehub/internal/hub"
	"github.com/ultrapreps/hypehub/internal/metrics"
	"github.com/ultrapreps/hypehub/internal/platform/correlation"
)

const maxInboundFrameBytes = 8192

// identityFromRequest reads the handshake identity attributes. They are
// caller-supplied metadata; credential verification is owned by the
// auth service in front of this hub.
func identityFromRequest(c echo.Context) (hub.Identity, error) {
	identity := hub.Identity{
		UserID:   c.QueryParam("user_id"),
		UserName: c.QueryParam("user_name"),
		UserRole: c.QueryParam("user_role"),
		SchoolID: c.QueryParam("school_id"),
	}
	if identity.UserID == "" || identity.UserName == "" {
		return hub.Identity{}, errors.New("user_id and user_name are required")
	}
	return identity, nil
}

func (s *Server) handleWebSocket(c echo.Context) error {
	identity, err := identityFromRequest(c)
	if err != nil {
		metrics.ConnectionsRejectedTotal.WithLabelValues("bad_handshake").Inc()
		return c.String(http.StatusBadRequest, err.Error())
	}

	ip := c.RealIP()
	ok, reason := s.limits.Acquire(ip)
	if !ok {
		metrics.ConnectionsRejectedTotal.WithLabelValues(string(reason)).Inc()
		slog.Warn("Connection rejected by limiter", "reason", reason, "ip", ip)
		if reason == LimitReasonRate {
			return c.String(http.StatusTooManyRequests, "connection rate limit exceeded")
		}
		return c.String(http.StatusServiceUnavailable, "connection limit reached")
	}
	defer s.limits.Release(ip)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		slog.Debug("WebSocket upgrade failed", "error", err, "ip", ip)
		return nil
	}

	client, err := s.hub.Register(identity, conn)
	if err != nil {
		// Connection is already closed on a capacity rejection.
		slog.Warn("Registration failed", "user_id", identity.UserID, "error", err)
		return nil
	}

	ctx := correlation.WithID(c.Request().Context(), correlation.NewID())
	slog.InfoContext(ctx, "Client connected",
		"connection_id", client.ID.String(),
		"user_id", identity.UserID,
		"school_id", identity.SchoolID,
	)

	// Read pump. Blocks until the peer goes away or the hub closes the
	// connection during shutdown; transport failures only ever tear
	// down this one connection.
	conn.SetReadLimit(maxInboundFrameBytes)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		s.hub.HandleInbound(ctx, client, data)
	}

	s.hub.Unregister(client)
	slog.InfoContext(ctx, "Client disconnected", "connection_id", client.ID.String(), "user_id", identity.UserID)
	return nil
}

func (s *Server) handleHealth(c echo.Context) error {
	stats := s.hub.Stats()
	return c.JSON(http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": stats.Connections,
		"rooms":       stats.Rooms,
	})
}
