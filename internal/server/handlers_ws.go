package server

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	apperrors "github.com/encorelive/encore/internal/errors"
	"github.com/encorelive/encore/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Browser clients connect from the web frontend's origin; the trusted
		// gateway enforces origin policy.
		return true
	},
}

// handleWebSocket subscribes the caller to a show's live vote updates. The
// connection is write-mostly: the client receives vote update payloads and
// only ever sends pongs.
func (s *Server) handleWebSocket(c echo.Context) error {
	showID, err := uuid.Parse(c.Param("show_id"))
	if err != nil {
		return apperrors.ValidationError("invalid show id")
	}

	exists, err := s.shows.ShowExists(c.Request().Context(), showID)
	if err != nil {
		return mapDomainError(err)
	}
	if !exists {
		return apperrors.NotFoundError("show not found")
	}

	ip := c.RealIP()
	ok, reason := s.wsLimits.Acquire(ip)
	if !ok {
		metrics.WebSocketConnectionsRejected.WithLabelValues(string(reason)).Inc()
		if reason == LimitReasonRate {
			return apperrors.RateLimitedError("too many connection attempts")
		}
		return apperrors.UnavailableError("connection capacity reached", nil)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.wsLimits.Release(ip)
		return apperrors.InternalError("websocket upgrade failed", err)
	}

	if err := s.broadcaster.Register(showID, conn); err != nil {
		s.wsLimits.Release(ip)
		_ = conn.Close()
		return nil // close frame already handled by the broadcaster
	}

	// Read loop: discards client messages, surfaces disconnects, and lets the
	// pong handler refresh the read deadline.
	go func() {
		defer func() {
			s.broadcaster.Unregister(showID, conn)
			s.wsLimits.Release(ip)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	return nil
}
