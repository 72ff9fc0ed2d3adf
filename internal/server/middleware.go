package server

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	apperrors "github.com/encorelive/encore/internal/errors"
)

// userIDHeader carries the authenticated caller's ID, set by the API gateway
// in front of this service. Authentication itself is out of scope here; the
// header is trusted.
const userIDHeader = "X-User-ID"

const userIDKey = "userID"

// requireUser extracts the caller's user ID and stores it in the context.
func (s *Server) requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := c.Request().Header.Get(userIDHeader)
		if raw == "" {
			return apperrors.UnauthorizedError("missing user identity")
		}

		userID, err := uuid.Parse(raw)
		if err != nil {
			return apperrors.UnauthorizedError("invalid user identity")
		}

		c.Set(userIDKey, userID)
		return next(c)
	}
}

// currentUser returns the user ID stored by requireUser.
func currentUser(c echo.Context) uuid.UUID {
	userID, _ := c.Get(userIDKey).(uuid.UUID)
	return userID
}
