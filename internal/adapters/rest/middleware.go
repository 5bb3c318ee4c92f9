package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	userIDHeader   = "X-User-ID"
	userRoleHeader = "X-User-Role"
	roleAdmin      = "admin"

	userIDKey = "user_id"
)

// RequestLogger logs incoming requests with timing
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next() // process request

		event := logger.Info()
		if c.Writer.Status() >= 500 {
			event = logger.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}

// RequireUser resolves the caller from the X-User-ID header
func RequireUser(c *gin.Context) {
	raw := c.GetHeader(userIDHeader)
	if raw == "" {
		JSONError(c, http.StatusUnauthorized, errUserRequired, "unauthorized")
		c.Abort()
		return
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		JSONError(c, http.StatusUnauthorized, errInvalidUser, "unauthorized")
		c.Abort()
		return
	}
	c.Set(userIDKey, id)
	c.Next()
}

func currentUser(c *gin.Context) uuid.UUID {
	return c.MustGet(userIDKey).(uuid.UUID)
}

// actor is the caller for administrative operations. Admins act as the
// system, which is uuid.Nil.
func actor(c *gin.Context) uuid.UUID {
	if c.GetHeader(userRoleHeader) == roleAdmin {
		return uuid.Nil
	}
	return currentUser(c)
}
