package mw

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"wardrobe-backend/internal/logger"
)

const RequestIDHeader = "X-Request-Id"

// RequestLogger tags each request with an id, echoes it back, and logs one
// line when the request completes.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(RequestIDHeader, reqID)

		ctx := log.WithRequestID(c.Request.Context(), reqID)
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := log.Zerolog(c.Request.Context()).Info()
		if status >= 500 {
			event = log.Zerolog(c.Request.Context()).Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("request complete")
	}
}
