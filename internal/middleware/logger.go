package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/travel-notifications/pkg/logger"
)

// Logger attaches a request-scoped logger to the request context and logs one
// line per request. Bodies are not logged.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		reqLog := log.WithFields(map[string]interface{}{"request_id": c.GetString(ContextRequestID)})
		c.Request = c.Request.WithContext(reqLog.WithContext(c.Request.Context()))

		c.Next()

		status := c.Writer.Status()
		zl := reqLog.Zerolog()
		event, msg := zl.Info(), "Request processed"
		switch {
		case status >= 500:
			event, msg = zl.Error(), "Server error"
		case status >= 400:
			event, msg = zl.Warn(), "Client error"
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Str("ip", c.ClientIP()).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("user_agent", c.Request.UserAgent()).
			Msg(msg)
	}
}
