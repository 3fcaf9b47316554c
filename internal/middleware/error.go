package middleware

import (
	"github.com/gin-gonic/gin"

	apperrors "github.com/jwalitptl/travel-notifications/pkg/errors"
	"github.com/jwalitptl/travel-notifications/pkg/logger"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// ErrorHandler renders errors attached with c.Error when the handler has not
// written a response.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		traceID := c.GetString(ContextRequestID)
		reqLog := logger.FromContext(c.Request.Context(), log)
		for _, e := range c.Errors {
			reqLog.Error(e.Err, "Request error",
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)
		}

		if c.Writer.Written() {
			return
		}

		appErr := apperrors.As(c.Errors.Last().Err)
		status := appErr.HTTPStatus()
		c.AbortWithStatusJSON(status, ErrorResponse{
			Code:    status,
			Message: appErr.Message,
			TraceID: traceID,
		})
	}
}
