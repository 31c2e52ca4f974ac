package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// APIRequestLogger is the part of logging.StandardLogger used for access logs.
type APIRequestLogger interface {
	LogAPIRequest(method string, path string, statusCode int, duration int64, requestID string)
	WithRequestID(requestID string) *slog.Logger
}

// AccessLog writes one structured entry per request after it completes.
// The route template is logged when known so paths stay low-cardinality.
// Server errors get a second entry carrying the errors attached to the context.
func AccessLog(logger APIRequestLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := c.Writer.Status()
		requestID := GetRequestID(c)
		logger.LogAPIRequest(
			c.Request.Method,
			path,
			status,
			time.Since(start).Milliseconds(),
			requestID,
		)

		if status >= http.StatusInternalServerError {
			logger.WithRequestID(requestID).Error("Request failed",
				"method", c.Request.Method,
				"path", path,
				"status_code", status,
				"errors", c.Errors.String(),
			)
		}
	}
}
