// Package middleware holds the gin middleware of the admin API.
package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ratingcore/internal/logger"
	"ratingcore/pkg/errors"
	"ratingcore/pkg/logging"
)

const RequestIDHeader = "X-Request-ID"

// quietPaths are logged at debug level so probes and scrapes do not flood
// the request log.
var quietPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// RequestIDMiddleware reuses the caller's X-Request-ID or assigns one, and
// puts it on the request context. It must run before LoggerMiddleware.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(logging.RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

func LoggerMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []interface{}{
			"status", status,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		}
		if route := c.FullPath(); route != "" {
			fields = append(fields, "route", route)
		}
		if msg := c.Errors.ByType(gin.ErrorTypePrivate).String(); msg != "" {
			fields = append(fields, "error", msg)
		}

		ctx := c.Request.Context()
		switch {
		case status >= http.StatusInternalServerError:
			log.ErrorwCtx(ctx, "HTTP Request", fields...)
		case status >= http.StatusBadRequest:
			log.WarnwCtx(ctx, "HTTP Request", fields...)
		case quietPaths[c.Request.URL.Path]:
			log.DebugwCtx(ctx, "HTTP Request", fields...)
		default:
			log.InfowCtx(ctx, "HTTP Request", fields...)
		}
	}
}

// RecoveryMiddleware answers a panicking handler with the INTERNAL_ERROR
// body used by every other admin error.
func RecoveryMiddleware(log logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		err := errors.FromPanic(c.Request.Method+" "+c.Request.URL.Path, recovered)
		log.ErrorwCtx(c.Request.Context(), "Panic recovered", "error", err)

		body := errors.ToErrorResponse(errors.ErrInternal)
		c.AbortWithStatusJSON(http.StatusInternalServerError, body)
	})
}
