package logger

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/smallbiznis/tabledesk/internal/auditcontext"
	obscontext "github.com/smallbiznis/tabledesk/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	HeaderRequestID = "X-Request-Id"

	// Handlers that know the diner's table store it under this gin key.
	TableKey = "table_number"
)

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	// ErrorClassifier maps a handler error to (type, code) log fields.
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware assigns the request id, seeds the audit context and writes
// one access log line per request.
func GinMiddleware(base *zap.Logger, cfg MiddlewareConfig) gin.HandlerFunc {
	if base == nil {
		base = zap.L()
	}
	base = base.Named("http")

	return func(c *gin.Context) {
		start := time.Now()
		requestID := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(HeaderRequestID, requestID)
		c.Request = c.Request.WithContext(requestContext(c, requestID))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}
		if table := c.GetString(TableKey); table != "" {
			fields = append(fields, zap.String(TableKey, table))
		}

		errorType := ""
		if last := c.Errors.Last(); last != nil && cfg.ErrorClassifier != nil {
			var errorCode string
			errorType, errorCode = cfg.ErrorClassifier(last.Err)
			fields = append(fields, zap.String("error_type", errorType), zap.String("error_code", errorCode))
		}

		log := WithContext(c.Request.Context(), base)
		if ce := log.Check(accessLevel(route, status, errorType), "http_request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

func requestContext(c *gin.Context, requestID string) context.Context {
	ctx := obscontext.WithRequestID(c.Request.Context(), requestID)
	ctx = auditcontext.WithRequestID(ctx, requestID)
	ctx = auditcontext.WithIPAddress(ctx, c.ClientIP())
	return auditcontext.WithUserAgent(ctx, c.Request.UserAgent())
}

// accessLevel keeps polled display reads and diner typos out of info logs.
func accessLevel(route string, status int, errorType string) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case errorType == "validation_error":
		return zapcore.DebugLevel
	case status < http.StatusBadRequest && polled(route):
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

func polled(route string) bool {
	switch route {
	case "/health", "/metrics":
		return true
	}
	return strings.HasSuffix(route, "/board") || strings.HasSuffix(route, "/sessions")
}
