package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appLogger "github.com/arklim/chat-moderation/internal/infra/logger"
)

// Logger emits one access log per HTTP request. Client addresses are masked; request bodies,
// which carry ID tokens, are never logged.
func Logger(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("trace_id", GetTraceID(c)),
			zap.String("request_id", appLogger.RequestIDFromContext(c.Request.Context())),
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("route", routeLabel(c)),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", appLogger.MaskIP(c.ClientIP())),
			zap.Int("response_bytes", c.Writer.Size()),
		}
		if ua := c.Request.UserAgent(); ua != "" {
			fields = append(fields, zap.String("user_agent", ua))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		level, msg := accessLogLevel(status, len(c.Errors) > 0)
		log.Log(level, msg, fields...)
	}
}

func accessLogLevel(status int, failed bool) (zapcore.Level, string) {
	switch {
	case failed:
		return zapcore.ErrorLevel, "request failed"
	case status >= http.StatusInternalServerError:
		return zapcore.WarnLevel, "request completed with server error"
	case status == http.StatusUnauthorized || status == http.StatusTooManyRequests:
		return zapcore.WarnLevel, "request rejected"
	}
	return zapcore.InfoLevel, "request completed"
}

// routeLabel prefers the route template so identifiers in paths do not leak into logs.
func routeLabel(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unmatched"
}
