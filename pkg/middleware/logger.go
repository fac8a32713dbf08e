package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
)

// LoggerOption configures the Logger middleware.
type LoggerOption func(*loggerConfig)

type loggerConfig struct {
	skipPaths []string
}

// WithLoggerSkipPaths skips logging for the given paths.
func WithLoggerSkipPaths(paths ...string) LoggerOption {
	return func(c *loggerConfig) {
		c.skipPaths = append(c.skipPaths, paths...)
	}
}

// Logger returns a middleware that logs every request with its status and
// latency. 5xx responses log at error level, 4xx at warn.
func Logger(opts ...LoggerOption) gin.HandlerFunc {
	cfg := &loggerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	skip := skipSet(cfg.skipPaths)

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if _, ok := skip[path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		status := c.Writer.Status()
		fields := []any{
			"method", c.Request.Method,
			"path", path,
			"route", c.FullPath(),
			"status", status,
			"client_ip", c.ClientIP(),
			"latency", latency.String(),
			"latency_ms", latency.Milliseconds(),
		}
		if id := GetRequestID(c.Request.Context()); id != "" {
			fields = append(fields, "request_id", id)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			logger.Errorw("HTTP Request", fields...)
		case status >= 400:
			logger.Warnw("HTTP Request", fields...)
		default:
			logger.Infow("HTTP Request", fields...)
		}
	}
}
