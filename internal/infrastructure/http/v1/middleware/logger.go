package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"stockflow/pkg/logger"
)

// Logger middleware logs one line per request. 5xx responses log at error,
// 4xx at warn, health probes at debug and everything else at info.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		kv := []any{
			"method", c.Request.Method,
			"path", path,
			"route", c.FullPath(),
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if q := c.Request.URL.RawQuery; q != "" {
			kv = append(kv, "query", q)
		}
		if c.Writer.Header().Get(HeaderIdempotentReplay) != "" {
			kv = append(kv, "replay", true)
		}
		if errs := c.Errors.String(); errs != "" {
			kv = append(kv, "error", errs)
		}

		l := log.WithContext(c.Request.Context())
		switch {
		case status >= http.StatusInternalServerError:
			l.Errorw("http request", kv...)
		case status >= http.StatusBadRequest:
			l.Warnw("http request", kv...)
		case strings.HasPrefix(path, "/health/"):
			l.Debugw("http request", kv...)
		default:
			l.Infow("http request", kv...)
		}
	}
}

// ContextLogger attaches log to the request context so that the
// package-level logger helpers used by the services pick it up.
func ContextLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(logger.WithLogger(c.Request.Context(), log))
		c.Next()
	}
}
