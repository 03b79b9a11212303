package middleware

import (
	"time"

	"github.com/Anylayerorg/landing-sub001/pkg/logger"
	"github.com/gin-gonic/gin"
)

// RequestLogger logs every request once it completes. Operator and
// request id come from the request context; review routes also log the
// submission id.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"status", status,
			"method", c.Request.Method,
			"path", path,
			"route", c.FullPath(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}

		if id := c.Param("id"); id != "" {
			attrs = append(attrs, "submission_id", id)
		}
		if query != "" {
			attrs = append(attrs, "query", query)
		}

		// AuthMiddleware may have replaced the request with one carrying the operator
		log := logger.WithContext(c.Request.Context())
		switch {
		case status >= 500:
			log.Error("request completed", attrs...)
		case status >= 400:
			log.Warn("request completed", attrs...)
		default:
			log.Info("request completed", attrs...)
		}
	}
}
