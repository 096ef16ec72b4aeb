package server

import (
	"time"

	"github.com/gin-gonic/gin"

	"giftrelay/internal/auth"
	"giftrelay/internal/logger"
	"giftrelay/internal/signature"
)

var quietPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// RequestLoggingMiddleware writes one structured line per request. Server
// errors are logged at error level, health checks not at all.
func RequestLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		if quietPaths[c.Request.URL.Path] {
			return
		}

		status := c.Writer.Status()
		fields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"route", c.FullPath(),
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if id, ok := auth.GetAccountID(c); ok {
			fields = append(fields, "account_id", id)
		}
		if agent, ok := signature.AgentID(c); ok {
			fields = append(fields, "agent_id", agent)
		}

		if status >= 500 {
			logger.Error("HTTP request", fields...)
			return
		}
		logger.Info("HTTP request", fields...)
	}
}
