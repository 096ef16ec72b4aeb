package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"giftrelay/internal/metrics"
)

// MetricsMiddleware labels requests by route template so task ids do not
// create new series. Requests that match no route share one label.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequest(
			c.Request.Method,
			route,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start).Seconds(),
		)
	}
}
