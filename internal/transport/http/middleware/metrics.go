package middleware

import (
	"strconv"
	"time"

	"github.com/ErlanBelekov/booking-portal/internal/metrics"
	"github.com/gin-gonic/gin"
)

// unmatchedRoute labels requests no route claimed, so scans of random
// paths cannot grow the label set.
const unmatchedRoute = "unmatched"

// Metrics records latency and outcome per route template.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		status := strconv.Itoa(c.Writer.Status())

		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
	}
}
