package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"supportdesk/internal/metrics"
)

// PrometheusMiddleware records request counts and latencies per route.
// Registered on the /api group only; /metrics and /health stay unmeasured.
func PrometheusMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		route := c.Route().Path
		method := c.Method()
		status := strconv.Itoa(c.Response().StatusCode())

		metrics.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())

		return err
	}
}
