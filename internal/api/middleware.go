package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/didip/tollbooth"
	"github.com/didip/tollbooth/limiter"
	"github.com/didip/tollbooth_gin"
	"github.com/gin-gonic/gin"

	"github.com/your-org/votegate/internal/observability"
)

// LoggingMiddleware logs each request with slog.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		slog.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", duration.String(),
			"ip", c.ClientIP(),
		)

		// route template, not raw path, to keep label cardinality bounded
		observability.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			route,
			fmt.Sprintf("%d", status),
		).Observe(duration.Seconds())
	}
}

// RateLimitPerIP limits each client address to perSecond requests.
func RateLimitPerIP(perSecond float64) gin.HandlerFunc {
	msg, _ := json.Marshal(gin.H{"error": "too many vote attempts, slow down"})

	lmt := tollbooth.NewLimiter(perSecond, &limiter.ExpirableOptions{
		DefaultExpirationTTL: time.Hour,
	})
	lmt.SetMessageContentType("application/json")
	lmt.SetMessage(string(msg))

	return tollbooth_gin.LimitHandler(lmt)
}
