package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	applogger "OilCast/pkg/logger"
)

// Allower decides whether a keyed request may proceed.
type Allower interface {
	Allow(key string, capacity, refillPerSec float64) bool
}

// RateLimitConfig sizes a per-client token bucket. Requests on Skip paths
// are never limited.
type RateLimitConfig struct {
	Burst     float64
	PerSecond float64
	Skip      map[string]bool
}

// RateLimit rejects requests with 429 once the caller's bucket is empty.
// Buckets are keyed by client IP and route template.
func RateLimit(lim Allower, cfg RateLimitConfig, l *applogger.Logger) echo.MiddlewareFunc {
	if l == nil {
		l = applogger.Nop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if cfg.Skip[route] {
				return next(c)
			}
			ip := c.RealIP()
			if !lim.Allow(ip+":"+route, cfg.Burst, cfg.PerSecond) {
				l.Warn("rate limited", applogger.String("remote", ip), applogger.String("route", route))
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"status":  http.StatusTooManyRequests,
					"message": http.StatusText(http.StatusTooManyRequests),
				})
			}
			return next(c)
		}
	}
}
