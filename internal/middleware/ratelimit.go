package middleware

import (
	"github.com/gin-gonic/gin"

	apperrors "flow/internal/errors"
	"flow/internal/ratelimit"
)

// RateLimit throttles requests per authenticated user. Requests without a
// user fall back to the client IP.
func RateLimit(limiter *ratelimit.Keyed) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString(UserIDKey)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		if !limiter.Allow(key) {
			c.Header("Retry-After", "60")
			abortWithError(c, apperrors.ErrRateLimited)
			return
		}
		c.Next()
	}
}
