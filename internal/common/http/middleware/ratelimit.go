package middleware

import (
	"fmt"

	"codearena/internal/common/ratelimit"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// KeyFunc derives the limiter key for a request. An empty key skips the check.
type KeyFunc func(c *gin.Context) string

// RateLimitMiddleware rejects requests once limiter refuses the derived key.
func RateLimitMiddleware(limiter ratelimit.Limiter, keyFn KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || keyFn == nil {
			c.Next()
			return
		}
		key := keyFn(c)
		if key == "" {
			c.Next()
			return
		}
		if err := limiter.Allow(c.Request.Context(), key); err != nil {
			response.AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// UserKey builds "<scope>:user:<id>" for authenticated routes and falls
// back to the client ip.
func UserKey(scope string) KeyFunc {
	return func(c *gin.Context) string {
		if identity, ok := CurrentIdentity(c); ok {
			return fmt.Sprintf("rate:%s:user:%d", scope, identity.UserID)
		}
		return fmt.Sprintf("rate:%s:ip:%s", scope, c.ClientIP())
	}
}
