package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"chat-relay/pkg/logger"
	"chat-relay/pkg/response"

	"github.com/gin-gonic/gin"
)

// RateLimiter is satisfied by *services.RedisService.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type RateLimitMiddleware struct {
	limiter RateLimiter
	logger  *logger.Logger
}

// NewRateLimitMiddleware accepts a nil limiter, in which case every
// request passes.
func NewRateLimitMiddleware(limiter RateLimiter, log *logger.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter, logger: log}
}

// RateLimitIP limits requests per client IP and path. A limiter error lets
// the request through.
func (rm *RateLimitMiddleware) RateLimitIP(requests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rm.limiter == nil || requests <= 0 {
			c.Next()
			return
		}

		key := fmt.Sprintf("rate_limit_ip:%s:%s", c.ClientIP(), c.Request.URL.Path)
		allowed, err := rm.limiter.CheckRateLimit(c.Request.Context(), key, requests, window)
		if err != nil {
			rm.logger.Warn("Rate limit check failed", "key", key, "error", err)
			c.Next()
			return
		}

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, response.Error(response.CodeRateLimited,
				fmt.Sprintf("limit: %d per %v", requests, window)))
			return
		}

		c.Next()
	}
}
