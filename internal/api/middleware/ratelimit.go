package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/mosaicms/mosaic/internal/config"
)

// RateLimit throttles per tenant. With a Redis client the limit is shared
// across instances via redis_rate; without one, a per-process token bucket
// per tenant is used instead.
func RateLimit(cfg config.RateLimitConfig, rdb *redis.Client) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	if rdb != nil {
		return redisRateLimit(cfg, redis_rate.NewLimiter(rdb))
	}
	return localRateLimit(cfg)
}

func redisRateLimit(cfg config.RateLimitConfig, limiter *redis_rate.Limiter) gin.HandlerFunc {
	limit := redis_rate.Limit{Rate: cfg.RPS, Burst: cfg.Burst, Period: time.Second}
	return func(c *gin.Context) {
		tenant := c.GetString("tenant_id")
		res, err := limiter.Allow(c.Request.Context(), "ratelimit:"+tenant, limit)
		if err != nil {
			// Limiter backend down: let the request through.
			c.Next()
			return
		}
		if res.Allowed == 0 {
			tooManyRequests(c)
			return
		}
		c.Next()
	}
}

func localRateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	var (
		mu       sync.Mutex
		limiters = make(map[string]*rate.Limiter)
	)
	return func(c *gin.Context) {
		tenant := c.GetString("tenant_id")
		mu.Lock()
		l, ok := limiters[tenant]
		if !ok {
			l = rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)
			limiters[tenant] = l
		}
		mu.Unlock()
		if !l.Allow() {
			tooManyRequests(c)
			return
		}
		c.Next()
	}
}

func tooManyRequests(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"success": false,
		"message": "Rate limit exceeded",
	})
}
