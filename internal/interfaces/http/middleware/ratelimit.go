package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/erp/catalogsync/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per key. Idle keys age out of the LRU.
type RateLimiter struct {
	buckets *expirable.LRU[string, *rate.Limiter]
	limit   rate.Limit
	burst   int
}

// NewRateLimiter allows perSecond requests per key with the given burst.
// At most maxKeys buckets are tracked.
func NewRateLimiter(perSecond float64, burst, maxKeys int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	return &RateLimiter{
		buckets: expirable.NewLRU[string, *rate.Limiter](maxKeys, nil, 10*time.Minute),
		limit:   rate.Limit(perSecond),
		burst:   burst,
	}
}

// Allow takes a token for key if one is available
func (rl *RateLimiter) Allow(key string) bool {
	bucket, ok := rl.buckets.Get(key)
	if !ok {
		bucket = rate.NewLimiter(rl.limit, rl.burst)
		rl.buckets.Add(key, bucket)
	}
	return bucket.Allow()
}

// RateLimit limits requests per client IP
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return RateLimitByKey(limiter, func(c *gin.Context) string { return c.ClientIP() })
}

// RateLimitByKey limits requests per key derived from the request
func RateLimitByKey(limiter *RateLimiter, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-RateLimit-Limit", strconv.FormatFloat(float64(limiter.limit), 'f', -1, 64))
		if !limiter.Allow(keyFunc(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeRateLimited, "Too many requests. Please try again later.", c.GetString(RequestIDContextKey)))
			return
		}
		c.Next()
	}
}
