package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Anylayerorg/landing-sub001/pkg/logger"
	"github.com/gin-gonic/gin"
)

// RateLimiter counts requests per client in fixed windows
type RateLimiter struct {
	mu        sync.Mutex
	tokens    map[string]int
	lastReset time.Time
	rate      int           // requests per window
	window    time.Duration // time window
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:    make(map[string]int),
		lastReset: time.Now(),
		rate:      rate,
		window:    window,
	}
}

// Allow records a request for key. When the key is over its limit it
// returns false and the time left in the current window.
func (l *RateLimiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.lastReset) > l.window {
		l.tokens = make(map[string]int)
		l.lastReset = time.Now()
	}

	count := l.tokens[key]
	if count >= l.rate {
		return false, l.window - time.Since(l.lastReset)
	}
	l.tokens[key] = count + 1
	return true, 0
}

// RateLimit limits requests per client IP. Public intake routes get their
// own, tighter limiter.
func RateLimit(rate int, window time.Duration) gin.HandlerFunc {
	limiter := NewRateLimiter(rate, window)

	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		ok, retryAfter := limiter.Allow(clientIP)
		if !ok {
			logger.Warn(c.Request.Context(), "rate limit exceeded",
				"client_ip", clientIP,
				"path", c.Request.URL.Path,
			)

			seconds := int(retryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			return
		}

		c.Next()
	}
}
