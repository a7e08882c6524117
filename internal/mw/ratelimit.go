package mw

import (
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"wardrobe-backend/internal/apperr"
)

// KeyedRateLimiter stores a rate limiter for each client key.
type KeyedRateLimiter struct {
	keys map[string]*rate.Limiter
	mu   *sync.RWMutex
	r    rate.Limit
	b    int
}

// NewKeyedRateLimiter creates a new KeyedRateLimiter.
func NewKeyedRateLimiter(r rate.Limit, b int) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		keys: make(map[string]*rate.Limiter),
		mu:   &sync.RWMutex{},
		r:    r,
		b:    b,
	}
}

// AddKey creates a new rate limiter for key.
func (i *KeyedRateLimiter) AddKey(key string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	if limiter, exists := i.keys[key]; exists {
		return limiter
	}
	limiter := rate.NewLimiter(i.r, i.b)
	i.keys[key] = limiter
	return limiter
}

// GetLimiter returns the rate limiter for key.
func (i *KeyedRateLimiter) GetLimiter(key string) *rate.Limiter {
	i.mu.RLock()
	limiter, exists := i.keys[key]
	i.mu.RUnlock()

	if !exists {
		return i.AddKey(key)
	}
	return limiter
}

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(c *gin.Context) string

// ByClientIP charges requests to the caller's address.
func ByClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// ByAPIKey charges device requests to their api key, so readers behind one
// NAT do not starve each other. Requests without a key fall back to the IP.
func ByAPIKey(c *gin.Context) string {
	if key := APIKey(c); key != "" {
		return "key:" + key
	}
	return "ip:" + c.ClientIP()
}

// RateLimiter is a middleware for IP-based rate limiting.
func RateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	return RateLimiterBy(r, b, ByClientIP)
}

// RateLimiterBy limits requests per key returned by keyFn.
func RateLimiterBy(r rate.Limit, b int, keyFn KeyFunc) gin.HandlerFunc {
	limiter := NewKeyedRateLimiter(r, b)
	return func(c *gin.Context) {
		if !limiter.GetLimiter(keyFn(c)).Allow() {
			AbortWithError(c, nil, apperr.New(apperr.CodeRateLimit, "too many requests"))
			return
		}
		c.Next()
	}
}
