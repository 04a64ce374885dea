package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/noah-isme/uni-enroll-api/internal/models"
	appErrors "github.com/noah-isme/uni-enroll-api/pkg/errors"
	"github.com/noah-isme/uni-enroll-api/pkg/response"
)

type clientLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a per-client token bucket. Authenticated requests
// are keyed by user id so students behind a shared NAT do not share a
// bucket; anonymous requests fall back to the client IP. Buckets idle
// for longer than idleTTL are swept out so the map stays bounded.
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	rps       rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
}

// NewRateLimiter constructs a limiter allowing rps requests per second
// with the given burst per client.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &RateLimiter{
		clients: make(map[string]*clientLimiter),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: 15 * time.Minute,
	}
}

func (r *RateLimiter) get(key string) *rate.Limiter {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.lastSweep) > r.idleTTL {
		cutoff := now.Add(-r.idleTTL)
		for k, entry := range r.clients {
			if entry.lastSeen.Before(cutoff) {
				delete(r.clients, k)
			}
		}
		r.lastSweep = now
	}

	if entry, ok := r.clients[key]; ok {
		entry.lastSeen = now
		return entry.lim
	}
	lim := rate.NewLimiter(r.rps, r.burst)
	r.clients[key] = &clientLimiter{lim: lim, lastSeen: now}
	return lim
}

// Handler returns the gin middleware enforcing the limit.
func (r *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if claimsValue, exists := c.Get(ContextUserKey); exists {
			if claims, ok := claimsValue.(*models.JWTClaims); ok && claims.UserID != "" {
				key = "user:" + claims.UserID
			}
		}
		if !r.get(key).Allow() {
			c.Header("Retry-After", "1")
			response.Error(c, appErrors.ErrTooManyRequests)
			c.Abort()
			return
		}
		c.Next()
	}
}
