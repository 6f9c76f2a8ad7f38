package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
	// IdleTTL evicts limiters of clients not seen for this long
	IdleTTL time.Duration
	// Exempt path prefixes bypass the limiter
	Exempt []string
}

// DefaultRateLimitConfig returns production-ready rate limit configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             200,
		IdleTTL:           10 * time.Minute,
		Exempt:            []string{"/health", "/metrics"},
	}
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is a per-IP token bucket registry
type Limiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu        sync.Mutex
	clients   map[string]*client
	lastSweep time.Time
}

// NewLimiter creates a per-IP limiter
func NewLimiter(cfg RateLimitConfig) *Limiter {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RequestsPerSecond
	}
	return &Limiter{
		cfg:     cfg,
		now:     time.Now,
		clients: make(map[string]*client),
	}
}

// Allow consumes a token for ip
func (l *Limiter) Allow(ip string) bool {
	l.mu.Lock()
	now := l.now()
	if now.Sub(l.lastSweep) >= l.cfg.IdleTTL {
		l.sweep(now)
	}
	cl, ok := l.clients[ip]
	if !ok {
		cl = &client{limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)}
		l.clients[ip] = cl
	}
	cl.lastSeen = now
	limiter := cl.limiter
	l.mu.Unlock()

	return limiter.AllowN(now, 1)
}

// Len reports the tracked clients
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *Limiter) sweep(now time.Time) {
	for ip, cl := range l.clients {
		if now.Sub(cl.lastSeen) >= l.cfg.IdleTTL {
			delete(l.clients, ip)
		}
	}
	l.lastSweep = now
}

func (l *Limiter) exempt(path string) bool {
	for _, prefix := range l.cfg.Exempt {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Middleware rejects clients over their budget with 429
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.exempt(c.Request.URL.Path) {
			c.Next()
			return
		}
		if !l.Allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// RateLimit creates a per-IP rate limiting middleware.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	return NewLimiter(cfg).Middleware()
}

// GlobalRateLimit creates a global rate limiting middleware.
func GlobalRateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
