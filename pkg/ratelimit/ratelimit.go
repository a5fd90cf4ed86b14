package ratelimit

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
	"k8s.io/utils/clock"
)

// Config holds limiter configuration
type Config struct {
	// Interval is the minimum spacing between requests of one key once the
	// burst is used up
	Interval time.Duration
	// Burst is the number of requests allowed back to back
	Burst int
	// MaxAge is how long to keep a key after its last request
	MaxAge time.Duration
}

type entry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// KeyedLimiter paces requests per key, e.g. per device code or client IP.
// Stale keys are pruned lazily on access.
type KeyedLimiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	config  Config
	clock   clock.PassiveClock
}

// New creates a limiter reading time from clk; nil means the wall clock.
func New(cfg Config, clk clock.PassiveClock) *KeyedLimiter {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 30 * time.Minute
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &KeyedLimiter{
		entries: make(map[string]*entry),
		config:  cfg,
		clock:   clk,
	}
}

// Allow reports whether a request for key may proceed now. A denied request
// does not consume a token.
func (l *KeyedLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.pruneLocked(now)

	e, exists := l.entries[key]
	if !exists {
		e = &entry{limiter: rate.NewLimiter(rate.Every(l.config.Interval), l.config.Burst)}
		l.entries[key] = e
	}
	e.lastAccess = now
	return e.limiter.AllowN(now, 1)
}

// Middleware applies the limiter to a Gin route. key extracts the bucket key
// from the request; requests with an empty key pass through. deny writes the
// rejection.
func (l *KeyedLimiter) Middleware(key func(*gin.Context) string, deny gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		k := key(c)
		if k != "" && !l.Allow(k) {
			deny(c)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (l *KeyedLimiter) pruneLocked(now time.Time) {
	for k, e := range l.entries {
		if now.Sub(e.lastAccess) > l.config.MaxAge {
			delete(l.entries, k)
		}
	}
}

// Len returns the current number of tracked keys (for testing/metrics)
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
