// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the console rate limiter: an in-memory token bucket
// per staff user (or client IP when X-User-ID is absent), built on
// golang.org/x/time/rate. It is mounted on the API group only; the gateway
// webhook is never limited because a dropped delivery is a lost patient
// message.
//
// Idempotent replays flagged by IdempotencyValidator skip the limiter, so a
// console retrying a send after a timeout is never told to slow down.
//
// The limiter is process-local. Running several replicas multiplies the
// effective limit by the replica count.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// codeRateLimited is the error code of a 429 envelope.
const codeRateLimited = "too_many_requests"

var rateLimited = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_rate_limited_total",
		Help: "Requests rejected by the console rate limiter.",
	},
	[]string{"path"},
)

func init() {
	prometheus.MustRegister(rateLimited)
}

// keyFunc selects the identity used to key a rate-limit bucket.
type keyFunc func(*gin.Context) string

// KeyByStaffOrIP keys buckets by the staff user resolved by StaffUser and
// falls back to the client IP. Keys are prefixed ("user:staff-1",
// "ip:203.0.113.7") so the two namespaces never collide.
func KeyByStaffOrIP() keyFunc {
	return func(c *gin.Context) string {
		if u := UserID(c); u != "" {
			return "user:" + u
		}
		return "ip:" + c.ClientIP()
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter implements a per-key token-bucket rate limiter.
//
// Buckets are created on demand; buckets idle for longer than the TTL are
// evicted during lookups. Safe for concurrent use.
type RateLimiter struct {
	rps      rate.Limit
	burst    int
	keyFn    keyFunc
	mu       sync.Mutex
	visitors map[string]*visitor

	ttl      time.Duration
	cleanupN uint64
}

// NewRateLimiter constructs a RateLimiter refilling rps tokens per second with
// the given burst (coerced to at least 1), keyed by keyFn.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
	}
}

// getVisitor returns the limiter for key, creating it if absent. Every 5000
// lookups it first evicts idle buckets, before touching key, so a stale
// bucket for key itself is dropped too.
func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.cleanupN++
	if rl.cleanupN >= 5000 {
		for k, vv := range rl.visitors {
			if now.Sub(vv.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.cleanupN = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// IsRateBypass reports whether IdempotencyValidator marked this request as a
// replay that should not consume tokens.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler returns the Gin middleware enforcing the limits.
//
// A rejected request gets 429 with Retry-After set to the whole seconds until
// the bucket holds a token again (at least 1) and the standard envelope:
//
//	{ "request_id": "...", "code": "too_many_requests", "message": "rate limit exceeded" }
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		lim := rl.getVisitor(rl.keyFn(c))
		res := lim.Reserve()
		if res.OK() && res.Delay() == 0 {
			c.Next()
			return
		}
		wait := time.Second
		if res.OK() {
			wait = res.Delay()
			res.Cancel()
		}

		path := c.FullPath()
		if path == "" {
			path = unmatchedPath
		}
		rateLimited.WithLabelValues(path).Inc()

		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": RequestIDFrom(c),
			"code":       codeRateLimited,
			"message":    "rate limit exceeded",
		})
	}
}

func retryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
