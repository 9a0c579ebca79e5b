package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/axle/pkg/observability"
)

// rateLimitWindow is the accounting window for every tier. Limits are
// expressed per minute throughout.
const rateLimitWindow = time.Minute

// RateLimiter implements rate limiting using a token bucket per caller
// key. Buckets live in process memory; counts are not shared across
// instances.
type RateLimiter struct {
	window  time.Duration
	buckets map[string]*bucket
	mu      sync.RWMutex
}

type bucket struct {
	tokens     int
	lastUpdate time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a new in-memory rate limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		window:  rateLimitWindow,
		buckets: make(map[string]*bucket),
	}
}

// Allow checks if a request is allowed for the given key under the given
// limit. Each call consumes one token when allowed.
func (rl *RateLimiter) Allow(key string, limit Limit) bool {
	rl.mu.Lock()
	b, exists := rl.buckets[key]
	if !exists {
		b = &bucket{
			tokens:     limit.capacity(),
			lastUpdate: time.Now(),
		}
		rl.buckets[key] = b
	}
	rl.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastUpdate)

	// Refill tokens based on elapsed time
	tokensToAdd := int(elapsed.Seconds() * float64(limit.RequestsPerMinute) / rl.window.Seconds())
	if tokensToAdd > 0 {
		b.tokens += tokensToAdd
		if b.tokens > limit.capacity() {
			b.tokens = limit.capacity()
		}
		b.lastUpdate = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}

	return false
}

// Remaining returns the number of remaining tokens for a key.
func (rl *RateLimiter) Remaining(key string, limit Limit) int {
	rl.mu.RLock()
	b, exists := rl.buckets[key]
	rl.mu.RUnlock()

	if !exists {
		return limit.capacity()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	return b.tokens
}

// Cleanup removes buckets idle for more than two windows.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, b := range rl.buckets {
		b.mu.Lock()
		if now.Sub(b.lastUpdate) > rl.window*2 {
			delete(rl.buckets, key)
		}
		b.mu.Unlock()
	}
}

// StartCleanup starts a background goroutine that prunes idle buckets
// until the context is canceled.
func (rl *RateLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.window)
	go func() {
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				ticker.Stop()
				return
			}
		}
	}()
}

// RateLimitMiddleware applies per-caller request limits. Authenticated
// callers are keyed by token and limited by their plan tier; anonymous
// callers are keyed by client IP under the default limit. With a Redis
// client configured the counters are shared across instances; Redis
// failures fall back to the in-memory buckets so a cache outage never
// blocks traffic.
type RateLimitMiddleware struct {
	rulesMu     sync.RWMutex
	rules       Rules
	local       *RateLimiter
	distributed *DistributedRateLimiter
	metrics     *observability.Metrics
}

// NewRateLimitMiddleware creates a rate limit middleware over the given
// rules. redisClient and metrics may be nil.
func NewRateLimitMiddleware(rules Rules, redisClient *redis.Client, metrics *observability.Metrics) *RateLimitMiddleware {
	m := &RateLimitMiddleware{
		rules:   rules,
		local:   NewRateLimiter(),
		metrics: metrics,
	}
	if redisClient != nil {
		m.distributed = NewDistributedRateLimiter(redisClient, "ratelimit")
	}
	return m
}

// SetRules replaces the active rule set. Existing buckets keep their
// tokens; the new limits apply from the next refill. Safe to call while
// requests are in flight.
func (m *RateLimitMiddleware) SetRules(rules Rules) {
	m.rulesMu.Lock()
	m.rules = rules
	m.rulesMu.Unlock()
}

// Handler wraps an HTTP handler with rate limiting. Must run after
// AuthMiddleware so authenticated callers land in their plan tier.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, limit, scope := m.classify(r)

		allowed, remaining := m.take(r.Context(), key, limit)
		if !allowed {
			m.rateLimitExceeded(r.Context(), w, key, limit, scope)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.RequestsPerMinute))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(rateLimitWindow).Unix(), 10))

		next.ServeHTTP(w, r)
	})
}

// classify picks the bucket key and limit tier for the caller.
func (m *RateLimitMiddleware) classify(r *http.Request) (string, Limit, string) {
	m.rulesMu.RLock()
	rules := m.rules
	m.rulesMu.RUnlock()

	if principal := GetPrincipal(r); principal != nil {
		key := fmt.Sprintf("token:%d", principal.TokenID)
		return key, rules.LimitFor(principal.Plan), string(principal.Plan)
	}
	return "ip:" + getClientIP(r), rules.Default, "anonymous"
}

// take consumes one request for the key, preferring the shared counters.
func (m *RateLimitMiddleware) take(ctx context.Context, key string, limit Limit) (bool, int) {
	if m.distributed != nil {
		allowed, remaining, err := m.distributed.Allow(ctx, key, limit)
		if err == nil {
			return allowed, remaining
		}
	}
	if !m.local.Allow(key, limit) {
		return false, 0
	}
	return true, m.local.Remaining(key, limit)
}

func (m *RateLimitMiddleware) rateLimitExceeded(ctx context.Context, w http.ResponseWriter, key string, limit Limit, scope string) {
	if m.metrics != nil {
		m.metrics.RateLimitThrottledTotal.WithLabelValues(scope).Inc()
	}

	retryAfter := rateLimitWindow
	if m.distributed != nil {
		if ttl, err := m.distributed.TTL(ctx, key); err == nil && ttl > 0 {
			retryAfter = ttl
		}
	}

	seconds := fmt.Sprintf("%.0f", retryAfter.Seconds())
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", seconds)
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.RequestsPerMinute))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(retryAfter).Unix(), 10))
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"rate limit exceeded","retry_after":` + seconds + `}`))
}

func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (if behind proxy)
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		return forwarded
	}

	// Check X-Real-IP header
	realIP := r.Header.Get("X-Real-IP")
	if realIP != "" {
		return realIP
	}

	// Use remote address
	return r.RemoteAddr
}
