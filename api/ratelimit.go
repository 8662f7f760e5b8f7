package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines the rate limiting parameters
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
	// Burst allows for temporary bursts above the rate limit
	Burst int
	// TrustedProxyHops is the number of proxies in front of the api that
	// append to X-Forwarded-For. Zero keys clients on the remote address.
	TrustedProxyHops int
}

// AuthLimit is applied to the unauthenticated auth endpoints
var AuthLimit = RateLimitConfig{
	RequestsPerWindow: 10,
	Window:            time.Minute,
	Burst:             5,
}

const limiterCleanupInterval = 5 * time.Minute

// ClientIP returns the address the nearest trusted proxy saw the request come
// from. Entries to the left of that one are client supplied and ignored. With
// no trusted proxies, or a header shorter than the proxy chain, the remote
// address is used.
func ClientIP(r *http.Request, trustedHops int) string {
	if trustedHops > 0 {
		if hops := forwardedHops(r.Header.Values("X-Forwarded-For")); len(hops) >= trustedHops {
			if ip := hops[len(hops)-trustedHops]; ip != "" {
				return ip
			}
		}
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func forwardedHops(values []string) []string {
	var hops []string
	for _, v := range values {
		for _, hop := range strings.Split(v, ",") {
			hops = append(hops, strings.TrimSpace(hop))
		}
	}
	return hops
}

// RateLimiter hands out one token bucket per client ip
type RateLimiter struct {
	config      RateLimitConfig
	limiters    sync.Map // map[string]*rate.Limiter
	rate        rate.Limit
	mu          sync.Mutex
	lastCleanup time.Time
}

// NewRateLimiter creates a limiter. Non-positive fields fall back to AuthLimit.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.RequestsPerWindow <= 0 {
		config.RequestsPerWindow = AuthLimit.RequestsPerWindow
	}
	if config.Window <= 0 {
		config.Window = AuthLimit.Window
	}
	if config.Burst <= 0 {
		config.Burst = AuthLimit.Burst
	}
	if config.TrustedProxyHops < 0 {
		config.TrustedProxyHops = 0
	}
	return &RateLimiter{
		config:      config,
		rate:        rate.Limit(float64(config.RequestsPerWindow) / config.Window.Seconds()),
		lastCleanup: time.Now(),
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	if limiter, ok := rl.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}
	actual, _ := rl.limiters.LoadOrStore(key, rate.NewLimiter(rl.rate, rl.config.Burst))
	rl.maybeCleanup()
	return actual.(*rate.Limiter)
}

// maybeCleanup drops limiters whose bucket is full again, they have been idle
func (rl *RateLimiter) maybeCleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Since(rl.lastCleanup) < limiterCleanupInterval {
		return
	}
	rl.lastCleanup = time.Now()

	rl.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(rl.config.Burst) {
			rl.limiters.Delete(key)
		}
		return true
	})
}

// Middleware answers 429 with a Retry-After header once a client is over its limit
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := ClientIP(r, rl.config.TrustedProxyHops)
		limiter := rl.getLimiter(key)

		if !limiter.Allow() {
			reservation := limiter.Reserve()
			delay := reservation.Delay()
			reservation.Cancel()

			retryAfter := max(int(delay.Seconds()), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")

			zap.S().Warnw("rate limit exceeded",
				"requestId", RequestIDFromContext(r.Context()),
				"clientIp", key,
				"path", r.URL.Path,
				"retryAfter", retryAfter)

			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"success": false, "error": "too many requests, try again later", "code": "RATE_LIMITED"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}
