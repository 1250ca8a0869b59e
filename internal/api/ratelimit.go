package api

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"trail-arena/internal/config"
	"trail-arena/internal/metrics"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the per-IP HTTP limiter
type RateLimitConfig struct {
	RequestsPerSecond float64       // 0 or less disables throttling
	Burst             int           // Requests allowed at once
	IdleTTL           time.Duration // Addresses unseen this long are forgotten
}

// RateLimitFromLimits derives the HTTP limiter from the resource limits.
func RateLimitFromLimits(l config.ResourceLimits) RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: l.HTTPRate,
		Burst:             l.HTTPBurst,
		IdleTTL:           10 * time.Minute,
	}
}

type visitor struct {
	limiter *rate.Limiter
	seen    time.Time
}

// IPRateLimiter throttles HTTP requests per client address. Arena PNGs and
// room snapshots each cost a trip through a room inbox, so they sit behind it.
// Socket slots per address are counted by the room directory instead.
type IPRateLimiter struct {
	cfg   RateLimitConfig
	limit rate.Limit

	mu       sync.Mutex
	visitors map[string]*visitor

	stop     chan struct{}
	stopOnce sync.Once
}

// NewIPRateLimiter creates a limiter and starts its janitor. Call Stop when done.
func NewIPRateLimiter(cfg RateLimitConfig) *IPRateLimiter {
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	rl := &IPRateLimiter{
		cfg:      cfg,
		limit:    limit,
		visitors: make(map[string]*visitor),
		stop:     make(chan struct{}),
	}
	go rl.janitor()
	return rl
}

// Stop ends the janitor goroutine.
func (rl *IPRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Allow spends one token from ip's bucket.
func (rl *IPRateLimiter) Allow(ip string) bool {
	now := time.Now()

	rl.mu.Lock()
	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.cfg.Burst)}
		rl.visitors[ip] = v
	}
	v.seen = now
	rl.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

func (rl *IPRateLimiter) janitor() {
	ticker := time.NewTicker(rl.cfg.IdleTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case now := <-ticker.C:
			rl.forget(now.Add(-rl.cfg.IdleTTL))
		}
	}
}

// forget drops the addresses last seen before cutoff and returns how many went.
func (rl *IPRateLimiter) forget(cutoff time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	n := 0
	for ip, v := range rl.visitors {
		if v.seen.Before(cutoff) {
			delete(rl.visitors, ip)
			n++
		}
	}
	return n
}

// retryAfter is the Retry-After value in whole seconds for one token.
func (rl *IPRateLimiter) retryAfter() string {
	if rl.limit == rate.Inf {
		return "1"
	}
	return strconv.Itoa(int(math.Max(1, math.Ceil(1/float64(rl.limit)))))
}

// Middleware rejects requests over the per-IP budget with 429
func (rl *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	retry := rl.retryAfter()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(GetClientIP(r)) {
			metrics.RecordConnectionRejected("http_rate")
			w.Header().Set("Retry-After", retry)
			writeError(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetClientIP returns the caller's address. The first X-Forwarded-For entry
// wins when it parses as an IP, then X-Real-IP, then the socket peer.
// CAUTION: the headers can be spoofed unless a trusted proxy sets them.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// IsAllowedOrigin checks an origin against CORS-style patterns, where a
// single '*' matches any run of characters. Requests without an Origin
// header come from non-browser clients and are allowed.
func IsAllowedOrigin(origin string, patterns []string) bool {
	if origin == "" {
		return true
	}
	for _, p := range patterns {
		if p == "*" || p == origin {
			return true
		}
		if i := strings.IndexByte(p, '*'); i >= 0 {
			prefix, suffix := p[:i], p[i+1:]
			if len(origin) >= len(prefix)+len(suffix) &&
				strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
				return true
			}
		}
	}
	return false
}
