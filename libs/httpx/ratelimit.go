package httpx

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Limiter admits or rejects one hit against key within the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// maxBuckets triggers a sweep of expired windows in RateLimiter.
const maxBuckets = 4096

// RateLimiter is an in-process fixed-window limiter for single replicas and dev.
type RateLimiter struct {
	limit   int
	window  time.Duration
	now     func() time.Time
	mu      sync.Mutex
	buckets map[string]bucket
}

type bucket struct {
	hits    int
	expires time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		buckets: make(map[string]bucket),
	}
}

func (rl *RateLimiter) Allow(_ context.Context, key string) (bool, error) {
	ok, _ := rl.take(key)
	return ok, nil
}

// Middleware limits by ClientKey and tells rejected callers when to retry.
func (rl *RateLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ok, retryIn := rl.take(ClientKey(r)); !ok {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(retryIn)))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// take records a hit; when refused it returns the time left in the window.
func (rl *RateLimiter) take(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok || !now.Before(b.expires) {
		if len(rl.buckets) >= maxBuckets {
			for k, old := range rl.buckets {
				if !now.Before(old.expires) {
					delete(rl.buckets, k)
				}
			}
		}
		rl.buckets[key] = bucket{hits: 1, expires: now.Add(rl.window)}
		return true, 0
	}
	if b.hits >= rl.limit {
		return false, b.expires.Sub(now)
	}
	b.hits++
	rl.buckets[key] = b
	return true, 0
}

// ClientKey identifies the caller by the first X-Forwarded-For hop, then
// X-Real-Ip, then the socket address.
func ClientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
