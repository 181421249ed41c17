// Package maintenance decides whether the gateway is answering in maintenance mode.
package maintenance

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/masterparty/platform/libs/httpx"
	"github.com/redis/go-redis/v9"
)

const Message = "Master Party está en mantenimiento. Vuelve a intentarlo en unos minutos."

type Switch interface {
	Enabled(ctx context.Context) bool
}

// Static is fixed at startup from MAINTENANCE_MODE.
type Static bool

func (s Static) Enabled(context.Context) bool { return bool(s) }

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Redis reads a flag key shared by every gateway replica, falling back to
// the static value when the key is unset or Redis is unreachable. Reads are
// cached for ttl.
type Redis struct {
	rdb      getter
	key      string
	fallback bool
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	cached  bool
	expires time.Time
}

func NewRedis(rdb getter, key string, fallback bool, ttl time.Duration, logger *slog.Logger) *Redis {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Redis{rdb: rdb, key: key, fallback: fallback, ttl: ttl, logger: logger, now: time.Now}
}

func (s *Redis) Enabled(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if now.Before(s.expires) {
		return s.cached
	}

	enabled := s.fallback
	val, err := s.rdb.Get(ctx, s.key).Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		s.logger.Warn("maintenance flag unavailable", "err", err)
	default:
		if b, perr := strconv.ParseBool(strings.TrimSpace(val)); perr == nil {
			enabled = b
		}
	}
	s.cached = enabled
	s.expires = now.Add(s.ttl)
	return enabled
}

// exempt lists what keeps working during maintenance: probes and lead capture.
func exempt(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/readyz", "/api/lead":
		return true
	case "/api/v1/leads":
		return r.Method == http.MethodPost || r.Method == http.MethodOptions
	}
	return false
}

// Middleware answers 503 with a JSON body while the switch is on.
func Middleware(s Switch) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt(r) || !s.Enabled(r.Context()) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Retry-After", "300")
			httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
				"error":       Message,
				"maintenance": true,
			})
		})
	}
}
