package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		method string
		path   string
		on     bool
		status int
	}{
		{http.MethodGet, "/api/v1/public/services", false, http.StatusOK},
		{http.MethodGet, "/api/v1/public/services", true, http.StatusServiceUnavailable},
		{http.MethodPost, "/api/v1/bookings", true, http.StatusServiceUnavailable},
		{http.MethodGet, "/healthz", true, http.StatusOK},
		{http.MethodGet, "/readyz", true, http.StatusOK},
		{http.MethodPost, "/api/lead", true, http.StatusOK},
		{http.MethodPost, "/api/v1/leads", true, http.StatusOK},
		{http.MethodGet, "/api/v1/leads", true, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		h := Middleware(Static(tt.on))(next)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.status {
			t.Fatalf("%s %s (on=%v): expected %d, got %d", tt.method, tt.path, tt.on, tt.status, rec.Code)
		}
		if rec.Code == http.StatusServiceUnavailable {
			var body map[string]any
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || body["error"] != Message {
				t.Fatalf("expected json maintenance body, got %v %v", body, err)
			}
		}
	}
}

type fakeRedis struct {
	val   string
	err   error
	calls int
}

func (f *fakeRedis) Get(_ context.Context, _ string) *redis.StringCmd {
	f.calls++
	return redis.NewStringResult(f.val, f.err)
}

func TestRedisSwitch(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rdb := &fakeRedis{err: redis.Nil}
	s := NewRedis(rdb, "maintenance", true, time.Second, logger)
	now := time.Now()
	s.now = func() time.Time { return now }

	if !s.Enabled(context.Background()) {
		t.Fatalf("unset key should fall back to the static value")
	}

	rdb.val, rdb.err = "false", nil
	if !s.Enabled(context.Background()) || rdb.calls != 1 {
		t.Fatalf("expected cached value within ttl")
	}
	now = now.Add(2 * time.Second)
	if s.Enabled(context.Background()) {
		t.Fatalf("expected redis flag to turn maintenance off")
	}

	rdb.err = errors.New("connection refused")
	now = now.Add(2 * time.Second)
	if !s.Enabled(context.Background()) {
		t.Fatalf("redis failure should fall back to the static value")
	}
}
