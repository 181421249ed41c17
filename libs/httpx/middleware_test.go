package httpx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		order = append(order, "handler")
	}), mw("a"), mw("b"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "handler" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := WithCORS(CORSPolicy{
		AllowedOrigins: []string{"https://masterparty.mx"},
		AllowedMethods: []string{"POST", "OPTIONS"},
		MaxAge:         10 * time.Minute,
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/lead", nil)
	req.Header.Set("Origin", "https://masterparty.mx")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rw.Code)
	}
	if got := rw.Header().Get("Access-Control-Allow-Origin"); got != "https://masterparty.mx" {
		t.Fatalf("unexpected allow origin %q", got)
	}
	if got := rw.Header().Get("Access-Control-Max-Age"); got != "600" {
		t.Fatalf("unexpected max age %q", got)
	}

	other := httptest.NewRequest(http.MethodPost, "/api/lead", nil)
	other.Header.Set("Origin", "https://evil.example")
	rwOther := httptest.NewRecorder()
	h.ServeHTTP(rwOther, other)
	if rwOther.Code != http.StatusTeapot || rwOther.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("expected passthrough without CORS headers, got %d %q", rwOther.Code, rwOther.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, req)
		codes = append(codes, rw.Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if seen != "abc" || rw.Header().Get(RequestIDHeader) != "abc" {
		t.Fatalf("request id not propagated: ctx=%q header=%q", seen, rw.Header().Get(RequestIDHeader))
	}
}

func TestRateLimiterWindowResets(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	now := time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	ctx := context.Background()
	if ok, _ := rl.Allow(ctx, "ana@example.com"); !ok {
		t.Fatal("first hit should pass")
	}
	if ok, _ := rl.Allow(ctx, "ana@example.com"); ok {
		t.Fatal("second hit in window should be limited")
	}
	if ok, _ := rl.Allow(ctx, "luis@example.com"); !ok {
		t.Fatal("other keys have their own bucket")
	}
	now = now.Add(61 * time.Second)
	if ok, _ := rl.Allow(ctx, "ana@example.com"); !ok {
		t.Fatal("hit after window should pass")
	}
}

func TestRequestIDTransportForwards(t *testing.T) {
	var got string
	upstream := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(RequestIDHeader)
	}))
	defer upstream.Close()

	client := &http.Client{Transport: RequestIDTransport{}}
	req, _ := http.NewRequestWithContext(ContextWithRequestID(context.Background(), "req-42"), http.MethodGet, upstream.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if got != "req-42" {
		t.Fatalf("expected forwarded request id, got %q", got)
	}
}

func TestCORSSubdomainWildcard(t *testing.T) {
	h := WithCORS(CORSPolicy{
		AllowedOrigins: []string{"https://*.masterparty.mx"},
		ExposedHeaders: []string{RequestIDHeader},
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

	cases := map[string]bool{
		"https://app.masterparty.mx": true,
		"https://masterparty.mx":     false,
		"https://evilmasterparty.mx": false,
		"http://app.masterparty.mx":  false,
		"https://a.b.masterparty.mx": true,
	}
	for origin, allowed := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/public/categories", nil)
		req.Header.Set("Origin", origin)
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, req)
		got := rw.Header().Get("Access-Control-Allow-Origin") == origin
		if got != allowed {
			t.Fatalf("origin %s: allowed=%v, want %v", origin, got, allowed)
		}
		if allowed && rw.Header().Get("Access-Control-Expose-Headers") != RequestIDHeader {
			t.Fatalf("origin %s: expose headers missing", origin)
		}
	}
}

func TestCORSAnyOriginForLeadForm(t *testing.T) {
	h := WithCORS(CORSPolicy{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"POST", "OPTIONS"}})(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	req := httptest.NewRequest(http.MethodOptions, "/api/lead", nil)
	req.Header.Set("Origin", "https://landing.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusNoContent || rw.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("unexpected preflight %d %q", rw.Code, rw.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestBodyLimitRejectsDeclaredOversize(t *testing.T) {
	called := false
	h := WithBodyLimit(8)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { called = true }))
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodPost, "/api/lead", strings.NewReader(`{"email":"ana@example.com"}`)))
	if rw.Code != http.StatusRequestEntityTooLarge || called {
		t.Fatalf("expected 413 without calling handler, got %d called=%v", rw.Code, called)
	}
}

func TestRecoverTurnsPanicInto500(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := WithRecover(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("slot index out of range")
	}))
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil))
	if rw.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rw.Code)
	}
}

func TestAccessLevel(t *testing.T) {
	if accessLevel("/readyz", 200) != slog.LevelDebug {
		t.Fatal("probes should log at debug")
	}
	if accessLevel("/readyz", 503) != slog.LevelWarn {
		t.Fatal("failing probes should warn")
	}
	if accessLevel("/api/lead", 201) != slog.LevelInfo {
		t.Fatal("regular requests should log at info")
	}
}

type scriptStub struct {
	count int64
	err   error
}

func (s *scriptStub) result() *redis.Cmd {
	if s.err != nil {
		return redis.NewCmdResult(nil, s.err)
	}
	s.count++
	return redis.NewCmdResult([]interface{}{s.count, int64(1500)}, nil)
}

func (s *scriptStub) Eval(context.Context, string, []string, ...interface{}) *redis.Cmd {
	return s.result()
}

func (s *scriptStub) EvalSha(context.Context, string, []string, ...interface{}) *redis.Cmd {
	return s.result()
}

func (s *scriptStub) EvalRO(context.Context, string, []string, ...interface{}) *redis.Cmd {
	return s.result()
}

func (s *scriptStub) EvalShaRO(context.Context, string, []string, ...interface{}) *redis.Cmd {
	return s.result()
}

func (s *scriptStub) ScriptExists(context.Context, ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult([]bool{true}, nil)
}

func (s *scriptStub) ScriptLoad(context.Context, string) *redis.StringCmd {
	return redis.NewStringResult("sha", nil)
}

func TestRedisRateLimiterMiddleware(t *testing.T) {
	stub := &scriptStub{}
	rl := NewRedisRateLimiter(stub, 1, time.Minute, "gw")
	h := rl.Middleware(nil, true)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/v1/public/categories", nil))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/v1/public/categories", nil))
	if first.Code != http.StatusOK || second.Code != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %d %d", first.Code, second.Code)
	}
	if second.Header().Get("Retry-After") != "2" {
		t.Fatalf("expected Retry-After 2, got %q", second.Header().Get("Retry-After"))
	}

	stub.err = errors.New("connection refused")
	open := httptest.NewRecorder()
	h.ServeHTTP(open, httptest.NewRequest(http.MethodGet, "/", nil))
	if open.Code != http.StatusOK {
		t.Fatalf("fail-open limiter should pass traffic, got %d", open.Code)
	}
	closed := httptest.NewRecorder()
	rl.Middleware(nil, false)(http.NotFoundHandler()).ServeHTTP(closed, httptest.NewRequest(http.MethodGet, "/", nil))
	if closed.Code != http.StatusServiceUnavailable {
		t.Fatalf("fail-closed limiter should answer 503, got %d", closed.Code)
	}
}
