package routes

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/masterparty/platform/libs/auth"
)

const secret = "gateway-secret"

type seen struct {
	Upstream string `json:"upstream"`
	Path     string `json:"path"`
	UserID   string `json:"user_id"`
	Roles    string `json:"roles"`
}

func upstream(t *testing.T, name string) *url.URL {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(seen{
			Upstream: name,
			Path:     r.URL.Path,
			UserID:   r.Header.Get(auth.HeaderUserID),
			Roles:    r.Header.Get(auth.HeaderRoles),
		})
	}))
	t.Cleanup(srv.Close)
	u, _ := url.Parse(srv.URL)
	return u
}

func newGateway(t *testing.T) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	Register(mux, Config{
		Upstreams: Upstreams{
			Lead:         upstream(t, "lead"),
			Auth:         upstream(t, "auth"),
			Catalog:      upstream(t, "catalog"),
			Booking:      upstream(t, "booking"),
			Notification: upstream(t, "notification"),
		},
		Verifier: auth.Verifier{Secret: secret},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return mux
}

func token(t *testing.T, roles ...string) string {
	t.Helper()
	tok, err := auth.SignHS256(auth.Claims{
		Sub:   "user-1",
		Roles: roles,
		Iat:   time.Now().Unix(),
		Exp:   time.Now().Add(time.Hour).Unix(),
	}, secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func call(mux *http.ServeMux, method, path, bearer string, headers ...string) (*httptest.ResponseRecorder, seen) {
	req := httptest.NewRequest(method, path, strings.NewReader("{}"))
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	var s seen
	if rec.Code == http.StatusOK {
		_ = json.Unmarshal(rec.Body.Bytes(), &s)
	}
	return rec, s
}

func TestRouting(t *testing.T) {
	mux := newGateway(t)
	client := token(t, auth.RoleClient)
	vendor := token(t, auth.RoleClient, auth.RoleProvider)
	admin := token(t, auth.RoleClient, auth.RoleAdmin)

	tests := []struct {
		method   string
		path     string
		bearer   string
		status   int
		upstream string
	}{
		{http.MethodPost, "/api/lead", "", http.StatusOK, "lead"},
		{http.MethodPost, "/api/v1/leads", "", http.StatusOK, "lead"},
		{http.MethodGet, "/api/v1/leads", "", http.StatusUnauthorized, ""},
		{http.MethodGet, "/api/v1/leads", client, http.StatusForbidden, ""},
		{http.MethodGet, "/api/v1/leads", admin, http.StatusOK, "lead"},
		{http.MethodPost, "/api/v1/auth/login", "", http.StatusOK, "auth"},
		{http.MethodGet, "/.well-known/jwks.json", "", http.StatusOK, "auth"},
		{http.MethodGet, "/api/v1/public/services", "", http.StatusOK, "catalog"},
		{http.MethodGet, "/api/v1/public/services/s-1", "", http.StatusOK, "catalog"},
		{http.MethodGet, "/api/v1/public/services/s-1/availability", "", http.StatusOK, "booking"},
		{http.MethodPost, "/api/v1/providers", "", http.StatusUnauthorized, ""},
		{http.MethodPost, "/api/v1/providers", client, http.StatusOK, "catalog"},
		{http.MethodPut, "/api/v1/services/s-1", vendor, http.StatusOK, "catalog"},
		{http.MethodGet, "/api/v1/availability/blocks", client, http.StatusForbidden, ""},
		{http.MethodGet, "/api/v1/availability/blocks", vendor, http.StatusOK, "catalog"},
		{http.MethodPost, "/api/v1/admin/categories", vendor, http.StatusForbidden, ""},
		{http.MethodPost, "/api/v1/admin/categories", admin, http.StatusOK, "catalog"},
		{http.MethodGet, "/api/v1/admin/notifications", admin, http.StatusOK, "notification"},
		{http.MethodPost, "/api/v1/bookings", client, http.StatusOK, "booking"},
		{http.MethodGet, "/api/v1/bookings/mine", "", http.StatusUnauthorized, ""},
		{http.MethodPost, "/api/v1/vendor/bookings/b-1/accept", client, http.StatusForbidden, ""},
		{http.MethodPost, "/api/v1/vendor/bookings/b-1/accept", vendor, http.StatusOK, "booking"},
		{http.MethodGet, "/api/v1/vendor/bookings", admin, http.StatusOK, "booking"},
		{http.MethodGet, "/internal/v1/services/s-1/booking-context", admin, http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		rec, got := call(mux, tt.method, tt.path, tt.bearer)
		if rec.Code != tt.status {
			t.Fatalf("%s %s: expected %d, got %d (%s)", tt.method, tt.path, tt.status, rec.Code, rec.Body.String())
		}
		if tt.upstream != "" && (got.Upstream != tt.upstream || got.Path != tt.path) {
			t.Fatalf("%s %s: routed to %+v, want %s", tt.method, tt.path, got, tt.upstream)
		}
	}
}

func TestIdentityHeaders(t *testing.T) {
	mux := newGateway(t)

	// forged headers never reach a service
	_, got := call(mux, http.MethodGet, "/api/v1/public/services", "", auth.HeaderUserID, "forged", auth.HeaderRoles, "admin")
	if got.UserID != "" || got.Roles != "" {
		t.Fatalf("identity headers leaked: %+v", got)
	}

	_, got = call(mux, http.MethodPost, "/api/v1/bookings", token(t, auth.RoleClient), auth.HeaderUserID, "forged")
	if got.UserID != "user-1" || got.Roles != auth.RoleClient {
		t.Fatalf("expected verified identity, got %+v", got)
	}

	// a bad token is a 401 on protected routes and ignored on open ones
	if rec, _ := call(mux, http.MethodPost, "/api/v1/bookings", "garbage"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	rec, got := call(mux, http.MethodPost, "/api/v1/auth/refresh", "garbage")
	if rec.Code != http.StatusOK || got.UserID != "" {
		t.Fatalf("refresh with stale token should pass anonymously, got %d %+v", rec.Code, got)
	}
}

func TestOpenAPI(t *testing.T) {
	mux := newGateway(t)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/openapi", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/api/v1/bookings") {
		t.Fatalf("unexpected openapi response %d", rec.Code)
	}
}

func TestUpstreamDown(t *testing.T) {
	dead, _ := url.Parse("http://127.0.0.1:1")
	mux := http.NewServeMux()
	Register(mux, Config{
		Upstreams: Upstreams{Lead: dead, Auth: dead, Catalog: dead, Booking: dead, Notification: dead},
		Verifier:  auth.Verifier{Secret: secret},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/services", nil).WithContext(context.Background())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}
