// Package routes maps the public API onto the backend services.
package routes

import (
	"context"
	"embed"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/masterparty/platform/libs/auth"
)

//go:embed assets/openapi.yaml
var assets embed.FS

type Upstreams struct {
	Lead         *url.URL
	Auth         *url.URL
	Catalog      *url.URL
	Booking      *url.URL
	Notification *url.URL
}

type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Claims, error)
}

type Config struct {
	Upstreams Upstreams
	Verifier  TokenVerifier
	// Transport carries proxied requests; nil uses http.DefaultTransport.
	Transport http.RoundTripper
	Logger    *slog.Logger
}

func Register(mux *http.ServeMux, cfg Config) {
	proxy := func(target *url.URL) http.Handler {
		p := httputil.NewSingleHostReverseProxy(target)
		p.Transport = cfg.Transport
		p.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			cfg.Logger.Error("upstream error", "err", err, "upstream", target.Host, "path", r.URL.Path)
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
		}
		return p
	}
	lead := proxy(cfg.Upstreams.Lead)
	authSvc := proxy(cfg.Upstreams.Auth)
	catalog := proxy(cfg.Upstreams.Catalog)
	booking := proxy(cfg.Upstreams.Booking)
	notification := proxy(cfg.Upstreams.Notification)

	// optional identity: a bad token is dropped, not rejected
	open := func(h http.Handler) http.Handler { return identify(cfg.Verifier, false, h) }
	// identity checked when present
	checked := func(h http.Handler) http.Handler { return identify(cfg.Verifier, true, h) }
	user := func(h http.Handler) http.Handler { return checked(requireUser(h)) }
	role := func(h http.Handler, roles ...string) http.Handler {
		return checked(requireUser(requireRole(h, roles...)))
	}

	mux.Handle("/api/lead", open(lead))
	mux.Handle("POST /api/v1/leads", open(lead))
	mux.Handle("GET /api/v1/leads", role(lead, auth.RoleAdmin))

	handlePrefix(mux, "/api/v1/auth", open(authSvc))
	mux.Handle("/.well-known/jwks.json", open(authSvc))

	mux.Handle("GET /api/v1/public/services/{id}/availability", open(booking))
	mux.Handle("/api/v1/public/", open(catalog))

	handlePrefix(mux, "/api/v1/providers", user(catalog))
	handlePrefix(mux, "/api/v1/services", user(catalog))
	handlePrefix(mux, "/api/v1/availability", role(catalog, auth.RoleProvider))
	handlePrefix(mux, "/api/v1/admin/categories", role(catalog, auth.RoleAdmin))
	handlePrefix(mux, "/api/v1/admin/notifications", role(notification, auth.RoleAdmin))

	handlePrefix(mux, "/api/v1/bookings", user(booking))
	handlePrefix(mux, "/api/v1/vendor", role(booking, auth.RoleProvider))

	mux.Handle("/internal/", http.NotFoundHandler())

	mux.HandleFunc("GET /openapi", func(w http.ResponseWriter, _ *http.Request) {
		data, err := assets.ReadFile("assets/openapi.yaml")
		if err != nil {
			http.Error(w, "openapi not available", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	})
}

func handlePrefix(mux *http.ServeMux, prefix string, handler http.Handler) {
	mux.Handle(prefix, handler)
	mux.Handle(prefix+"/", handler)
}

// identify replaces identity headers with the verified claims of the bearer
// token. Without a token the headers are stripped. With strict set an invalid
// token is a 401; otherwise the request continues anonymously.
func identify(v TokenVerifier, strict bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.StripIdentityHeaders(r.Header)
		token, ok := auth.BearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := v.Verify(r.Context(), token)
		if err != nil {
			if strict {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
			return
		}
		auth.SetIdentityHeaders(r.Header, claims)
		next.ServeHTTP(w, r)
	})
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.IdentityFromRequest(r).UserID == "" {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireRole admits callers holding any of roles; admins are always admitted.
func requireRole(next http.Handler, roles ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := auth.IdentityFromRequest(r)
		if id.HasRole(auth.RoleAdmin) {
			next.ServeHTTP(w, r)
			return
		}
		for _, role := range roles {
			if id.HasRole(role) {
				next.ServeHTTP(w, r)
				return
			}
		}
		http.Error(w, "forbidden", http.StatusForbidden)
	})
}
