package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy lists the browser origins allowed to call a service. Entries may
// be exact origins, "*" or a subdomain wildcard such as "https://*.masterparty.mx".
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// WithCORS answers preflights and decorates responses for allowed origins.
// An empty origin list disables CORS.
func WithCORS(cfg CORSPolicy) Middleware {
	origins := compileOrigins(cfg.AllowedOrigins)
	if len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	static := http.Header{}
	if v := joinList(cfg.AllowedMethods); v != "" {
		static.Set("Access-Control-Allow-Methods", v)
	}
	if v := joinList(cfg.AllowedHeaders); v != "" {
		static.Set("Access-Control-Allow-Headers", v)
	}
	if v := joinList(cfg.ExposedHeaders); v != "" {
		static.Set("Access-Control-Expose-Headers", v)
	}
	if secs := int(cfg.MaxAge / time.Second); secs > 0 {
		static.Set("Access-Control-Max-Age", strconv.Itoa(secs))
	}
	if cfg.AllowCredentials {
		static.Set("Access-Control-Allow-Credentials", "true")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			allow := origins.match(origin, cfg.AllowCredentials)
			if origin == "" || allow == "" {
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Access-Control-Allow-Origin", allow)
			for k := range static {
				h.Set(k, static.Get(k))
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type originPattern struct {
	any    bool
	exact  string
	scheme string
	suffix string // ".example.com" for "https://*.example.com"
}

type originSet []originPattern

func compileOrigins(raw []string) originSet {
	var set originSet
	for _, o := range raw {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch {
		case o == "":
		case o == "*":
			set = append(set, originPattern{any: true})
		case strings.Contains(o, "://*."):
			scheme, host, _ := strings.Cut(o, "://*")
			set = append(set, originPattern{scheme: strings.ToLower(scheme) + "://", suffix: strings.ToLower(host)})
		default:
			set = append(set, originPattern{exact: strings.ToLower(o)})
		}
	}
	return set
}

// match returns the Access-Control-Allow-Origin value for origin, or "".
func (s originSet) match(origin string, credentials bool) string {
	lower := strings.ToLower(origin)
	for _, p := range s {
		switch {
		case p.any:
			if credentials {
				return origin
			}
			return "*"
		case p.exact != "":
			if lower == p.exact {
				return origin
			}
		default:
			host, ok := strings.CutPrefix(lower, p.scheme)
			if ok && strings.HasSuffix(host, p.suffix) && len(host) > len(p.suffix) {
				return origin
			}
		}
	}
	return ""
}

func joinList(values []string) string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, ", ")
}
