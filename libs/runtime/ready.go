package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// CheckTimeout bounds each dependency probe run by /readyz.
const CheckTimeout = 2 * time.Second

// ReadyCheck is a named dependency probe for /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

type readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewBaseMuxWithReady serves /healthz and a /readyz that probes checks concurrently.
func NewBaseMuxWithReady(checks ...ReadyCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeReadiness(w, http.StatusOK, readiness{Status: "ok"})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		report, ok := probe(r.Context(), checks)
		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}
		writeReadiness(w, status, report)
	})
	return mux
}

func probe(ctx context.Context, checks []ReadyCheck) (readiness, bool) {
	results := make([]string, len(checks))
	var g errgroup.Group
	for i, c := range checks {
		if c.Check == nil {
			results[i] = "ok"
			continue
		}
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, CheckTimeout)
			defer cancel()
			if err := c.Check(cctx); err != nil {
				results[i] = err.Error()
				return nil
			}
			results[i] = "ok"
			return nil
		})
	}
	_ = g.Wait()

	report := readiness{Status: "ok"}
	ok := true
	for i, c := range checks {
		name := c.Name
		if name == "" {
			name = "dependency"
		}
		if report.Checks == nil {
			report.Checks = make(map[string]string, len(checks))
		}
		report.Checks[name] = results[i]
		if results[i] != "ok" {
			ok = false
		}
	}
	if !ok {
		report.Status = "unavailable"
	}
	return report, ok
}

func writeReadiness(w http.ResponseWriter, status int, body readiness) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
