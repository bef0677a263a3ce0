package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/ayo6706/ledger-core/internal/observability"
	"github.com/go-chi/chi/v5"
)

// MetricsMiddleware records request durations by route pattern. Scrapes and
// probes are skipped so they do not drown out API traffic.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" || strings.HasPrefix(r.URL.Path, "/health/") {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		observability.ObserveHTTP(r.Method, routePattern(r), rw.status, time.Since(start))
	})
}

// routePattern keeps label cardinality bounded: ids in the path collapse to
// their chi pattern and unmatched paths share one label.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
