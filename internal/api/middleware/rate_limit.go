package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ayo6706/ledger-core/internal/api/problem"
	"github.com/go-chi/httprate"
)

// PublicRateLimiter limits unauthenticated routes per client IP.
func PublicRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(tooManyRequests(fmt.Sprintf("rate limit of %d req/s exceeded for this IP", rps))),
	)
}

// AuthRateLimiter limits authenticated routes per owner, falling back to the IP
// when the request carries no owner.
func AuthRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(ownerOrIP),
		httprate.WithLimitHandler(tooManyRequests(fmt.Sprintf("rate limit of %d req/s exceeded for this owner", rps))),
	)
}

func ownerOrIP(r *http.Request) (string, error) {
	if ownerID := OwnerIDFromContext(r.Context()); ownerID != "" {
		return "owner:" + ownerID, nil
	}
	return httprate.KeyByIP(r)
}

func tooManyRequests(detail string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		problem.Write(w, r, http.StatusTooManyRequests, problem.Type("rate-limit-exceeded"),
			http.StatusText(http.StatusTooManyRequests), detail)
	}
}
