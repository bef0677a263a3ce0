package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"

	"github.com/ayo6706/ledger-core/internal/api/problem"
	"github.com/ayo6706/ledger-core/internal/idempotency"
	"github.com/ayo6706/ledger-core/internal/observability"
	"go.uber.org/zap"
)

const maxIdempotencyKeyLength = 255

var idempotentMethods = map[string]struct{}{
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodPatch:  {},
	http.MethodDelete: {},
}

// IdempotencyMiddleware enforces the Idempotency-Key contract for mutating requests.
// Keys are scoped to the authenticated owner. Responses with a 5xx status are not
// stored, so the client may retry with the same key.
func IdempotencyMiddleware(store *idempotency.Store, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := idempotentMethods[r.Method]; !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}

			clientKey := r.Header.Get("Idempotency-Key")
			if clientKey == "" {
				observability.IncrementIdempotencyEvent("missing_key")
				problem.Write(w, r, http.StatusBadRequest, problem.Type("idempotency/missing-key"), http.StatusText(http.StatusBadRequest), "Idempotency-Key header is required")
				return
			}
			if len(clientKey) > maxIdempotencyKeyLength {
				problem.Write(w, r, http.StatusBadRequest, problem.Type("idempotency/invalid-key"), http.StatusText(http.StatusBadRequest), "Idempotency-Key is too long")
				return
			}
			key := OwnerIDFromContext(r.Context()) + ":" + clientKey

			bodyBytes, err := io.ReadAll(r.Body)
			if err != nil {
				problem.Write(w, r, http.StatusBadRequest, problem.Type("request/invalid-body"), http.StatusText(http.StatusBadRequest), "Failed to read request body")
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			reqHash := hashRequest(r.Method, r.URL.Path, bodyBytes)
			rec, err := store.Lookup(r.Context(), key, reqHash)
			if err == nil {
				observability.IncrementIdempotencyEvent("replay")
				respondFromRecord(w, rec)
				return
			}
			if errors.Is(err, idempotency.ErrHashMismatch) {
				observability.IncrementIdempotencyEvent("hash_mismatch")
				problem.Write(w, r, http.StatusUnprocessableEntity, problem.Type("idempotency/key-reused"), http.StatusText(http.StatusUnprocessableEntity), "Idempotency-Key was already used for a different request")
				return
			}
			if errors.Is(err, idempotency.ErrInProgress) {
				waitForOriginal(w, r, store, logger, key, reqHash, "replay_after_wait")
				return
			}
			if !errors.Is(err, idempotency.ErrNotFound) {
				observability.IncrementIdempotencyEvent("lookup_error")
				logger.Warn("idempotency lookup failed", zap.Error(err))
			}

			reserved, err := store.Reserve(r.Context(), key, reqHash, r.Method, r.URL.Path)
			if err != nil {
				observability.IncrementIdempotencyEvent("reserve_error")
				logger.Error("idempotency reserve failed", zap.Error(err))
				problem.Write(w, r, http.StatusServiceUnavailable, problem.Type("idempotency/unavailable"), http.StatusText(http.StatusServiceUnavailable), "idempotency unavailable")
				return
			}
			if !reserved {
				waitForOriginal(w, r, store, logger, key, reqHash, "replay_after_reserve")
				return
			}
			observability.IncrementIdempotencyEvent("reserved")

			recorder := &bodyRecorder{ResponseWriter: w}
			completed := false
			defer func() {
				// A panicking handler must not leave the key reserved forever.
				if !completed {
					releaseKey(store, logger, r, key, reqHash)
				}
			}()
			next.ServeHTTP(recorder, r)
			completed = true

			if recorder.status == 0 {
				recorder.status = http.StatusOK
			}
			if recorder.status >= http.StatusInternalServerError {
				observability.IncrementIdempotencyEvent("released")
				releaseKey(store, logger, r, key, reqHash)
				return
			}

			contentType := recorder.Header().Get("Content-Type")
			if contentType == "" {
				contentType = "application/json"
			}
			if _, err := store.Finalize(r.Context(), key, reqHash, recorder.status, recorder.body.Bytes(), contentType); err != nil {
				observability.IncrementIdempotencyEvent("finalize_error")
				logger.Warn("idempotency finalize failed", zap.Error(err), zap.String("key", key))
			} else {
				observability.IncrementIdempotencyEvent("finalized")
			}
		})
	}
}

func waitForOriginal(w http.ResponseWriter, r *http.Request, store *idempotency.Store, logger *zap.Logger, key, reqHash, outcome string) {
	rec, err := store.WaitForCompletion(r.Context(), key, reqHash)
	if err == nil {
		observability.IncrementIdempotencyEvent(outcome)
		respondFromRecord(w, rec)
		return
	}
	if errors.Is(err, idempotency.ErrHashMismatch) {
		observability.IncrementIdempotencyEvent("hash_mismatch")
		problem.Write(w, r, http.StatusUnprocessableEntity, problem.Type("idempotency/key-reused"), http.StatusText(http.StatusUnprocessableEntity), "Idempotency-Key was already used for a different request")
		return
	}
	observability.IncrementIdempotencyEvent("in_progress_conflict")
	logger.Warn("idempotency wait failed", zap.Error(err))
	problem.Write(w, r, http.StatusConflict, problem.Type("idempotency/in-progress"), http.StatusText(http.StatusConflict), "a request with this Idempotency-Key is still being processed")
}

func releaseKey(store *idempotency.Store, logger *zap.Logger, r *http.Request, key, reqHash string) {
	if err := store.Release(r.Context(), key, reqHash); err != nil {
		logger.Warn("idempotency release failed", zap.Error(err), zap.String("key", key))
	}
}

func hashRequest(method, path string, body []byte) string {
	sum := sha256.Sum256(append([]byte(method+"|"+path+"|"), body...))
	return hex.EncodeToString(sum[:])
}

type bodyRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (br *bodyRecorder) WriteHeader(code int) {
	br.status = code
	br.ResponseWriter.WriteHeader(code)
}

func (br *bodyRecorder) Write(b []byte) (int, error) {
	if br.status == 0 {
		br.status = http.StatusOK
	}
	br.body.Write(b)
	return br.ResponseWriter.Write(b)
}

func respondFromRecord(w http.ResponseWriter, rec *idempotency.Record) {
	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set("X-Idempotent-Replay", rec.ServedBy)
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body)
}
