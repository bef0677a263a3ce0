package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ayo6706/ledger-core/internal/api/middleware"
	"github.com/ayo6706/ledger-core/internal/api/problem"
	"github.com/ayo6706/ledger-core/internal/domain"
	"github.com/ayo6706/ledger-core/internal/models"
	"github.com/ayo6706/ledger-core/internal/service"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// retryAfterSeconds is advertised when a transfer lost a lock race and can be retried.
const retryAfterSeconds = "1"

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

func requestActor(r *http.Request) (uuid.UUID, bool, error) {
	ownerID := middleware.OwnerIDFromContext(r.Context())
	if ownerID == "" {
		return uuid.Nil, false, errors.New("missing owner in auth context")
	}

	actorID, err := uuid.Parse(ownerID)
	if err != nil {
		return uuid.Nil, false, errors.New("invalid owner_id in auth context")
	}

	return actorID, middleware.RoleFromContext(r.Context()) == domain.RoleAdmin, nil
}

type errorMapping struct {
	status     int
	slug       string
	message    string
	retryAfter bool
}

// mapError classifies a service error. ok is false for unexpected failures.
func mapError(err error) (errorMapping, bool) {
	switch {
	case errors.Is(err, models.ErrAccountNotFound):
		return errorMapping{status: http.StatusNotFound, slug: "account/not-found", message: err.Error()}, true
	case errors.Is(err, models.ErrNotFound):
		return errorMapping{status: http.StatusNotFound, slug: "not-found", message: "resource not found"}, true
	case errors.Is(err, models.ErrInvalidAmount):
		return errorMapping{status: http.StatusBadRequest, slug: "transfer/invalid-amount", message: err.Error()}, true
	case errors.Is(err, models.ErrSelfTransfer):
		return errorMapping{status: http.StatusBadRequest, slug: "transfer/self-transfer", message: err.Error()}, true
	case errors.Is(err, models.ErrInsufficientFunds):
		return errorMapping{status: http.StatusBadRequest, slug: "transfer/insufficient-funds", message: err.Error()}, true
	case errors.Is(err, models.ErrConcurrencyConflict):
		return errorMapping{status: http.StatusConflict, slug: "transfer/concurrency-conflict", message: err.Error()}, true
	case errors.Is(err, models.ErrLockTimeout):
		return errorMapping{status: http.StatusServiceUnavailable, slug: "transfer/lock-timeout", message: "account is busy, retry shortly", retryAfter: true}, true
	case errors.Is(err, models.ErrDeadlock):
		return errorMapping{status: http.StatusServiceUnavailable, slug: "transfer/deadlock", message: "transfer was aborted by the database, retry shortly", retryAfter: true}, true
	case errors.Is(err, models.ErrDuplicateEmail):
		return errorMapping{status: http.StatusConflict, slug: "owner/duplicate-email", message: err.Error()}, true
	case errors.Is(err, models.ErrDuplicateOwner):
		return errorMapping{status: http.StatusConflict, slug: "owner/duplicate-account", message: err.Error()}, true
	case errors.Is(err, service.ErrUnsupportedStrategy):
		return errorMapping{status: http.StatusBadRequest, slug: "transfer/unsupported-strategy", message: err.Error()}, true
	case errors.Is(err, service.ErrValidation):
		return errorMapping{status: http.StatusBadRequest, slug: "request/validation", message: err.Error()}, true
	case errors.Is(err, service.ErrOutboxEventNotFailed):
		return errorMapping{status: http.StatusConflict, slug: "outbox/not-failed", message: err.Error()}, true
	case errors.Is(err, domain.ErrMalformedAmount), errors.Is(err, domain.ErrAmountPrecision), errors.Is(err, domain.ErrAmountTooLarge):
		return errorMapping{status: http.StatusBadRequest, slug: "request/invalid-amount", message: err.Error()}, true
	}
	return errorMapping{}, false
}

// respondServiceError maps err onto a problem response. Unexpected failures are
// logged and answered with a generic 500.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error, logMsg string, fields ...zap.Field) {
	m, ok := mapError(err)
	if !ok {
		fields = append(fields, zap.Error(err), zap.String("trace_id", middleware.TraceIDFromContext(r.Context())))
		zap.L().Error(logMsg, fields...)
		RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "internal server error")
		return
	}
	if m.retryAfter {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	RespondError(w, r, m.status, m.slug, m.message)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
