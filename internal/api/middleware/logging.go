package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggingMiddleware emits one structured line per request. Server errors log at
// error level and client errors at warn so rejected transfers stand out.
func LoggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rw, r)

			level := zapcore.InfoLevel
			switch {
			case rw.status >= http.StatusInternalServerError:
				level = zapcore.ErrorLevel
			case rw.status >= http.StatusBadRequest:
				level = zapcore.WarnLevel
			}
			if ce := logger.Check(level, "http_request"); ce != nil {
				ce.Write(
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("route", routePattern(r)),
					zap.Int("status", rw.status),
					zap.Int("bytes", rw.bytes),
					zap.String("owner_id", OwnerIDFromContext(r.Context())),
					zap.String("trace_id", TraceIDFromContext(r.Context())),
					zap.Duration("duration", time.Since(start)),
				)
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}
