package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"personnel/internal/platform/metrics"
	"personnel/internal/platform/requestctx"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Logger writes one access log line per request and feeds the collector when
// one is configured. The actor is read back from the request after the
// handler chain has run, so it is filled in for authenticated routes.
func Logger(collector *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			actor := &actorSlot{}
			next.ServeHTTP(recorder, r.WithContext(withActorSlot(r.Context(), actor)))

			duration := time.Since(start)
			if collector != nil {
				collector.Record(recorder.status, duration)
			}
			slog.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", recorder.status,
				"durationMs", duration.Milliseconds(),
				"requestId", requestctx.GetRequestID(r.Context()),
				"actor", actor.username,
			)
		})
	}
}
