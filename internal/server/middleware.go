package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mailpeek/mailpeek/internal/instrumentation"
	"github.com/mailpeek/mailpeek/internal/logging"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrumented wraps a handler with request correlation, tracing,
// metrics, and access logging. The operation name doubles as the metric
// path label so cardinality stays bounded to the route table.
func (s *Server) instrumented(operation string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)

		ctx, span := instrumentation.StartOperationSpan(r.Context(), operation)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r.WithContext(ctx))

		duration := time.Since(start)
		if rec.status >= http.StatusInternalServerError {
			instrumentation.SetSpanError(span, fmt.Errorf("http %d", rec.status))
		} else {
			instrumentation.SetSpanSuccess(span)
		}

		s.metrics.RecordHTTPRequest(ctx, r.Method, r.URL.Path, rec.status, duration)
		s.logger.Info("request handled",
			logging.RequestID(requestID),
			logging.Operation(operation),
			slog.String("method", r.Method),
			slog.Int("status", rec.status),
			slog.Duration("duration", duration),
		)
	})
}
