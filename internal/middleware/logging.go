package middleware

import (
	"net/http"
	"time"

	"github.com/content-platform/rating-service/internal/platform/logger"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// statusRecorder captures the response status code for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RequestLogger returns middleware that logs each request with its
// duration, status, and trace identifiers.
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startTime := time.Now()

			span := trace.SpanFromContext(r.Context())
			traceID := span.SpanContext().TraceID().String()
			spanID := span.SpanContext().SpanID().String()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			duration := time.Since(startTime)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration_ms", duration),
				zap.String("trace_id", traceID),
				zap.String("span_id", spanID),
			}
			if userID, _ := r.Context().Value(UserIDKey).(string); userID != "" {
				fields = append(fields, zap.String("user_id", userID))
			}

			if rec.status >= http.StatusInternalServerError {
				log.Error("HTTP request failed", fields...)
			} else {
				log.Info("HTTP request completed", fields...)
			}
		})
	}
}
