package httpapi

import (
	"net/http"
	"strings"
	"time"

	"rinkdesk/backend/internal/logger"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// requestLogger tags each request with an id (honouring X-Request-ID) and
// writes one access log line when it finishes.
func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" || len(requestID) > 64 {
			requestID = logger.NewRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)

		writer := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		ctx := logger.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(writer, r.WithContext(ctx))

		log := logger.FromContext(ctx, a.logger)
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if writer.status >= http.StatusInternalServerError {
			log.ErrorContext(ctx, "request", attrs...)
			return
		}
		log.InfoContext(ctx, "request", attrs...)
	})
}
