// Package trace assigns each HTTP request an id and logs its outcome
// with timing, keeping rolling counters for the health endpoint.
package trace

import (
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"sem/internal/log"
)

// Middleware handles request tracing and logging.
type Middleware struct {
	totalRequests  atomic.Int64
	lastDurationUS atomic.Int64
}

// Metrics is a snapshot of the rolling counters.
type Metrics struct {
	TotalRequests  int64
	LastDurationUS int64
}

func NewMiddleware() *Middleware {
	return &Middleware{}
}

// Middleware returns HTTP middleware for request tracing. The request
// id is bound to the context logger, so every log line downstream of
// this middleware carries it.
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := uuid.NewString()
		ctx := log.WithAttrs(r.Context(), "request_id", requestID)
		r = r.WithContext(ctx)
		w.Header().Set("X-Request-Id", requestID)

		logger := log.FromContext(ctx)
		logger.InfoContext(ctx, "HTTP request started",
			"method", r.Method,
			"path", r.URL.Path,
			"query", r.URL.RawQuery,
			"remote_addr", r.RemoteAddr)

		m.totalRequests.Add(1)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		m.lastDurationUS.Store(duration.Microseconds())

		level := slogLevelFor(rw.statusCode)
		logger.Log(ctx, level, "HTTP request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", rw.statusCode,
			"duration_ms", duration.Milliseconds())
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func slogLevelFor(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// GetMetrics returns a snapshot of the counters.
func (m *Middleware) GetMetrics() Metrics {
	return Metrics{
		TotalRequests:  m.totalRequests.Load(),
		LastDurationUS: m.lastDurationUS.Load(),
	}
}
