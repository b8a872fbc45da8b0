package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/dental-practice-portal/internal/logging"
	"github.com/hackgods/dental-practice-portal/internal/metrics"
	"github.com/hackgods/dental-practice-portal/internal/tenancy"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// OrganizationHeader carries the tenant every scoped route operates in.
const OrganizationHeader = "X-Organization-ID"

// RequestIDMiddleware adds a unique request ID to each request context
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggingMiddleware logs each request and records its latency under the
// matched route pattern.
func LoggingMiddleware(logger *logging.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	log := logger.WithComponent("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}
			m.ObserveHTTP(r.Method, route, wrapped.statusCode, duration.Seconds())

			entry := log.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      wrapped.statusCode,
				"duration_ms": duration.Milliseconds(),
				"request_id":  GetRequestID(r.Context()),
			})
			if wrapped.statusCode >= http.StatusInternalServerError {
				entry.Error("request failed")
				return
			}
			entry.Info("request handled")
		})
	}
}

// TenancyMiddleware scopes the request to the organization named in the
// X-Organization-ID header.
func TenancyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(OrganizationHeader)
		if raw == "" {
			writeError(w, http.StatusBadRequest, "missing_organization", OrganizationHeader+" header is required")
			return
		}
		orgID, err := uuid.Parse(raw)
		if err != nil || orgID == uuid.Nil {
			writeError(w, http.StatusBadRequest, "invalid_organization", OrganizationHeader+" must be a valid UUID")
			return
		}
		next.ServeHTTP(w, r.WithContext(tenancy.WithOrganization(r.Context(), orgID)))
	})
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
