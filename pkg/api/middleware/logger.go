// Package middleware holds the HTTP middleware of the admin API.
package middleware

import (
	"net/http"
	"time"

	"github.com/orsa-go/orsa/pkg/logger"
)

// Logger logs one line per request. Server errors log at error level, client
// errors at warn, the rest at info.
func Logger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := newStatusWriter(w)

			next.ServeHTTP(sw, r)

			ctx := r.Context()
			args := []any{
				"request_id", GetRequestID(ctx),
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"size", sw.size,
				"remote_addr", r.RemoteAddr,
			}
			switch {
			case sw.status >= http.StatusInternalServerError:
				log.ErrorContext(ctx, "http request", args...)
			case sw.status >= http.StatusBadRequest:
				log.WarnContext(ctx, "http request", args...)
			default:
				log.InfoContext(ctx, "http request", args...)
			}
		})
	}
}
