package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/orsa-go/orsa/pkg/api/response"
	"github.com/orsa-go/orsa/pkg/logger"
)

// Recovery turns a handler panic into a 500 response. The panic value is
// logged with the stack but not echoed to the client.
func Recovery(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				requestID := GetRequestID(r.Context())
				log.ErrorContext(r.Context(), "panic recovered",
					"request_id", requestID,
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer,
					"internal server error", requestID)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
