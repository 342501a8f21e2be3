package api

import (
	"log"
	"net/http"

	"github.com/google/uuid"
)

// RequestLogger logs one line per request tagged with a generated request
// ID, and echoes the ID back in the response headers.
func RequestLogger(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := uuid.NewString()
			w.Header().Set("X-Request-Id", requestID)
			logger.Printf("%s %s (request_id=%s)", r.Method, r.URL.Path, requestID)
			next.ServeHTTP(w, r)
		})
	}
}
