package middleware

import (
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"pairchat/internal/observability"
)

// RequestID assigns a request id via chi and attaches it to the context
// logger
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return chimiddleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := chimiddleware.GetReqID(r.Context())
			w.Header().Set(chimiddleware.RequestIDHeader, reqID)
			next.ServeHTTP(w, r.WithContext(observability.WithRequestID(r.Context(), reqID)))
		}))
	}
}
