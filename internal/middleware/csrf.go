package middleware

import (
	"crypto/hmac"
	"log/slog"
	"net/http"
	"strings"

	"pairchat/internal/domain"
)

// CSRF rejects state-changing requests whose token does not match the one
// stored with the session. Must run after Auth.
//
// Token sources, checked in order:
// - Header: X-CSRF-Token
// - Header: X-XSRF-Token
// - Form field: csrf_token
func CSRF() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) || isExemptPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			session, ok := GetSession(r.Context())
			if !ok {
				http.Error(w, `{"error":"Not authenticated"}`, http.StatusUnauthorized)
				return
			}

			submitted := extractCSRFToken(r)
			switch {
			case submitted == "":
				logCSRFFailure(r, session.UserID, "missing token")
			case session.CSRFToken == "":
				logCSRFFailure(r, session.UserID, "session has no token")
			case !hmac.Equal([]byte(session.CSRFToken), []byte(submitted)):
				logCSRFFailure(r, session.UserID, "invalid token")
			default:
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, `{"error":"Forbidden"}`, http.StatusForbidden)
		})
	}
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}

func isExemptPath(path string) bool {
	for _, exempt := range []string{"/health", "/metrics", "/ws"} {
		if path == exempt || strings.HasPrefix(path, exempt+"/") {
			return true
		}
	}
	return false
}

func extractCSRFToken(r *http.Request) string {
	if token := r.Header.Get("X-CSRF-Token"); token != "" {
		return token
	}
	if token := r.Header.Get("X-XSRF-Token"); token != "" {
		return token
	}
	// JSON bodies are left unread
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		return r.PostFormValue("csrf_token")
	}
	return ""
}

func logCSRFFailure(r *http.Request, userID domain.UserID, reason string) {
	slog.Warn("CSRF validation failed",
		slog.Int64("user_id", int64(userID)),
		slog.String("reason", reason),
		slog.String("method", r.Method),
		slog.String("path", r.RequestURI),
		slog.String("remote_addr", r.RemoteAddr),
	)
}
