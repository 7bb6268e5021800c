package middleware

import (
	"context"
	"net/http"

	"pairchat/internal/domain"
	"pairchat/internal/observability"
)

type contextKey string

const (
	UserIDKey  contextKey = "user_id"
	SessionKey contextKey = "session"

	// SessionCookie carries the token issued by the login service
	SessionCookie = "session_id"
	// TokenParam carries the token for clients that cannot send cookies
	TokenParam = "token"
)

// Auth resolves the request's session token to a verified user. Only the
// user id and session reach the handlers.
func Auth(sessionRepo domain.SessionRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r)
			if token == "" {
				http.Error(w, `{"error":"Not authenticated"}`, http.StatusUnauthorized)
				return
			}

			session, err := sessionRepo.GetByToken(r.Context(), token)
			if err != nil {
				http.Error(w, `{"error":"Invalid or expired session"}`, http.StatusUnauthorized)
				return
			}

			ctx := WithSession(r.Context(), session)
			ctx = observability.WithUserID(ctx, int64(session.UserID))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return r.URL.Query().Get(TokenParam)
}

func GetUserID(ctx context.Context) (domain.UserID, bool) {
	userID, ok := ctx.Value(UserIDKey).(domain.UserID)
	return userID, ok
}

func GetSession(ctx context.Context) (*domain.Session, bool) {
	session, ok := ctx.Value(SessionKey).(*domain.Session)
	return session, ok
}

func WithUserID(ctx context.Context, userID domain.UserID) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithSession stores session and its user id
func WithSession(ctx context.Context, session *domain.Session) context.Context {
	ctx = context.WithValue(ctx, SessionKey, session)
	return WithUserID(ctx, session.UserID)
}
