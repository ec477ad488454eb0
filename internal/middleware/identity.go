package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/Jujubee-LLM/signature-ai/internal/domain"
)

const (
	// UserIDHeader lets API clients pin their own opaque identifier.
	UserIDHeader = "X-User-ID"

	// UserIDCookie carries the minted identifier for browser callers.
	UserIDCookie = "suid"

	cookieMaxAge = 365 * 24 * 60 * 60
)

const userIDKey contextKey = "user_id"

// Identity resolves the anonymous user identifier for a request: an explicit
// header wins, then the session cookie, otherwise a fresh UUID is minted and
// set as a cookie. A header that fails validation is the caller's mistake and
// gets a 400; a bad cookie is silently replaced.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get(UserIDHeader); id != "" {
			if err := domain.ValidateUserID(id); err != nil {
				http.Error(w, "invalid user id", http.StatusBadRequest)
				return
			}
			next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), id)))
			return
		}

		if c, err := r.Cookie(UserIDCookie); err == nil {
			if domain.ValidateUserID(c.Value) == nil {
				next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), c.Value)))
				return
			}
		}

		id := uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     UserIDCookie,
			Value:    id,
			Path:     "/",
			MaxAge:   cookieMaxAge,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), id)))
	})
}

func withUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserIDFromContext returns the identifier Identity resolved for the request.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}
