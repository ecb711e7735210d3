package auth

import (
	"log/slog"
	"net/http"
	"strings"

	id "eventpass/pkg/domain"
	"eventpass/pkg/platform/httputil"
	"eventpass/pkg/requestcontext"
)

// SessionCookieName is the cookie carrying the session token for browser clients.
const SessionCookieName = "session"

// Authenticator turns a raw session token into a verified, non-anonymous user.
type Authenticator interface {
	Authenticate(tokenString string) (id.UserID, error)
}

// TokenFromRequest returns the session token from the Authorization bearer header,
// falling back to the session cookie.
func TokenFromRequest(r *http.Request) string {
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	if c, err := r.Cookie(SessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

// RequireAuth rejects requests without a valid session with 401 unauthorized and
// stores the verified user id in the request context otherwise.
func RequireAuth(authenticator Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := TokenFromRequest(r)
			if token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteErrorTag(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			userID, err := authenticator.Authenticate(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid session",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteErrorTag(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithUserID(ctx, userID)))
		})
	}
}
