package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/tablecode/tablecode/internal/apperr"
	"github.com/tablecode/tablecode/internal/session"
)

type contextKey string

const ownerSessionKey contextKey = "owner_session"

// OwnerSession extracts the verified owner identity set by OwnerAuth.
func OwnerSession(ctx context.Context) (*session.OwnerSession, bool) {
	s, ok := ctx.Value(ownerSessionKey).(*session.OwnerSession)
	return s, ok
}

// OwnerAuth verifies the Bearer token and loads the owner session into the
// request context. Suspended tenants get 403, everything else invalid
// collapses to 401.
func OwnerAuth(issuer *session.OwnerIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || token == "" {
				writeAuthError(w, apperr.Unauthorized())
				return
			}

			sess, err := issuer.Verify(r.Context(), token)
			if err != nil {
				writeAuthError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), ownerSessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminAuth requires both the HMAC session cookie and the CSRF marker
// header. The cookie proves the key was presented once; the header proves
// the request came from our own frontend code, not a cross-site form.
func AdminAuth(admin *session.AdminSession) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(session.CSRFHeader) != session.CSRFHeaderValue {
				writeAuthError(w, apperr.Forbidden("forbidden"))
				return
			}

			cookie, err := r.Cookie(session.AdminCookieName)
			if err != nil {
				writeAuthError(w, apperr.Forbidden("forbidden"))
				return
			}
			if err := admin.VerifyCookie(cookie.Value); err != nil {
				writeAuthError(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, err error) {
	status := http.StatusUnauthorized
	msg := "invalid credentials"
	if e, ok := apperr.As(err); ok && e.Kind == apperr.KindForbidden {
		status = http.StatusForbidden
		msg = e.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
