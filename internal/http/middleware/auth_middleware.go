package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/resumekit/resumekit/internal/http/response"
	"github.com/resumekit/resumekit/internal/observability"
	"github.com/resumekit/resumekit/internal/security"
)

type contextKey string

const ClaimsContextKey contextKey = "claims"

// Auth accepts the access token from the auth cookie or, failing that, a
// bearer header, and stores the parsed claims on the request context.
func Auth(jwtMgr *security.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			source := "cookie"
			raw := security.GetCookie(r, "access_token")
			if raw == "" {
				source = "bearer"
				auth := r.Header.Get("Authorization")
				if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
					raw = strings.TrimSpace(auth[7:])
				}
			}
			if raw == "" {
				observability.RecordAccessTokenValidation(r.Context(), "missing", source)
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
				return
			}
			claims, err := jwtMgr.ParseAccessToken(raw)
			if err != nil {
				observability.RecordAccessTokenValidation(r.Context(), "invalid", source)
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token", nil)
				return
			}
			observability.RecordAccessTokenValidation(r.Context(), "valid", source)
			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ClaimsFromContext(ctx context.Context) (*security.Claims, bool) {
	c, ok := ctx.Value(ClaimsContextKey).(*security.Claims)
	return c, ok
}

// AccountIDFromContext decodes the subject of the authenticated claims.
func AccountIDFromContext(ctx context.Context) (uint, bool) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}
