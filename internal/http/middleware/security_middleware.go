package middleware

import (
	"net/http"
	"path"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/resumekit/resumekit/internal/http/response"
	"github.com/resumekit/resumekit/internal/observability"
)

func RequestID(next http.Handler) http.Handler { return chimiddleware.RequestID(next) }

var staticSecurityHeaders = map[string]string{
	"X-Content-Type-Options":  "nosniff",
	"X-Frame-Options":         "DENY",
	"Referrer-Policy":         "strict-origin-when-cross-origin",
	"Content-Security-Policy": "default-src 'self'",
}

func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for name, value := range staticSecurityHeaders {
			h.Set(name, value)
		}
		if r.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" {
				h := w.Header()
				if _, ok := allowed[origin]; ok {
					h.Set("Access-Control-Allow-Origin", origin)
					h.Set("Vary", "Origin")
				}
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

var csrfExemptMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodHead:    {},
	http.MethodOptions: {},
}

// CSRF enforces the double-submit check on every mutating request: the
// X-CSRF-Token header must echo the csrf_token cookie.
func CSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, exempt := csrfExemptMethods[strings.ToUpper(r.Method)]; exempt {
			next.ServeHTTP(w, r)
			return
		}
		group := csrfPathGroup(r.URL.Path)
		if outcome := checkCSRFToken(r); outcome != "valid" {
			observability.RecordCSRFValidation(r.Context(), outcome, group)
			response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "invalid csrf token", nil)
			return
		}
		observability.RecordCSRFValidation(r.Context(), "valid", group)
		next.ServeHTTP(w, r)
	})
}

func checkCSRFToken(r *http.Request) string {
	cookie, err := r.Cookie("csrf_token")
	switch {
	case err != nil, cookie.Value == "":
		return "missing_cookie"
	case r.Header.Get("X-CSRF-Token") != cookie.Value:
		return "mismatch"
	default:
		return "valid"
	}
}

// csrfPathGroup collapses paths to a low-cardinality metric label, keeping
// the API resource but not its IDs ("api/auth", "api/resumes").
func csrfPathGroup(rawPath string) string {
	parts := strings.Split(strings.Trim(path.Clean(rawPath), "/"), "/")
	switch {
	case parts[0] == "" || parts[0] == ".":
		return "root"
	case parts[0] == "api" && len(parts) >= 3:
		return "api/" + parts[2]
	default:
		return parts[0]
	}
}
