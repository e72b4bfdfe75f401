package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/resumekit/resumekit/internal/health"
	"github.com/resumekit/resumekit/internal/http/handler"
	"github.com/resumekit/resumekit/internal/http/middleware"
	"github.com/resumekit/resumekit/internal/http/response"
	"github.com/resumekit/resumekit/internal/security"
)

// maxPhotoUpload caps resume photo uploads; every other request is bound by
// the global 1MB body limit.
const maxPhotoUpload = 6 << 20

type Dependencies struct {
	AuthHandler    *handler.AuthHandler
	AccountHandler *handler.AccountHandler
	ResumeHandler  *handler.ResumeHandler
	JWTManager     *security.JWTManager

	CORSOrigins []string

	APIRateLimitRPM            int
	AuthRateLimitRPM           int
	PasswordForgotRateLimitRPM int

	// Optional overrides; when nil the router builds local fixed-window
	// limiters from the RPM values above.
	GlobalRateLimiter func(http.Handler) http.Handler
	AuthRateLimiter   func(http.Handler) http.Handler
	ForgotRateLimiter func(http.Handler) http.Handler

	Readiness      *health.ProbeRunner
	EnableOTelHTTP bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(1 << 20))
	if dep.GlobalRateLimiter != nil {
		r.Use(dep.GlobalRateLimiter)
	} else {
		r.Use(middleware.NewRateLimiter(dep.APIRateLimitRPM, time.Minute, "global").Middleware())
	}

	authLimiter := dep.AuthRateLimiter
	if authLimiter == nil {
		authLimiter = middleware.NewRateLimiter(dep.AuthRateLimitRPM, time.Minute, "auth").Middleware()
	}
	forgotLimiter := dep.ForgotRateLimiter
	if forgotLimiter == nil {
		forgotLimiter = middleware.NewRateLimiter(dep.PasswordForgotRateLimitRPM, time.Minute, "password_forgot").Middleware()
	}
	requireAuth := middleware.Auth(dep.JWTManager)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(authLimiter).Get("/google/login", dep.AuthHandler.GoogleLogin)
			r.With(authLimiter).Get("/google/callback", dep.AuthHandler.GoogleCallback)
			r.With(authLimiter).Post("/register", dep.AuthHandler.Register)
			r.With(authLimiter).Post("/login", dep.AuthHandler.Login)
			r.With(authLimiter).Post("/verify/request", dep.AuthHandler.VerifyRequest)
			r.With(authLimiter).Post("/verify/confirm", dep.AuthHandler.VerifyConfirm)
			r.With(forgotLimiter).Post("/password/forgot", dep.AuthHandler.ForgotPassword)
			r.With(authLimiter).Post("/password/reset", dep.AuthHandler.ResetPassword)
			r.Group(func(r chi.Router) {
				r.Use(middleware.CSRF)
				r.With(authLimiter).Post("/refresh", dep.AuthHandler.Refresh)
				r.With(requireAuth).Post("/logout", dep.AuthHandler.Logout)
				r.With(requireAuth, authLimiter).Post("/password/change", dep.AuthHandler.ChangePassword)
			})
		})

		r.With(requireAuth).Get("/me", dep.AccountHandler.Me)
		r.With(requireAuth).Get("/me/sessions", dep.AccountHandler.Sessions)
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(middleware.CSRF)
			r.Delete("/me/sessions/{session_id}", dep.AccountHandler.RevokeSession)
			r.Post("/me/sessions/revoke-others", dep.AccountHandler.RevokeOtherSessions)
		})

		r.Route("/resumes", func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/", dep.ResumeHandler.List)
			r.Get("/{id}", dep.ResumeHandler.Get)
			r.Get("/{id}/photo", dep.ResumeHandler.PhotoURL)
			r.Group(func(r chi.Router) {
				r.Use(middleware.CSRF)
				r.Post("/", dep.ResumeHandler.Create)
				r.Put("/{id}", dep.ResumeHandler.Update)
				r.Delete("/{id}", dep.ResumeHandler.Delete)
				// Photo uploads need a higher body limit than the global default.
				r.With(middleware.BodyLimit(maxPhotoUpload)).Post("/{id}/photo", dep.ResumeHandler.UploadPhoto)
				r.Delete("/{id}/photo", dep.ResumeHandler.DeletePhoto)
			})
		})
	})

	if dep.EnableOTelHTTP {
		return otelhttp.NewHandler(r, "http.server")
	}
	return r
}
