package di

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/resumekit/resumekit/internal/app"
	"github.com/resumekit/resumekit/internal/config"
	"github.com/resumekit/resumekit/internal/database"
	"github.com/resumekit/resumekit/internal/health"
	"github.com/resumekit/resumekit/internal/http/handler"
	"github.com/resumekit/resumekit/internal/http/middleware"
	"github.com/resumekit/resumekit/internal/http/router"
	"github.com/resumekit/resumekit/internal/observability"
	"github.com/resumekit/resumekit/internal/repository"
	"github.com/resumekit/resumekit/internal/security"
	"github.com/resumekit/resumekit/internal/service"
)

var ConfigSet = wire.NewSet(config.Load)

var ObservabilitySet = wire.NewSet(
	provideObservabilityRuntime,
	provideAppLogger,
)

var RuntimeInfraSet = wire.NewSet(
	provideRuntimeDB,
	provideRedisClient,
	provideReadinessProbeRunner,
)

var RepositorySet = wire.NewSet(
	repository.NewAccountRepository,
	repository.NewSessionRepository,
	repository.NewResumeRepository,
)

var SecuritySet = wire.NewSet(
	provideJWTManager,
	provideCookieManager,
	provideVerificationSigner,
)

var ServiceSet = wire.NewSet(
	provideVerificationIssuer,
	provideTokenService,
	service.NewDevEmailNotifier,
	wire.Bind(new(service.EmailNotifier), new(*service.DevEmailNotifier)),
	service.NewAccountSecurityService,
	provideOAuthService,
	provideAuthAbuseGuard,
	provideStorageService,
	service.NewResumeService,
)

var HTTPSet = wire.NewSet(
	provideAuthHandler,
	handler.NewAccountHandler,
	handler.NewResumeHandler,
	provideRouterDependencies,
	router.NewRouter,
	provideHTTPServer,
)

var AppSet = wire.NewSet(app.New)

// AppProviders is the full provider graph behind InitializeApp.
var AppProviders = wire.NewSet(
	ConfigSet,
	ObservabilitySet,
	RuntimeInfraSet,
	RepositorySet,
	SecuritySet,
	ServiceSet,
	HTTPSet,
	AppSet,
)

func provideObservabilityRuntime(cfg *config.Config) (*observability.Runtime, error) {
	bootstrapLogger := observability.NewBootstrapLogger(cfg)
	return observability.InitRuntime(context.Background(), cfg, bootstrapLogger)
}

func provideAppLogger(cfg *config.Config, runtime *observability.Runtime) *slog.Logger {
	return observability.InitLogger(cfg, runtime.LoggerProvider)
}

func provideRuntimeDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	if _, err := database.Seed(db, cfg.DemoAccountEmail); err != nil {
		return nil, err
	}
	return db, nil
}

func provideRedisClient(cfg *config.Config, logger *slog.Logger) redis.UniversalClient {
	if !cfg.RateLimitRedisEnabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	observability.InstrumentRedisClient(client, logger)
	return client
}

func provideReadinessProbeRunner(cfg *config.Config, db *gorm.DB, redisClient redis.UniversalClient) *health.ProbeRunner {
	checkers := make([]health.Checker, 0, 2)
	if c := health.NewDBChecker(db); c != nil {
		checkers = append(checkers, c)
	}
	if cfg.RateLimitRedisEnabled {
		if c := health.NewRedisChecker(redisClient); c != nil {
			checkers = append(checkers, c)
		}
	}
	return health.NewProbeRunner(cfg.ReadinessProbeTimeout, cfg.ServerStartGracePeriod, checkers...)
}

func provideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessSecret, cfg.JWTRefreshSecret)
}

func provideCookieManager(cfg *config.Config) *security.CookieManager {
	return security.NewCookieManager(cfg.CookieDomain, cfg.CookieSecure, cfg.CookieSameSite)
}

func provideVerificationSigner(cfg *config.Config) *security.VerificationSigner {
	return security.NewVerificationSigner(cfg.JWTIssuer, cfg.VerificationSecret)
}

func provideVerificationIssuer(cfg *config.Config, signer *security.VerificationSigner) *service.VerificationIssuer {
	return service.NewVerificationIssuer(signer, cfg.VerificationTTL, cfg.VerificationCooldown)
}

func provideTokenService(cfg *config.Config, jwt *security.JWTManager, sessionRepo repository.SessionRepository) *service.TokenService {
	return service.NewTokenService(jwt, sessionRepo, cfg.RefreshTokenPepper, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
}

// provideOAuthService returns nil when Google sign-in is switched off; the
// handler answers 404 for the Google routes in that case.
func provideOAuthService(cfg *config.Config, accounts *service.AccountSecurityService) *service.OAuthService {
	if !cfg.AuthGoogleEnabled {
		return nil
	}
	return service.NewOAuthService(service.NewGoogleOAuthProvider(cfg), accounts)
}

func provideAuthAbuseGuard(cfg *config.Config, redisClient redis.UniversalClient) service.AuthAbuseGuard {
	policy := service.AuthAbusePolicy{
		FreeAttempts: cfg.AbuseGuardFreeAttempts,
		BaseDelay:    cfg.AbuseGuardBaseDelay,
		MaxDelay:     cfg.AbuseGuardMaxDelay,
		ResetWindow:  cfg.AbuseGuardResetWindow,
	}
	if redisClient != nil {
		return service.NewRedisAuthAbuseGuard(redisClient, cfg.RateLimitRedisPrefix+":abuse", policy)
	}
	return service.NewInMemoryAuthAbuseGuard(policy)
}

// provideStorageService keeps the interface value nil (not a typed nil)
// when storage is disabled so the resume service can tell the difference.
func provideStorageService(cfg *config.Config) (service.StorageService, error) {
	if !cfg.StorageEnabled {
		return nil, nil
	}
	return service.NewMinIOStorageService(
		cfg.StorageEndpoint,
		cfg.StorageAccessKey,
		cfg.StorageSecretKey,
		cfg.StorageBucket,
		cfg.StorageUseSSL,
	)
}

func provideAuthHandler(
	accounts *service.AccountSecurityService,
	tokens *service.TokenService,
	oauth *service.OAuthService,
	guard service.AuthAbuseGuard,
	cookieMgr *security.CookieManager,
	cfg *config.Config,
) *handler.AuthHandler {
	return handler.NewAuthHandler(accounts, tokens, oauth, guard, cookieMgr, cfg.StateSigningSecret, cfg.JWTRefreshTTL)
}

func provideRouterDependencies(
	authHandler *handler.AuthHandler,
	accountHandler *handler.AccountHandler,
	resumeHandler *handler.ResumeHandler,
	jwt *security.JWTManager,
	redisClient redis.UniversalClient,
	readiness *health.ProbeRunner,
	cfg *config.Config,
) router.Dependencies {
	dep := router.Dependencies{
		AuthHandler:                authHandler,
		AccountHandler:             accountHandler,
		ResumeHandler:              resumeHandler,
		JWTManager:                 jwt,
		CORSOrigins:                cfg.CORSAllowedOrigins,
		APIRateLimitRPM:            cfg.APIRateLimitPerMin,
		AuthRateLimitRPM:           cfg.AuthRateLimitPerMin,
		PasswordForgotRateLimitRPM: cfg.ForgotRateLimitPerMin,
		Readiness:                  readiness,
		EnableOTelHTTP:             cfg.OTELMetricsEnabled || cfg.OTELTracingEnabled,
	}
	if cfg.RateLimitRedisEnabled && redisClient != nil {
		dep.GlobalRateLimiter = middleware.NewDistributedRateLimiter(
			middleware.NewRedisFixedWindowLimiter(redisClient, cfg.RateLimitRedisPrefix+":api"),
			cfg.APIRateLimitPerMin,
			time.Minute,
			middleware.FailOpen,
			"global",
		).Middleware()
		dep.AuthRateLimiter = middleware.NewDistributedRateLimiter(
			middleware.NewRedisFixedWindowLimiter(redisClient, cfg.RateLimitRedisPrefix+":auth"),
			cfg.AuthRateLimitPerMin,
			time.Minute,
			middleware.FailClosed,
			"auth",
		).Middleware()
		dep.ForgotRateLimiter = middleware.NewDistributedRateLimiter(
			middleware.NewRedisFixedWindowLimiter(redisClient, cfg.RateLimitRedisPrefix+":forgot"),
			cfg.ForgotRateLimitPerMin,
			time.Minute,
			middleware.FailClosed,
			"password_forgot",
		).Middleware()
	}
	return dep
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
