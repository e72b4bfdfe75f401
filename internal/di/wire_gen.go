// Code generated by Wire. DO NOT EDIT.

//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

package di

import (
	"github.com/resumekit/resumekit/internal/app"
	"github.com/resumekit/resumekit/internal/config"
	"github.com/resumekit/resumekit/internal/http/handler"
	"github.com/resumekit/resumekit/internal/http/router"
	"github.com/resumekit/resumekit/internal/repository"
	"github.com/resumekit/resumekit/internal/service"
)

// Injectors from wire.go:

// InitializeApp assembles the whole service from AppProviders. The real body
// is generated by wire into wire_gen.go.
func InitializeApp() (*app.App, error) {
	configConfig, err := config.Load()
	if err != nil {
		return nil, err
	}
	runtime, err := provideObservabilityRuntime(configConfig)
	if err != nil {
		return nil, err
	}
	logger := provideAppLogger(configConfig, runtime)
	db, err := provideRuntimeDB(configConfig)
	if err != nil {
		return nil, err
	}
	accountRepository := repository.NewAccountRepository(db)
	verificationSigner := provideVerificationSigner(configConfig)
	verificationIssuer := provideVerificationIssuer(configConfig, verificationSigner)
	devEmailNotifier := service.NewDevEmailNotifier(logger)
	jwtManager := provideJWTManager(configConfig)
	sessionRepository := repository.NewSessionRepository(db)
	tokenService := provideTokenService(configConfig, jwtManager, sessionRepository)
	accountSecurityService := service.NewAccountSecurityService(configConfig, accountRepository, verificationIssuer, devEmailNotifier, tokenService)
	oAuthService := provideOAuthService(configConfig, accountSecurityService)
	universalClient := provideRedisClient(configConfig, logger)
	authAbuseGuard := provideAuthAbuseGuard(configConfig, universalClient)
	cookieManager := provideCookieManager(configConfig)
	authHandler := provideAuthHandler(accountSecurityService, tokenService, oAuthService, authAbuseGuard, cookieManager, configConfig)
	accountHandler := handler.NewAccountHandler(accountSecurityService, tokenService)
	resumeRepository := repository.NewResumeRepository(db)
	storageService, err := provideStorageService(configConfig)
	if err != nil {
		return nil, err
	}
	resumeService := service.NewResumeService(resumeRepository, storageService)
	resumeHandler := handler.NewResumeHandler(resumeService)
	probeRunner := provideReadinessProbeRunner(configConfig, db, universalClient)
	dependencies := provideRouterDependencies(authHandler, accountHandler, resumeHandler, jwtManager, universalClient, probeRunner, configConfig)
	httpHandler := router.NewRouter(dependencies)
	server := provideHTTPServer(configConfig, httpHandler)
	appApp := app.New(configConfig, logger, server, runtime, db, universalClient)
	return appApp, nil
}
