package app

import (
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/resumekit/resumekit/internal/config"
	"github.com/resumekit/resumekit/internal/observability"
)

// App bundles everything main needs to run and later tear down in order:
// drain HTTP, flush observability, then close redis and the database.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	DB            *gorm.DB
	Redis         redis.UniversalClient
}

func New(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	db *gorm.DB,
	redisClient redis.UniversalClient,
) *App {
	return &App{
		Config:        cfg,
		Logger:        logger,
		Server:        server,
		Observability: runtime,
		DB:            db,
		Redis:         redisClient,
	}
}
