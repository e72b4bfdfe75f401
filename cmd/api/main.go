package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/resumekit/resumekit/internal/app"
	"github.com/resumekit/resumekit/internal/di"
)

func main() {
	a, err := di.InitializeApp()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		a.Logger.Info("server starting", "addr", a.Server.Addr)
		serveErr <- a.Server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}

	shutdown(a)
}

// shutdown drains in dependency order: HTTP first so no new work arrives,
// then the telemetry pipeline, then the clients it no longer needs.
func shutdown(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), orDefault(a.Config.ShutdownTimeout, 20*time.Second))
	defer cancel()

	httpCtx, httpCancel := context.WithTimeout(ctx, orDefault(a.Config.ShutdownHTTPDrainTimeout, 10*time.Second))
	if err := a.Server.Shutdown(httpCtx); err != nil {
		a.Logger.Error("failed to shutdown http server", "error", err)
	}
	httpCancel()

	if a.Observability != nil {
		obsCtx, obsCancel := context.WithTimeout(ctx, orDefault(a.Config.ShutdownObservabilityTimeout, 8*time.Second))
		if err := a.Observability.Shutdown(obsCtx); err != nil {
			a.Logger.Error("failed to shutdown observability", "error", err)
		}
		obsCancel()
	}

	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error("failed to close redis client", "error", err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.Logger.Error("failed to close database connection", "error", err)
			}
		}
	}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
