package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/resumekit/resumekit/internal/config"

	"go.opentelemetry.io/otel/attribute"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Runtime bundles the three OTel providers so the app can flush and stop
// them as one unit.
type Runtime struct {
	LoggerProvider *sdklog.LoggerProvider
	MeterProvider  *sdkmetric.MeterProvider
	TracerProvider *sdktrace.TracerProvider
}

func InitRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{}
	var err error

	if rt.LoggerProvider, err = InitLogs(ctx, cfg, logger); err != nil {
		return nil, err
	}
	if rt.MeterProvider, err = InitMetrics(ctx, cfg, logger); err != nil {
		_ = rt.Shutdown(ctx)
		return nil, err
	}
	if rt.TracerProvider, err = InitTracing(ctx, cfg, logger); err != nil {
		_ = rt.Shutdown(ctx)
		return nil, err
	}
	return rt, nil
}

func (r *Runtime) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, stop := range []func(context.Context) error{
		r.shutdownLogs,
		r.shutdownMetrics,
		r.shutdownTraces,
	} {
		if err := stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Runtime) shutdownLogs(ctx context.Context) error {
	if r.LoggerProvider == nil {
		return nil
	}
	return r.LoggerProvider.Shutdown(ctx)
}

func (r *Runtime) shutdownMetrics(ctx context.Context) error {
	if r.MeterProvider == nil {
		return nil
	}
	return r.MeterProvider.Shutdown(ctx)
}

func (r *Runtime) shutdownTraces(ctx context.Context) error {
	if r.TracerProvider == nil {
		return nil
	}
	return r.TracerProvider.Shutdown(ctx)
}

// newResource describes this process to every exporter identically.
func newResource(ctx context.Context, cfg *config.Config) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("deployment.environment", cfg.OTELEnvironment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}
	return res, nil
}
