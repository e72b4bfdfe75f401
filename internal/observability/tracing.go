package observability

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resumekit/resumekit/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func InitTracing(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdktrace.TracerProvider, error) {
	if !cfg.OTELTracingEnabled {
		logger.Info("otel tracing disabled")
		return installTracerProvider(sdktrace.NewTracerProvider()), nil
	}

	exporter, err := newTraceExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.OTELTraceSamplingRatio))),
	)
	logger.Info("otel tracing initialized",
		"endpoint", cfg.OTELExporterOTLPEndpoint,
		"sampling_ratio", cfg.OTELTraceSamplingRatio,
	)
	return installTracerProvider(tp), nil
}

func newTraceExporter(ctx context.Context, cfg *config.Config) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp trace exporter: %w", err)
	}
	return exporter, nil
}

func installTracerProvider(tp *sdktrace.TracerProvider) *sdktrace.TracerProvider {
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp
}
