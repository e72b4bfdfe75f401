package observability

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var redisInstrumentationOnce sync.Once

// InstrumentRedisClient attaches command latency and pool metrics to the
// client backing the rate limiter and abuse guard. Safe to call more than
// once; the hook installs at most once per process.
func InstrumentRedisClient(client redis.UniversalClient, logger *slog.Logger) {
	if client == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}

	redisInstrumentationOnce.Do(func() {
		hook, err := newRedisMetricsHook(client)
		if err != nil {
			logger.Warn("redis instrumentation disabled", "error", err)
			return
		}
		client.AddHook(hook)
		logger.Info("redis instrumentation enabled")
	})
}

type redisMetricsHook struct {
	commands metric.Int64Counter
	errors   metric.Int64Counter
	latency  metric.Float64Histogram

	totalSeen  atomic.Int64
	errorsSeen atomic.Int64
	poolStats  func() *redis.PoolStats
}

func newRedisMetricsHook(client redis.UniversalClient) (*redisMetricsHook, error) {
	meter := otel.Meter(meterName)
	hook := &redisMetricsHook{poolStats: client.PoolStats}

	var err error
	if hook.commands, err = meter.Int64Counter(
		"redis.command.total",
		metric.WithDescription("Total number of Redis commands executed"),
	); err != nil {
		return nil, err
	}
	if hook.errors, err = meter.Int64Counter(
		"redis.command.errors",
		metric.WithDescription("Total number of Redis command errors"),
	); err != nil {
		return nil, err
	}
	if hook.latency, err = meter.Float64Histogram(
		"redis.command.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Redis command latency in seconds"),
	); err != nil {
		return nil, err
	}

	if err = hook.registerGauges(meter); err != nil {
		return nil, err
	}
	return hook, nil
}

func (h *redisMetricsHook) registerGauges(meter metric.Meter) error {
	saturation, err := meter.Float64ObservableGauge(
		"redis.pool.saturation",
		metric.WithUnit("1"),
		metric.WithDescription("Redis pool saturation ratio (used_conns / total_conns)"),
	)
	if err != nil {
		return err
	}
	errorRate, err := meter.Float64ObservableGauge(
		"redis.command.error_rate",
		metric.WithUnit("1"),
		metric.WithDescription("Redis command error rate (errors / total commands)"),
	)
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		if stats := h.poolStats(); stats != nil && stats.TotalConns > 0 {
			used := stats.TotalConns - stats.IdleConns
			observer.ObserveFloat64(saturation, clampRatio(float64(used)/float64(stats.TotalConns)))
		}
		if total := h.totalSeen.Load(); total > 0 {
			observer.ObserveFloat64(errorRate, clampRatio(float64(h.errorsSeen.Load())/float64(total)))
		}
		return nil
	}, saturation, errorRate)
	return err
}

func (h *redisMetricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h *redisMetricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.record(ctx, cmd.Name(), err, time.Since(start))
		return err
	}
}

func (h *redisMetricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)

		h.latency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
			attribute.String("command", "pipeline"),
			attribute.String("status", redisCommandStatus(err)),
		))
		// Per-command latency is unknown inside a pipeline; count outcomes only.
		for _, cmd := range cmds {
			h.record(ctx, cmd.Name(), cmd.Err(), 0)
		}
		return err
	}
}

func (h *redisMetricsHook) record(ctx context.Context, name string, err error, duration time.Duration) {
	command := strings.ToLower(name)
	status := redisCommandStatus(err)

	h.totalSeen.Add(1)
	h.commands.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("status", status),
	))
	if status == "error" {
		h.errorsSeen.Add(1)
		h.errors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("command", command),
			attribute.String("error_type", classifyRedisError(err)),
		))
	}
	if duration > 0 {
		h.latency.Record(ctx, duration.Seconds(), metric.WithAttributes(
			attribute.String("command", command),
			attribute.String("status", status),
		))
	}
}

func redisCommandStatus(err error) string {
	switch err {
	case nil:
		return "success"
	case redis.Nil:
		return "miss"
	default:
		return "error"
	}
}

func classifyRedisError(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "connection"):
		return "connection"
	default:
		return "other"
	}
}

func clampRatio(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
