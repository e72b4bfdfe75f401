package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/resumekit/resumekit/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/exemplar"
)

const meterName = "resumekit"

type AppMetrics struct {
	authLoginCounter             metric.Int64Counter
	authRefreshCounter           metric.Int64Counter
	authLogoutCounter            metric.Int64Counter
	authRegisterCounter          metric.Int64Counter
	verificationCounter          metric.Int64Counter
	lockoutCounter               metric.Int64Counter
	passwordPolicyCounter        metric.Int64Counter
	repositoryOpCounter          metric.Int64Counter
	authReqDuration              metric.Float64Histogram
	accessTokenValidationCounter metric.Int64Counter
	csrfValidationCounter        metric.Int64Counter
	rateLimitDecisionCounter     metric.Int64Counter
	rateLimitRetryAfter          metric.Float64Histogram
	abuseGuardCounter            metric.Int64Counter
	abuseGuardCooldown           metric.Float64Histogram
	refreshSecurityCounter       metric.Int64Counter
	sessionManagementCounter     metric.Int64Counter
	sessionRevokedCount          metric.Float64Histogram
	resumeCounter                metric.Int64Counter
	storageCounter               metric.Int64Counter
	notificationCounter          metric.Int64Counter
	healthCheckResultCounter     metric.Int64Counter
	healthCheckDuration          metric.Float64Histogram
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
		sdkmetric.WithExemplarFilter(exemplar.TraceBasedFilter),
		sdkmetric.WithView(sdkmetric.NewView(
			sdkmetric.Instrument{Name: "auth.request.duration"},
			sdkmetric.Stream{
				Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
					Boundaries: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
				},
			},
		)),
	)
	otel.SetMeterProvider(mp)

	meter := mp.Meter(meterName)
	m := &AppMetrics{}
	counters := []struct {
		name string
		desc string
		dst  *metric.Int64Counter
	}{
		{"auth.login.attempts", "Login attempts by provider and outcome", &m.authLoginCounter},
		{"auth.refresh.attempts", "Refresh token rotations by outcome", &m.authRefreshCounter},
		{"auth.logout.attempts", "Logout requests by outcome", &m.authLogoutCounter},
		{"auth.register.attempts", "Registration attempts by outcome", &m.authRegisterCounter},
		{"auth.verification.events", "Email verification issuance and redemption events", &m.verificationCounter},
		{"auth.lockout.events", "Failed-login counter transitions and lockouts", &m.lockoutCounter},
		{"auth.password_policy.evaluations", "Password policy evaluations by strength tier", &m.passwordPolicyCounter},
		{"db.repository.operations", "Repository operations by entity and outcome", &m.repositoryOpCounter},
		{"auth.access_token.validation.events", "Access token validation outcomes", &m.accessTokenValidationCounter},
		{"security.csrf.validation.events", "CSRF validation outcomes", &m.csrfValidationCounter},
		{"http.rate_limit.decisions", "Rate limit allow and throttle decisions", &m.rateLimitDecisionCounter},
		{"auth.abuse_guard.events", "Abuse guard decisions by scope", &m.abuseGuardCounter},
		{"auth.refresh.security.events", "Refresh token reuse and rotation anomalies", &m.refreshSecurityCounter},
		{"session.management.events", "Session listing and revocation events", &m.sessionManagementCounter},
		{"resume.document.events", "Resume document mutations by action", &m.resumeCounter},
		{"storage.object.events", "Object storage uploads and deletes", &m.storageCounter},
		{"notification.email.events", "Outbound email notifications by kind and outcome", &m.notificationCounter},
		{"health.check.results", "Health dependency check outcomes", &m.healthCheckResultCounter},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	histograms := []struct {
		name string
		unit string
		desc string
		dst  *metric.Float64Histogram
	}{
		{"auth.request.duration", "s", "Duration of auth endpoint requests in seconds", &m.authReqDuration},
		{"http.rate_limit.retry_after", "s", "Retry-after duration in seconds for throttled requests", &m.rateLimitRetryAfter},
		{"auth.abuse_guard.cooldown", "s", "Cooldown duration returned by the abuse guard", &m.abuseGuardCooldown},
		{"session.revoked.count", "1", "Number of sessions revoked per management action", &m.sessionRevokedCount},
		{"health.check.duration", "s", "Duration of health dependency checks in seconds", &m.healthCheckDuration},
	}
	for _, h := range histograms {
		hist, err := meter.Float64Histogram(h.name, metric.WithUnit(h.unit), metric.WithDescription(h.desc))
		if err != nil {
			return nil, err
		}
		*h.dst = hist
	}

	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

// current returns the installed instrument set, or nil before InitMetrics.
// Every Record* helper is a no-op until metrics are up, so callers never
// need a nil check.
func current() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func RecordAuthLogin(ctx context.Context, provider, status string) {
	m := current()
	if m == nil {
		return
	}
	m.authLoginCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("status", status),
	))
}

func RecordAuthRefresh(ctx context.Context, status string) {
	m := current()
	if m == nil {
		return
	}
	m.authRefreshCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordAuthLogout(ctx context.Context, status string) {
	m := current()
	if m == nil {
		return
	}
	m.authLogoutCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordAuthRegister(ctx context.Context, status string) {
	m := current()
	if m == nil {
		return
	}
	m.authRegisterCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordVerificationEvent(ctx context.Context, action, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.verificationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	))
}

func RecordLockoutEvent(ctx context.Context, transition string) {
	m := current()
	if m == nil {
		return
	}
	m.lockoutCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("transition", transition)))
}

func RecordPasswordPolicyEvaluation(ctx context.Context, tier string, violations int) {
	m := current()
	if m == nil {
		return
	}
	m.passwordPolicyCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tier", tier),
		attribute.Int("violations", violations),
	))
}

func RecordRepositoryOperation(ctx context.Context, entity, operation, status string) {
	m := current()
	if m == nil {
		return
	}
	m.repositoryOpCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("operation", operation),
		attribute.String("status", status),
	))
}

func RecordAuthRequestDuration(ctx context.Context, endpoint, status string, duration time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.authReqDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("status", status),
	))
}

func RecordAccessTokenValidation(ctx context.Context, outcome, source string) {
	m := current()
	if m == nil {
		return
	}
	m.accessTokenValidationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("source", source),
	))
}

func RecordCSRFValidation(ctx context.Context, outcome, pathGroup string) {
	m := current()
	if m == nil {
		return
	}
	m.csrfValidationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("path_group", pathGroup),
	))
}

func RecordRateLimitDecision(ctx context.Context, scope, outcome, mode, keyType string) {
	m := current()
	if m == nil {
		return
	}
	m.rateLimitDecisionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("outcome", outcome),
		attribute.String("mode", mode),
		attribute.String("key_type", keyType),
	))
}

func RecordRateLimitRetryAfter(ctx context.Context, scope, reason string, retryAfter time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.rateLimitRetryAfter.Record(ctx, retryAfter.Seconds(), metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("reason", reason),
	))
}

func RecordAuthAbuseGuardEvent(ctx context.Context, scope, action, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.abuseGuardCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	))
}

func RecordAuthAbuseCooldown(ctx context.Context, scope, action string, cooldown time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.abuseGuardCooldown.Record(ctx, cooldown.Seconds(), metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("action", action),
	))
}

func RecordRefreshSecurityEvent(ctx context.Context, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.refreshSecurityCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordSessionManagementEvent(ctx context.Context, action, status string) {
	m := current()
	if m == nil {
		return
	}
	m.sessionManagementCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("status", status),
	))
}

func RecordSessionRevokedCount(ctx context.Context, action string, count int64) {
	m := current()
	if m == nil {
		return
	}
	m.sessionRevokedCount.Record(ctx, float64(count), metric.WithAttributes(
		attribute.String("action", action),
	))
}

func RecordResumeEvent(ctx context.Context, action, status string) {
	m := current()
	if m == nil {
		return
	}
	m.resumeCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("status", status),
	))
}

func RecordStorageEvent(ctx context.Context, action, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.storageCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	))
}

func RecordEmailNotification(ctx context.Context, kind, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.notificationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

func RecordHealthCheckResult(ctx context.Context, check, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.healthCheckResultCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("check", check),
		attribute.String("outcome", outcome),
	))
}

func RecordHealthCheckDuration(ctx context.Context, check string, duration time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.healthCheckDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("check", check),
	))
}
