package observability

import (
	"context"
	"testing"
	"time"
)

func TestRecordMetricHelpersNoPanicWhenUninitialized(t *testing.T) {
	ctx := context.Background()
	metricsMu.Lock()
	appMetrics = nil
	metricsMu.Unlock()

	// Smoke-call every helper with appMetrics=nil; they should all no-op safely.
	RecordAuthLogin(ctx, "local", "success")
	RecordAuthRefresh(ctx, "success")
	RecordAuthLogout(ctx, "success")
	RecordAuthRegister(ctx, "success")
	RecordVerificationEvent(ctx, "issue", "sent")
	RecordLockoutEvent(ctx, "locked")
	RecordPasswordPolicyEvaluation(ctx, "weak", 3)
	RecordRepositoryOperation(ctx, "account", "create", "success")
	RecordAuthRequestDuration(ctx, "login", "success", 10*time.Millisecond)
	RecordAccessTokenValidation(ctx, "ok", "cookie")
	RecordCSRFValidation(ctx, "ok", "auth")
	RecordRateLimitDecision(ctx, "login", "allow", "distributed", "subject")
	RecordRateLimitRetryAfter(ctx, "login", "burst", time.Second)
	RecordAuthAbuseGuardEvent(ctx, "login", "check", "ok")
	RecordAuthAbuseCooldown(ctx, "login", "check", time.Second)
	RecordRefreshSecurityEvent(ctx, "ok")
	RecordSessionManagementEvent(ctx, "revoke", "success")
	RecordSessionRevokedCount(ctx, "revoke_all", 2)
	RecordResumeEvent(ctx, "create", "success")
	RecordStorageEvent(ctx, "upload", "success")
	RecordEmailNotification(ctx, "email_verification", "sent")
	RecordHealthCheckResult(ctx, "db", "ready")
	RecordHealthCheckDuration(ctx, "db", 5*time.Millisecond)
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]string{
		"debug":   "DEBUG",
		"info":    "INFO",
		"warn":    "WARN",
		"error":   "ERROR",
		"unknown": "INFO",
		"":        "INFO",
	}
	for in, want := range cases {
		if got := parseLogLevel(in).String(); got != want {
			t.Fatalf("parseLogLevel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClampRatio(t *testing.T) {
	if clampRatio(-0.5) != 0 {
		t.Fatal("negative ratio not clamped to 0")
	}
	if clampRatio(1.5) != 1 {
		t.Fatal("ratio above 1 not clamped")
	}
	if clampRatio(0.25) != 0.25 {
		t.Fatal("in-range ratio changed")
	}
}
