package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestInMemoryAuthAbuseGuardExponentialCooldown(t *testing.T) {
	guard := NewInMemoryAuthAbuseGuard(AuthAbusePolicy{
		FreeAttempts: 0,
		BaseDelay:    10 * time.Millisecond,
		Multiplier:   2,
		MaxDelay:     100 * time.Millisecond,
		ResetWindow:  time.Second,
	})
	ctx := context.Background()

	if retry, err := guard.Check(ctx, AuthAbuseScopeLogin, "a@example.com", "10.0.0.1"); err != nil || retry != 0 {
		t.Fatalf("expected no cooldown initially, got retry=%v err=%v", retry, err)
	}
	r1, err := guard.RegisterFailure(ctx, AuthAbuseScopeLogin, "a@example.com", "10.0.0.1")
	if err != nil {
		t.Fatalf("register failure #1: %v", err)
	}
	r2, err := guard.RegisterFailure(ctx, AuthAbuseScopeLogin, "a@example.com", "10.0.0.1")
	if err != nil {
		t.Fatalf("register failure #2: %v", err)
	}
	if r2 <= r1 {
		t.Fatalf("expected increasing cooldown, got r1=%v r2=%v", r1, r2)
	}
}

func TestInMemoryAuthAbuseGuardFreeAttempts(t *testing.T) {
	guard := NewInMemoryAuthAbuseGuard(AuthAbusePolicy{
		FreeAttempts: 2,
		BaseDelay:    time.Second,
		Multiplier:   2,
		MaxDelay:     10 * time.Second,
		ResetWindow:  time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if retry, _ := guard.RegisterFailure(ctx, AuthAbuseScopeForgot, "d@example.com", "10.0.0.4"); retry != 0 {
			t.Fatalf("failure %d inside free attempts produced cooldown %v", i+1, retry)
		}
	}
	if retry, _ := guard.RegisterFailure(ctx, AuthAbuseScopeForgot, "d@example.com", "10.0.0.4"); retry != time.Second {
		t.Fatalf("first chargeable failure cooldown = %v, want 1s", retry)
	}
}

func TestInMemoryAuthAbuseGuardResetClearsCooldown(t *testing.T) {
	guard := NewInMemoryAuthAbuseGuard(AuthAbusePolicy{
		FreeAttempts: 0,
		BaseDelay:    time.Second,
		Multiplier:   2,
		MaxDelay:     10 * time.Second,
		ResetWindow:  time.Minute,
	})
	ctx := context.Background()
	_, _ = guard.RegisterFailure(ctx, AuthAbuseScopeLogin, "b@example.com", "10.0.0.2")
	if retry, _ := guard.Check(ctx, AuthAbuseScopeLogin, "b@example.com", "10.0.0.2"); retry <= 0 {
		t.Fatal("expected active cooldown before reset")
	}
	if err := guard.Reset(ctx, AuthAbuseScopeLogin, "b@example.com", "10.0.0.2"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if retry, _ := guard.Check(ctx, AuthAbuseScopeLogin, "b@example.com", "10.0.0.2"); retry != 0 {
		t.Fatalf("expected cooldown to be cleared, got %v", retry)
	}
}

func TestInMemoryAuthAbuseGuardDimensionIsolation(t *testing.T) {
	guard := NewInMemoryAuthAbuseGuard(AuthAbusePolicy{
		FreeAttempts: 0,
		BaseDelay:    time.Second,
		Multiplier:   2,
		MaxDelay:     10 * time.Second,
		ResetWindow:  time.Minute,
	})
	ctx := context.Background()
	_, _ = guard.RegisterFailure(ctx, AuthAbuseScopeLogin, "c@example.com", "10.0.0.3")

	if retry, _ := guard.Check(ctx, AuthAbuseScopeLogin, "c@example.com", "10.0.0.9"); retry <= 0 {
		t.Fatal("expected identity dimension to trigger cooldown")
	}
	if retry, _ := guard.Check(ctx, AuthAbuseScopeLogin, "z@example.com", "10.0.0.3"); retry <= 0 {
		t.Fatal("expected ip dimension to trigger cooldown")
	}
	if retry, _ := guard.Check(ctx, AuthAbuseScopeLogin, "z@example.com", "10.0.0.9"); retry != 0 {
		t.Fatalf("expected unrelated identity+ip to be unaffected, got %v", retry)
	}
}

func newRedisGuardForTest(t *testing.T, policy AuthAbusePolicy) *RedisAuthAbuseGuard {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisAuthAbuseGuard(client, "test_abuse", policy)
}

func TestRedisAuthAbuseGuardCooldownLifecycle(t *testing.T) {
	guard := newRedisGuardForTest(t, AuthAbusePolicy{
		FreeAttempts: 0,
		BaseDelay:    100 * time.Millisecond,
		Multiplier:   2,
		MaxDelay:     time.Second,
		ResetWindow:  time.Minute,
	})
	ctx := context.Background()

	if retry, err := guard.Check(ctx, AuthAbuseScopeLogin, "r@example.com", "10.0.1.1"); err != nil || retry != 0 {
		t.Fatalf("expected clean slate, got retry=%v err=%v", retry, err)
	}

	r1, err := guard.RegisterFailure(ctx, AuthAbuseScopeLogin, "r@example.com", "10.0.1.1")
	if err != nil {
		t.Fatalf("register failure: %v", err)
	}
	if r1 != 100*time.Millisecond {
		t.Fatalf("first cooldown = %v, want 100ms", r1)
	}
	r2, err := guard.RegisterFailure(ctx, AuthAbuseScopeLogin, "r@example.com", "10.0.1.1")
	if err != nil {
		t.Fatalf("register failure: %v", err)
	}
	if r2 != 200*time.Millisecond {
		t.Fatalf("second cooldown = %v, want 200ms", r2)
	}

	if retry, err := guard.Check(ctx, AuthAbuseScopeLogin, "r@example.com", "10.0.1.1"); err != nil || retry <= 0 {
		t.Fatalf("expected active cooldown, got retry=%v err=%v", retry, err)
	}

	if err := guard.Reset(ctx, AuthAbuseScopeLogin, "r@example.com", "10.0.1.1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if retry, err := guard.Check(ctx, AuthAbuseScopeLogin, "r@example.com", "10.0.1.1"); err != nil || retry != 0 {
		t.Fatalf("expected reset to clear cooldown, got retry=%v err=%v", retry, err)
	}
}

func TestRedisAuthAbuseGuardCapsAtMaxDelay(t *testing.T) {
	guard := newRedisGuardForTest(t, AuthAbusePolicy{
		FreeAttempts: 0,
		BaseDelay:    100 * time.Millisecond,
		Multiplier:   10,
		MaxDelay:     300 * time.Millisecond,
		ResetWindow:  time.Minute,
	})
	ctx := context.Background()

	var last time.Duration
	for i := 0; i < 4; i++ {
		d, err := guard.RegisterFailure(ctx, AuthAbuseScopeForgot, "cap@example.com", "10.0.1.2")
		if err != nil {
			t.Fatalf("register failure %d: %v", i, err)
		}
		last = d
	}
	if last != 300*time.Millisecond {
		t.Fatalf("cooldown = %v, want cap 300ms", last)
	}
}
