package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisLimiterForTest(t *testing.T) *RedisFixedWindowLimiter {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisFixedWindowLimiter(client, "test:rl")
}

func TestRedisFixedWindowLimiter(t *testing.T) {
	limiter := newRedisLimiterForTest(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, _, err := limiter.Allow(ctx, "9.9.9.9", 2, time.Minute)
		if err != nil || !allowed {
			t.Fatalf("request %d allowed=%v err=%v", i+1, allowed, err)
		}
	}
	allowed, retryAfter, err := limiter.Allow(ctx, "9.9.9.9", 2, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if allowed {
		t.Fatal("third request must be rejected")
	}
	if retryAfter <= 0 {
		t.Fatalf("retry after = %v, want > 0", retryAfter)
	}

	if allowed, _, _ := limiter.Allow(ctx, "8.8.8.8", 2, time.Minute); !allowed {
		t.Fatal("unrelated key must not be limited")
	}
}

func TestRedisFixedWindowLimiterErrorsWhenDown(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := NewRedisFixedWindowLimiter(client, "test:rl")
	srv.Close()

	if _, _, err := limiter.Allow(context.Background(), "k", 1, time.Minute); err == nil {
		t.Fatal("expected an error once the backend is gone")
	}
}
