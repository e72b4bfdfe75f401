package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/resumekit/resumekit/internal/http/response"
	"github.com/resumekit/resumekit/internal/observability"
)

// Limiter answers whether one more request fits the window for a key.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
}

type FailureMode string

const (
	// FailOpen lets traffic through when the limiter backend is down.
	FailOpen FailureMode = "fail_open"
	// FailClosed rejects traffic when the limiter backend is down.
	FailClosed FailureMode = "fail_closed"
)

type RateLimiter struct {
	limiter Limiter
	limit   int
	window  time.Duration
	mode    FailureMode
	scope   string
}

func NewRateLimiter(limit int, window time.Duration, scope string) *RateLimiter {
	return NewDistributedRateLimiter(NewLocalFixedWindowLimiter(), limit, window, FailClosed, scope)
}

func NewDistributedRateLimiter(limiter Limiter, limit int, window time.Duration, mode FailureMode, scope string) *RateLimiter {
	if scope == "" {
		scope = "api"
	}
	return &RateLimiter{limiter: limiter, limit: limit, window: window, mode: mode, scope: scope}
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			allowed, retryAfter, err := rl.limiter.Allow(ctx, clientIPKey(r), rl.limit, rl.window)

			switch {
			case err != nil && rl.mode == FailOpen:
				slog.WarnContext(ctx, "rate limiter backend unavailable, allowing request",
					"scope", rl.scope,
					"mode", string(rl.mode),
					"error", err.Error(),
				)
				observability.RecordRateLimitDecision(ctx, rl.scope, "fail_open_allow", string(rl.mode), "ip")
			case err != nil:
				observability.RecordRateLimitDecision(ctx, rl.scope, "fail_closed_reject", string(rl.mode), "ip")
				observability.RecordRateLimitRetryAfter(ctx, rl.scope, "backend_error", rl.window)
				rl.reject(w, r, rl.window)
				return
			case !allowed:
				observability.RecordRateLimitDecision(ctx, rl.scope, "rejected", string(rl.mode), "ip")
				observability.RecordRateLimitRetryAfter(ctx, rl.scope, "limit_exceeded", retryAfter)
				rl.reject(w, r, retryAfter)
				return
			default:
				observability.RecordRateLimitDecision(ctx, rl.scope, "allowed", string(rl.mode), "ip")
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) reject(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	w.Header().Set("Retry-After", retryAfterHeader(retryAfter))
	response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
}

type fixedWindow struct {
	count       int
	windowStart time.Time
}

type localFixedWindowLimiter struct {
	mu      sync.Mutex
	store   map[string]fixedWindow
	cleanup time.Time
}

func NewLocalFixedWindowLimiter() Limiter {
	return &localFixedWindowLimiter{
		store:   make(map[string]fixedWindow),
		cleanup: time.Now().Add(time.Minute),
	}
}

func (rl *localFixedWindowLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.maybeSweep(now, window)

	entry, ok := rl.store[key]
	switch {
	case !ok, now.Sub(entry.windowStart) >= window:
		rl.store[key] = fixedWindow{count: 1, windowStart: now}
		return true, 0, nil
	case entry.count >= limit:
		retryAfter := window - now.Sub(entry.windowStart)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return false, retryAfter, nil
	default:
		entry.count++
		rl.store[key] = entry
		return true, 0, nil
	}
}

// maybeSweep drops entries older than two windows. Called with the lock held.
func (rl *localFixedWindowLimiter) maybeSweep(now time.Time, window time.Duration) {
	if now.Before(rl.cleanup) {
		return
	}
	for k, v := range rl.store {
		if now.Sub(v.windowStart) > 2*window {
			delete(rl.store, k)
		}
	}
	rl.cleanup = now.Add(window)
}

func clientIPKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func retryAfterHeader(d time.Duration) string {
	seconds := int(d.Round(time.Second).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
