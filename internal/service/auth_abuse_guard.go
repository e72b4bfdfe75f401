package service

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"
)

// AuthAbuseScope separates cooldown accounting per endpoint family. The
// guard sits in front of login and forgot-password; it complements the
// per-account lockout and never replaces it.
type AuthAbuseScope string

const (
	AuthAbuseScopeLogin  AuthAbuseScope = "login"
	AuthAbuseScopeForgot AuthAbuseScope = "forgot"
)

// AuthAbusePolicy tunes the exponential cooldown: the first FreeAttempts
// failures inside ResetWindow cost nothing, each one after that doubles
// (by Multiplier) the delay starting at BaseDelay, capped at MaxDelay.
type AuthAbusePolicy struct {
	FreeAttempts int
	BaseDelay    time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	ResetWindow  time.Duration
}

type AuthAbuseGuard interface {
	Check(ctx context.Context, scope AuthAbuseScope, identity, ip string) (time.Duration, error)
	RegisterFailure(ctx context.Context, scope AuthAbuseScope, identity, ip string) (time.Duration, error)
	Reset(ctx context.Context, scope AuthAbuseScope, identity, ip string) error
}

type NoopAuthAbuseGuard struct{}

func NewNoopAuthAbuseGuard() *NoopAuthAbuseGuard {
	return &NoopAuthAbuseGuard{}
}

func (g *NoopAuthAbuseGuard) Check(context.Context, AuthAbuseScope, string, string) (time.Duration, error) {
	return 0, nil
}

func (g *NoopAuthAbuseGuard) RegisterFailure(context.Context, AuthAbuseScope, string, string) (time.Duration, error) {
	return 0, nil
}

func (g *NoopAuthAbuseGuard) Reset(context.Context, AuthAbuseScope, string, string) error {
	return nil
}

type abuseRecord struct {
	failures      int
	lastFailureAt time.Time
	cooldownUntil time.Time
}

// InMemoryAuthAbuseGuard tracks failures per identity and per IP with an
// exponential cooldown. Single-process only; the redis variant covers
// multi-replica deployments.
type InMemoryAuthAbuseGuard struct {
	mu      sync.Mutex
	policy  AuthAbusePolicy
	records map[string]abuseRecord
}

func NewInMemoryAuthAbuseGuard(policy AuthAbusePolicy) *InMemoryAuthAbuseGuard {
	return &InMemoryAuthAbuseGuard{
		policy:  normalizeAuthAbusePolicy(policy),
		records: make(map[string]abuseRecord),
	}
}

func (g *InMemoryAuthAbuseGuard) Check(_ context.Context, scope AuthAbuseScope, identity, ip string) (time.Duration, error) {
	now := time.Now().UTC()
	g.mu.Lock()
	defer g.mu.Unlock()

	var worst time.Duration
	for _, key := range abuseKeys(scope, identity, ip) {
		if delay := g.remainingLocked(now, key); delay > worst {
			worst = delay
		}
	}
	return worst, nil
}

func (g *InMemoryAuthAbuseGuard) RegisterFailure(_ context.Context, scope AuthAbuseScope, identity, ip string) (time.Duration, error) {
	now := time.Now().UTC()
	g.mu.Lock()
	defer g.mu.Unlock()

	var worst time.Duration
	for _, key := range abuseKeys(scope, identity, ip) {
		if delay := g.recordFailureLocked(now, key); delay > worst {
			worst = delay
		}
	}
	return worst, nil
}

func (g *InMemoryAuthAbuseGuard) Reset(_ context.Context, scope AuthAbuseScope, identity, ip string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, key := range abuseKeys(scope, identity, ip) {
		delete(g.records, key)
	}
	return nil
}

func (g *InMemoryAuthAbuseGuard) recordFailureLocked(now time.Time, key string) time.Duration {
	rec := g.records[key]
	if rec.lastFailureAt.IsZero() || now.Sub(rec.lastFailureAt) > g.policy.ResetWindow {
		rec.failures = 0
	}
	rec.failures++
	rec.lastFailureAt = now

	delay := g.policy.delayFor(rec.failures)
	rec.cooldownUntil = now.Add(delay)
	g.records[key] = rec
	return delay
}

func (g *InMemoryAuthAbuseGuard) remainingLocked(now time.Time, key string) time.Duration {
	rec, ok := g.records[key]
	if !ok {
		return 0
	}
	if now.Sub(rec.lastFailureAt) > g.policy.ResetWindow {
		delete(g.records, key)
		return 0
	}
	if !now.Before(rec.cooldownUntil) {
		return 0
	}
	return rec.cooldownUntil.Sub(now)
}

func (p AuthAbusePolicy) delayFor(failures int) time.Duration {
	over := failures - p.FreeAttempts
	if over <= 0 {
		return 0
	}
	delay := time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(over-1)))
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

func abuseKeys(scope AuthAbuseScope, identity, ip string) [2]string {
	return [2]string{
		string(scope) + ":id:" + normalizeAuthIdentity(identity),
		string(scope) + ":ip:" + normalizeAuthIP(ip),
	}
}

func normalizeAuthIdentity(identity string) string {
	v := strings.TrimSpace(strings.ToLower(identity))
	if v == "" {
		return "anonymous"
	}
	return v
}

func normalizeAuthIP(ip string) string {
	v := strings.TrimSpace(strings.ToLower(ip))
	if v == "" {
		return "unknown"
	}
	return v
}

func normalizeAuthAbusePolicy(policy AuthAbusePolicy) AuthAbusePolicy {
	if policy.FreeAttempts < 0 {
		policy.FreeAttempts = 0
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 2 * time.Second
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = 2
	}
	if policy.MaxDelay < policy.BaseDelay {
		policy.MaxDelay = 5 * time.Minute
	}
	if policy.ResetWindow <= 0 {
		policy.ResetWindow = 30 * time.Minute
	}
	return policy
}
