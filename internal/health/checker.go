package health

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/resumekit/resumekit/internal/observability"
)

type CheckResult struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

type Checker interface {
	Check(ctx context.Context) CheckResult
}

type ProbeRunner struct {
	checkers    []Checker
	timeout     time.Duration
	gracePeriod time.Duration
	startedAt   time.Time
}

func NewProbeRunner(timeout, gracePeriod time.Duration, checkers ...Checker) *ProbeRunner {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &ProbeRunner{
		checkers:    checkers,
		timeout:     timeout,
		gracePeriod: gracePeriod,
		startedAt:   time.Now(),
	}
}

func (r *ProbeRunner) Ready(ctx context.Context) (bool, []CheckResult) {
	if r == nil {
		return true, nil
	}
	if r.gracePeriod > 0 && time.Since(r.startedAt) < r.gracePeriod {
		return false, []CheckResult{{Name: "startup_grace", Healthy: false, Error: "startup grace period active"}}
	}
	results := make([]CheckResult, len(r.checkers))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range r.checkers {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(gctx, r.timeout)
			defer cancel()
			started := time.Now()
			res := c.Check(checkCtx)
			results[i] = res

			outcome := "ready"
			if !res.Healthy {
				outcome = "unhealthy"
			}
			observability.RecordHealthCheckResult(gctx, res.Name, outcome)
			observability.RecordHealthCheckDuration(gctx, res.Name, time.Since(started))
			return nil
		})
	}
	_ = g.Wait()
	return allHealthy(results), results
}

func allHealthy(results []CheckResult) bool {
	for _, res := range results {
		if !res.Healthy {
			return false
		}
	}
	return true
}
