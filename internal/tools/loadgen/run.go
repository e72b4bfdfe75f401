package loadgen

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL     string
	Profile     string
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        int64
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:8080"
	}
	if c.Duration <= 0 {
		c.Duration = 10 * time.Second
	}
	if c.RPS <= 0 {
		c.RPS = 15
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
}

type Result struct {
	TotalRequests int64
	Failures      int64
	Status2xx     int64
	Status4xx     int64
	Status5xx     int64
}

type counters struct {
	total    atomic.Int64
	failures atomic.Int64
	s2xx     atomic.Int64
	s4xx     atomic.Int64
	s5xx     atomic.Int64
}

func (c *counters) observe(status int) {
	c.total.Add(1)
	switch {
	case status >= 200 && status < 300:
		c.s2xx.Add(1)
	case status >= 400 && status < 500:
		c.s4xx.Add(1)
	case status >= 500:
		c.s5xx.Add(1)
	}
}

func (c *counters) result() Result {
	return Result{
		TotalRequests: c.total.Load(),
		Failures:      c.failures.Load(),
		Status2xx:     c.s2xx.Load(),
		Status4xx:     c.s4xx.Load(),
		Status5xx:     c.s5xx.Load(),
	}
}

// Run feeds the configured endpoint mix at a steady rate until the duration
// elapses, counting outcomes by status class.
func Run(ctx context.Context, cfg Config) (Result, error) {
	cfg.applyDefaults()

	endpoints := endpointsForProfile(cfg.Profile)
	if len(endpoints) == 0 {
		return Result{}, fmt.Errorf("unknown profile: %s", cfg.Profile)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	stats := &counters{}
	jobs := make(chan string, cfg.Concurrency*2)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Concurrency; i++ {
		g.Go(func() error {
			for path := range jobs {
				fire(gctx, client, cfg.BaseURL, path, stats)
			}
			return nil
		})
	}

	ticker := time.NewTicker(time.Second / time.Duration(cfg.RPS))
	defer ticker.Stop()
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			close(jobs)
			_ = g.Wait()
			return stats.result(), nil
		case <-ticker.C:
			jobs <- endpoints[i%len(endpoints)]
		}
	}
}

func fire(ctx context.Context, client *http.Client, baseURL, path string, stats *counters) {
	method := http.MethodGet
	if strings.Contains(path, "/refresh") {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, nil)
	if err != nil {
		stats.failures.Add(1)
		return
	}
	resp, err := client.Do(req)
	if err != nil {
		stats.failures.Add(1)
		return
	}
	_ = resp.Body.Close()
	stats.observe(resp.StatusCode)
}

func endpointsForProfile(profile string) []string {
	switch strings.ToLower(profile) {
	case "", "mixed", "auth":
		return []string{"/api/v1/auth/google/login", "/api/v1/auth/google/callback?state=bad&code=x", "/api/v1/auth/refresh"}
	case "error-heavy":
		return []string{"/api/v1/auth/google/callback?state=bad&code=x", "/api/v1/auth/refresh"}
	default:
		return nil
	}
}
