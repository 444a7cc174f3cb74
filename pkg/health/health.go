// Package health runs registered dependency checks concurrently and reports
// the aggregate for liveness and readiness probes. The search service is
// ready while an index is loaded; losing the query cache only degrades it.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// severity orders statuses so the aggregate is the worst component.
func (s Status) severity() int {
	switch s {
	case StatusUp:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Check probes one dependency.
type Check func(ctx context.Context) ComponentHealth

type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
	Uptime     string                     `json:"uptime"`
}

type Option func(*Checker)

// WithCheckTimeout bounds each check. A check that overruns is reported
// down with the context error.
func WithCheckTimeout(d time.Duration) Option {
	return func(c *Checker) { c.checkTimeout = d }
}

// WithCacheTTL reuses the last report for d, so frequent readiness probes
// do not ping Redis or Postgres on every request.
func WithCacheTTL(d time.Duration) Option {
	return func(c *Checker) { c.cacheTTL = d }
}

// Checker holds named checks and the last report.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]Check

	checkTimeout time.Duration
	cacheTTL     time.Duration
	started      time.Time
	now          func() time.Time

	cacheMu  sync.Mutex
	cached   *Report
	cachedAt time.Time

	logger *slog.Logger
}

func NewChecker(opts ...Option) *Checker {
	c := &Checker{
		checks:       make(map[string]Check),
		checkTimeout: 2 * time.Second,
		now:          time.Now,
		logger:       slog.Default().With("component", "health"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.started = c.now()
	return c
}

// Register adds or replaces a named check and drops any cached report.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	c.checks[name] = check
	c.mu.Unlock()

	c.cacheMu.Lock()
	c.cached = nil
	c.cacheMu.Unlock()
}

// Run executes every check concurrently. Results younger than the cache TTL
// are returned without probing again.
func (c *Checker) Run(ctx context.Context) Report {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	if c.cached != nil && c.cacheTTL > 0 && c.now().Sub(c.cachedAt) < c.cacheTTL {
		return *c.cached
	}

	c.mu.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	now := c.now()
	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(checks)),
		Timestamp:  now.UTC().Format(time.RFC3339),
		Uptime:     now.Sub(c.started).Round(time.Second).String(),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := c.runOne(ctx, name, check)
			mu.Lock()
			report.Components[name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	for name, comp := range report.Components {
		if comp.Status.severity() > report.Status.severity() {
			report.Status = comp.Status
		}
		if comp.Status != StatusUp {
			c.logger.Warn("component unhealthy", "component", name, "status", comp.Status, "message", comp.Message)
		}
	}

	c.cached = &report
	c.cachedAt = now
	return report
}

func (c *Checker) runOne(ctx context.Context, name string, check Check) (result ComponentHealth) {
	if c.checkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.checkTimeout)
		defer cancel()
	}
	start := time.Now()
	defer func() {
		result.Latency = time.Since(start).Round(time.Millisecond).String()
	}()

	// Buffered so a check that ignores ctx can finish after we give up.
	done := make(chan ComponentHealth, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("health check panicked", "component", name, "panic", r)
				done <- ComponentHealth{Status: StatusDown, Message: fmt.Sprintf("check panicked: %v", r)}
			}
		}()
		done <- check(ctx)
	}()
	select {
	case result = <-done:
		return result
	case <-ctx.Done():
		return ComponentHealth{Status: StatusDown, Message: ctx.Err().Error()}
	}
}

// LiveHandler answers liveness probes. It never runs checks.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "alive",
			"uptime": c.now().Sub(c.started).Round(time.Second).String(),
		})
	}
}

// ReadyHandler answers readiness probes: 503 when any component is down,
// 200 otherwise. Degraded components still answer 200.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		code := http.StatusOK
		if report.Status == StatusDown {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, report)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// PingCheck adapts a ping function. A failing ping reports failure, which
// should be StatusDegraded for optional dependencies.
func PingCheck(ping func(ctx context.Context) error, failure Status) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: failure, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}
