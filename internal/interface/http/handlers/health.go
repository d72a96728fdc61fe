package handlers

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH REPORT
// ══════════════════════════════════════════════════════════════════════════════

// HealthChecker reports the state of the tracker's dependencies for /health.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
	AddCheck(name string, check HealthCheckFunc)
	RemoveCheck(name string)
}

// HealthCheckFunc fails with the reason a dependency is unusable.
type HealthCheckFunc func(ctx context.Context) error

// HealthStatus is the /health response body.
type HealthStatus struct {
	Healthy   bool                   `json:"healthy"`
	Ready     bool                   `json:"ready"`
	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

// CheckResult is the outcome of one named check.
type CheckResult struct {
	Healthy  bool   `json:"healthy"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPOSITE CHECKER
// ══════════════════════════════════════════════════════════════════════════════

// CompositeHealthChecker runs every registered check in parallel, each under
// its own timeout. The service is healthy only when all of them pass.
type CompositeHealthChecker struct {
	version string
	started time.Time
	timeout time.Duration

	mu     sync.RWMutex
	checks map[string]HealthCheckFunc
}

// NewCompositeHealthChecker creates an empty checker with a 5s per-check timeout.
func NewCompositeHealthChecker(version string) *CompositeHealthChecker {
	return &CompositeHealthChecker{
		version: version,
		started: time.Now(),
		timeout: 5 * time.Second,
		checks:  make(map[string]HealthCheckFunc),
	}
}

// SetTimeout changes the per-check timeout.
func (c *CompositeHealthChecker) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// AddCheck registers or replaces a named check.
func (c *CompositeHealthChecker) AddCheck(name string, check HealthCheckFunc) {
	c.mu.Lock()
	c.checks[name] = check
	c.mu.Unlock()
}

// RemoveCheck unregisters a check.
func (c *CompositeHealthChecker) RemoveCheck(name string) {
	c.mu.Lock()
	delete(c.checks, name)
	c.mu.Unlock()
}

// Check runs the checks and aggregates their results.
func (c *CompositeHealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	funcs := make([]HealthCheckFunc, 0, len(c.checks))
	for name, fn := range c.checks {
		names = append(names, name)
		funcs = append(funcs, fn)
	}
	c.mu.RUnlock()

	results := make([]CheckResult, len(funcs))

	// Failures are recorded in results, never returned, so one failing
	// check does not cancel the others.
	var g errgroup.Group
	for i, fn := range funcs {
		g.Go(func() error {
			results[i] = c.run(ctx, fn)
			return nil
		})
	}
	_ = g.Wait()

	status := HealthStatus{
		Healthy:   true,
		Ready:     true,
		Checks:    make(map[string]CheckResult, len(names)),
		Uptime:    time.Since(c.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Version:   c.version,
	}

	var failed []string
	for i, name := range names {
		status.Checks[name] = results[i]
		if !results[i].Healthy {
			failed = append(failed, name)
		}
	}

	switch {
	case len(names) == 0:
		status.Message = "No health checks registered"
	case len(failed) == 0:
		status.Message = "All checks passed"
	default:
		slices.Sort(failed)
		status.Healthy = false
		status.Ready = false
		status.Message = "Some checks failed: " + strings.Join(failed, ", ")
	}
	return status
}

func (c *CompositeHealthChecker) run(ctx context.Context, fn HealthCheckFunc) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	res := CheckResult{
		Healthy:  err == nil,
		Message:  "OK",
		Duration: time.Since(start).Round(time.Millisecond).String(),
	}
	if err != nil {
		res.Message = err.Error()
	}
	return res
}

// ══════════════════════════════════════════════════════════════════════════════
// CHECKS
// ══════════════════════════════════════════════════════════════════════════════

// Pinger is a store backend or an app that can reach its store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewPingCheck checks that p answers.
func NewPingCheck(p Pinger) HealthCheckFunc {
	return p.Ping
}

// NewFlagCheck fails with message while ok returns false.
func NewFlagCheck(ok func() bool, message string) HealthCheckFunc {
	return func(context.Context) error {
		if ok() {
			return nil
		}
		return errors.New(message)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// STATIC CHECKER
// ══════════════════════════════════════════════════════════════════════════════

// NoopHealthChecker is used when the server is built without checks. It is
// always healthy and ignores registrations.
type NoopHealthChecker struct {
	started time.Time
}

// NewNoopHealthChecker creates a NoopHealthChecker.
func NewNoopHealthChecker() *NoopHealthChecker {
	return &NoopHealthChecker{started: time.Now()}
}

// Check always reports healthy.
func (n *NoopHealthChecker) Check(context.Context) HealthStatus {
	return HealthStatus{
		Healthy:   true,
		Ready:     true,
		Message:   "OK",
		Uptime:    time.Since(n.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
	}
}

// AddCheck does nothing.
func (n *NoopHealthChecker) AddCheck(string, HealthCheckFunc) {}

// RemoveCheck does nothing.
func (n *NoopHealthChecker) RemoveCheck(string) {}
