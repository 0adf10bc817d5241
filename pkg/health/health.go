// Package health runs the aggregate readiness checks served on
// /healthz, alongside /metrics, by the proxy's monitoring HTTP
// surface.
package health

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status is the outcome of a single check.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is what one named check reports.
type CheckResult struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Check is an async probe; it must respect ctx cancellation.
type Check func(ctx context.Context) CheckResult

// Aggregator runs every registered check concurrently and reports the
// combined result.
type Aggregator struct {
	mu     sync.RWMutex
	checks map[string]Check
}

func NewAggregator() *Aggregator {
	return &Aggregator{checks: make(map[string]Check)}
}

// Register adds or replaces a named check.
func (a *Aggregator) Register(name string, check Check) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checks[name] = check
}

// Report is the overall /healthz response body.
type Report struct {
	Status Status        `json:"status"`
	Checks []CheckResult `json:"checks"`
}

func (a *Aggregator) Run(ctx context.Context) Report {
	a.mu.RLock()
	checks := make(map[string]Check, len(a.checks))
	for name, c := range a.checks {
		checks[name] = c
	}
	a.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	i := 0
	for name, check := range checks {
		wg.Add(1)
		go func(idx int, name string, check Check) {
			defer wg.Done()
			results[idx] = check(ctx)
		}(i, name, check)
		i++
	}
	wg.Wait()

	overall := StatusHealthy
	for _, r := range results {
		if r.Status != StatusHealthy {
			overall = StatusUnhealthy
			break
		}
	}

	return Report{Status: overall, Checks: results}
}

// RegisterRoutes wires /healthz and /metrics onto e.
func (a *Aggregator) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error {
		report := a.Run(c.Request().Context())
		code := http.StatusOK
		if report.Status != StatusHealthy {
			code = http.StatusServiceUnavailable
		}
		return c.JSON(code, report)
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// SelfCheck always reports healthy; it exists so /healthz has at
// least one check even before any backend-dependent checks are
// registered.
func SelfCheck(ctx context.Context) CheckResult {
	return CheckResult{Name: "proxy", Status: StatusHealthy}
}

// BackendReachable probes backend with a short TCP dial, reporting
// failure without blocking past timeout.
func BackendReachable(backend string, timeout time.Duration) Check {
	return func(ctx context.Context) CheckResult {
		dialCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var d net.Dialer
		conn, err := d.DialContext(dialCtx, "tcp", backend)
		if err != nil {
			return CheckResult{Name: "backend", Status: StatusUnhealthy, Error: err.Error()}
		}
		conn.Close()
		return CheckResult{Name: "backend", Status: StatusHealthy}
	}
}
