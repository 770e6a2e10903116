// ============================================================================
// voicebridge - Swedish speech processing
// ============================================================================
//
// Package:     health
// Description: Availability checks for engine binaries and storage backends
// License:     MIT
// ============================================================================

// Package health aggregates availability checks for the speech engines and
// the storage backends behind them.
package health

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"
)

// Status represents the health status of a service
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
	StatusUnknown   Status = "unknown"
)

// CheckResult represents the result of a health check
type CheckResult struct {
	Name      string                 `json:"name"`
	Status    Status                 `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Duration  time.Duration          `json:"duration"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Checker is an interface for health checks
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

type namedCheck struct {
	name string
	fn   func(ctx context.Context) CheckResult
}

// NewChecker creates a named checker from a function
func NewChecker(name string, fn func(ctx context.Context) CheckResult) Checker {
	return &namedCheck{name: name, fn: fn}
}

func (c *namedCheck) Name() string                          { return c.name }
func (c *namedCheck) Check(ctx context.Context) CheckResult { return c.fn(ctx) }

// Registry runs a set of named checks. Registering a name twice replaces
// the earlier checker.
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	service  string
	version  string
	startAt  time.Time
}

// NewRegistry creates a new health check registry
func NewRegistry(service, version string) *Registry {
	return &Registry{
		checkers: make(map[string]Checker),
		service:  service,
		version:  version,
		startAt:  time.Now(),
	}
}

// Register adds a checker to the registry
func (r *Registry) Register(checker Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[checker.Name()] = checker
}

// RegisterFunc adds a check function under name
func (r *Registry) RegisterFunc(name string, fn func(ctx context.Context) CheckResult) {
	r.Register(NewChecker(name, fn))
}

// Check runs all checks concurrently. A check still running when ctx is done
// is reported unhealthy with a timeout message.
func (r *Registry) Check(ctx context.Context) *Report {
	r.mu.RLock()
	checkers := make([]Checker, 0, len(r.checkers))
	for _, c := range r.checkers {
		checkers = append(checkers, c)
	}
	r.mu.RUnlock()

	report := &Report{
		Service:   r.service,
		Version:   r.version,
		Uptime:    time.Since(r.startAt),
		Timestamp: time.Now(),
		Checks:    make([]CheckResult, 0, len(checkers)),
	}

	type keyed struct {
		key    string
		result CheckResult
	}
	// buffered so late checks never block after a timeout
	results := make(chan keyed, len(checkers))
	for _, checker := range checkers {
		go func(c Checker) {
			start := time.Now()
			result := c.Check(ctx)
			result.Duration = time.Since(start)
			result.Timestamp = time.Now()
			if result.Name == "" {
				result.Name = c.Name()
			}
			results <- keyed{c.Name(), result}
		}(checker)
	}

	done := make(map[string]bool, len(checkers))
collect:
	for len(done) < len(checkers) {
		select {
		case k := <-results:
			done[k.key] = true
			report.Checks = append(report.Checks, k.result)
		case <-ctx.Done():
			break collect
		}
	}
	for _, c := range checkers {
		if !done[c.Name()] {
			report.Checks = append(report.Checks, CheckResult{
				Name:      c.Name(),
				Status:    StatusUnhealthy,
				Message:   "check timed out",
				Duration:  time.Since(report.Timestamp),
				Timestamp: time.Now(),
			})
		}
	}

	sort.Slice(report.Checks, func(i, j int) bool {
		return report.Checks[i].Name < report.Checks[j].Name
	})
	report.Status = overall(report.Checks)
	return report
}

// CheckWithTimeout runs all checks bounded by timeout. A non-positive
// timeout only uses ctx.
func (r *Registry) CheckWithTimeout(ctx context.Context, timeout time.Duration) *Report {
	if timeout <= 0 {
		return r.Check(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return r.Check(ctx)
}

func overall(checks []CheckResult) Status {
	status := StatusHealthy
	for _, c := range checks {
		switch c.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// Report represents the overall health report
type Report struct {
	Service   string        `json:"service"`
	Version   string        `json:"version"`
	Status    Status        `json:"status"`
	Uptime    time.Duration `json:"uptime"`
	Timestamp time.Time     `json:"timestamp"`
	Checks    []CheckResult `json:"checks"`
}

// String summarizes the report on one line, naming every check that is not healthy
func (r *Report) String() string {
	s := fmt.Sprintf("%s %s %s (%d checks)", r.Service, r.Version, r.Status, len(r.Checks))

	var failing []string
	for _, c := range r.Checks {
		if c.Status != StatusHealthy {
			failing = append(failing, fmt.Sprintf("%s %s", c.Name, c.Status))
		}
	}
	if len(failing) > 0 {
		s += ": " + strings.Join(failing, ", ")
	}
	return s
}

// BinaryCheck reports whether an external program is on PATH. A missing
// required binary is unhealthy, a missing optional one only degrades.
func BinaryCheck(name, binary string, required bool) Checker {
	return NewChecker(name, func(ctx context.Context) CheckResult {
		result := CheckResult{
			Name:    name,
			Details: map[string]interface{}{"binary": binary},
		}

		path, err := exec.LookPath(binary)
		if err != nil {
			result.Status = StatusDegraded
			if required {
				result.Status = StatusUnhealthy
			}
			result.Message = fmt.Sprintf("%s not found in PATH", binary)
			return result
		}

		result.Status = StatusHealthy
		result.Message = "available"
		result.Details["path"] = path
		return result
	})
}

// PingCheck wraps a connectivity check such as a redis or sqlite ping
func PingCheck(name string, ping func(ctx context.Context) error) Checker {
	return NewChecker(name, func(ctx context.Context) CheckResult {
		if err := ping(ctx); err != nil {
			return CheckResult{Name: name, Status: StatusUnhealthy, Message: err.Error()}
		}
		return CheckResult{Name: name, Status: StatusHealthy, Message: "reachable"}
	})
}

// AlwaysHealthy returns a checker that always reports healthy
func AlwaysHealthy(name string) Checker {
	return NewChecker(name, func(ctx context.Context) CheckResult {
		return CheckResult{Name: name, Status: StatusHealthy, Message: "serving"}
	})
}
