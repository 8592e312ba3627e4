// Package health runs named checks and aggregates them into a report.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// ErrDuplicateCheck is returned when a check name is registered twice.
var ErrDuplicateCheck = errors.New("health check already registered")

// Check is a single named probe. A failing critical check makes the whole
// report unhealthy; a failing non-critical one only degrades it.
type Check struct {
	Name     string
	Critical bool
	Timeout  time.Duration
	Func     func(context.Context) error
}

// Result is the outcome of one check.
type Result struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Critical bool          `json:"critical"`
	Duration time.Duration `json:"duration"`
}

// Report is the outcome of all checks, in name order.
type Report struct {
	Status    Status    `json:"status"`
	Service   string    `json:"service,omitempty"`
	Version   string    `json:"version,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Results   []Result  `json:"results"`
}

// Checker holds the registered checks. Safe for concurrent use.
type Checker struct {
	service string
	version string
	timeout time.Duration

	mu     sync.RWMutex
	checks map[string]Check
}

func NewChecker(service, version string) *Checker {
	return &Checker{
		service: service,
		version: version,
		timeout: 5 * time.Second,
		checks:  make(map[string]Check),
	}
}

// Register adds a check. Checks without a timeout use the checker's.
func (c *Checker) Register(check Check) error {
	if check.Name == "" || check.Func == nil {
		return errors.New("health check needs a name and a func")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.checks[check.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateCheck, check.Name)
	}
	c.checks[check.Name] = check
	return nil
}

// Run executes every check concurrently.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make([]Check, 0, len(c.checks))
	for _, ch := range c.checks {
		checks = append(checks, ch)
	}
	c.mu.RUnlock()
	sort.Slice(checks, func(i, j int) bool { return checks[i].Name < checks[j].Name })

	results := make([]Result, len(checks))
	var wg sync.WaitGroup
	for i, ch := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.run(ctx, ch)
		}()
	}
	wg.Wait()

	return Report{
		Status:    overall(results),
		Service:   c.service,
		Version:   c.version,
		Timestamp: time.Now().UTC(),
		Results:   results,
	}
}

func (c *Checker) run(ctx context.Context, ch Check) (res Result) {
	timeout := ch.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	res = Result{Name: ch.Name, Critical: ch.Critical, Status: StatusHealthy}
	defer func() {
		if r := recover(); r != nil {
			res.Status = StatusUnhealthy
			res.Error = fmt.Sprintf("panic: %v", r)
		}
		res.Duration = time.Since(start)
	}()

	if err := ch.Func(ctx); err != nil {
		res.Status = StatusUnhealthy
		res.Error = err.Error()
	}
	return res
}

func overall(results []Result) Status {
	status := StatusHealthy
	for _, r := range results {
		if r.Status == StatusHealthy {
			continue
		}
		if r.Critical {
			return StatusUnhealthy
		}
		status = StatusDegraded
	}
	return status
}

// ServeHTTP writes the report as JSON, with 503 when unhealthy.
func (c *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := c.Run(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if report.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(report)
}
