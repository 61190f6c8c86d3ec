// Package health reports whether the intake server and its durable store
// are usable.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"
)

// Status represents the health status of a service.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult represents the result of a single health check.
type CheckResult struct {
	Status   Status        `json:"status"`
	Duration time.Duration `json:"duration_ms"`
	Error    string        `json:"error,omitempty"`
	Details  any           `json:"details,omitempty"`
}

// HealthStatus represents the overall health status.
type HealthStatus struct {
	Status    Status                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

// Check defines a single health check.
type Check struct {
	Name     string
	Check    func(ctx context.Context) error
	Timeout  time.Duration
	Critical bool // If true, failure makes overall status unhealthy
}

// Checker manages health checks for the application.
type Checker struct {
	checks  []Check
	version string
	mu      sync.RWMutex
}

// NewChecker creates a new health checker.
func NewChecker() *Checker {
	return &Checker{
		checks: make([]Check, 0),
	}
}

// SetVersion sets the application version shown in health responses.
func (hc *Checker) SetVersion(version string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.version = version
}

// AddCheck adds a health check.
func (hc *Checker) AddCheck(name string, check func(context.Context) error, timeout time.Duration) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks = append(hc.checks, Check{
		Name:     name,
		Check:    check,
		Timeout:  timeout,
		Critical: false,
	})
}

// AddCriticalCheck adds a critical health check.
// If a critical check fails, the overall status is unhealthy.
func (hc *Checker) AddCriticalCheck(name string, check func(context.Context) error, timeout time.Duration) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks = append(hc.checks, Check{
		Name:     name,
		Check:    check,
		Timeout:  timeout,
		Critical: true,
	})
}

// Check runs all health checks and returns the overall status.
func (hc *Checker) Check(ctx context.Context) HealthStatus {
	hc.mu.RLock()
	checks := make([]Check, len(hc.checks))
	copy(checks, hc.checks)
	version := hc.version
	hc.mu.RUnlock()

	status := HealthStatus{
		Status:    StatusHealthy,
		Checks:    make(map[string]CheckResult),
		Timestamp: time.Now(),
		Version:   version,
	}

	// Run checks concurrently
	type checkResult struct {
		name     string
		result   CheckResult
		critical bool
	}

	results := make(chan checkResult, len(checks))
	var wg sync.WaitGroup

	for _, c := range checks {
		wg.Add(1)
		go func(check Check) {
			defer wg.Done()

			timeout := check.Timeout
			if timeout == 0 {
				timeout = 5 * time.Second
			}

			start := time.Now()
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			err := check.Check(checkCtx)
			duration := time.Since(start)

			result := CheckResult{
				Status:   StatusHealthy,
				Duration: duration / time.Millisecond,
			}

			if err != nil {
				result.Status = StatusUnhealthy
				result.Error = err.Error()
			}

			results <- checkResult{
				name:     check.Name,
				result:   result,
				critical: check.Critical,
			}
		}(c)
	}

	// Wait and close results channel
	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect results
	for r := range results {
		status.Checks[r.name] = r.result

		if r.result.Status != StatusHealthy {
			if r.critical {
				status.Status = StatusUnhealthy
			} else if status.Status == StatusHealthy {
				status.Status = StatusDegraded
			}
		}
	}

	return status
}

// LivenessHandler returns an HTTP handler for liveness probes.
// Returns 200 if the process is running.
func (hc *Checker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "alive",
			"timestamp": time.Now(),
		})
	})
}

// ReadinessHandler returns an HTTP handler for readiness probes.
// Returns 200 if all critical checks pass, 503 otherwise.
func (hc *Checker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		status := hc.Check(ctx)

		w.Header().Set("Content-Type", "application/json")

		if status.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		json.NewEncoder(w).Encode(status)
	})
}

// Pinger is implemented by durable stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreCheck reports whether the durable store answers.
func StoreCheck(store Pinger) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := store.Ping(ctx); err != nil {
			return fmt.Errorf("store ping: %w", err)
		}
		return nil
	}
}

// SessionCapacityCheck fails once the number of live sessions reaches max.
// A max of zero disables the check.
func SessionCapacityCheck(count func() int, max int) func(context.Context) error {
	return func(ctx context.Context) error {
		current := count()
		if max > 0 && current >= max {
			return &HealthError{
				Message: "live sessions at capacity",
				Details: map[string]any{
					"current": current,
					"max":     max,
				},
			}
		}
		return nil
	}
}

// MemoryCheck fails when the heap in use exceeds maxBytes.
func MemoryCheck(maxBytes uint64) func(context.Context) error {
	return func(ctx context.Context) error {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		if ms.HeapInuse > maxBytes {
			return &HealthError{
				Message: "heap above limit",
				Details: map[string]any{
					"heap_inuse": ms.HeapInuse,
					"max":        maxBytes,
				},
			}
		}
		return nil
	}
}

// HealthError represents a health check error with details.
type HealthError struct {
	Message string
	Details map[string]any
}

func (e *HealthError) Error() string {
	return e.Message
}

// DefaultChecker returns a checker whose critical check is the durable
// store ping.
func DefaultChecker(version string, store Pinger) *Checker {
	hc := NewChecker()
	hc.SetVersion(version)
	if store != nil {
		hc.AddCriticalCheck("store", StoreCheck(store), 2*time.Second)
	}
	return hc
}
