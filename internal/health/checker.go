// Package health provides liveness and readiness probes for serve mode.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"flinkctl/internal/jobmanager"
)

// OverviewSource reports the cluster overview. Readiness depends on it.
type OverviewSource interface {
	Overview(ctx context.Context) (*jobmanager.Overview, error)
}

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// CheckResult contains the result of a health check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response is the health check response.
type Response struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Checker performs health checks against the job manager.
type Checker struct {
	jobManager OverviewSource
	timeout    time.Duration
	cacheTTL   time.Duration

	mu           sync.RWMutex
	lastCheck    time.Time
	cachedReady  *Response
	shuttingDown bool
}

// NewChecker creates a new health checker.
func NewChecker(jobManager OverviewSource) *Checker {
	return &Checker{
		jobManager: jobManager,
		timeout:    5 * time.Second,
		cacheTTL:   time.Second,
	}
}

// Liveness reports that the process is up. It never calls the job manager.
func (c *Checker) Liveness(ctx context.Context) *Response {
	return &Response{
		Status: StatusHealthy,
	}
}

// Readiness checks that the job manager answers. A cluster without task
// managers is degraded but still ready, since sessions allocate them on demand.
func (c *Checker) Readiness(ctx context.Context) *Response {
	c.mu.RLock()
	if c.shuttingDown {
		c.mu.RUnlock()
		return &Response{
			Status: StatusUnhealthy,
			Checks: map[string]CheckResult{
				"shutdown": {Status: StatusUnhealthy, Message: "service is shutting down"},
			},
		}
	}

	// Cached briefly so probes do not hammer the job manager
	if c.cachedReady != nil && time.Since(c.lastCheck) < c.cacheTTL {
		cached := c.cachedReady
		c.mu.RUnlock()
		return cached
	}
	c.mu.RUnlock()

	check := c.checkJobManager(ctx)
	response := &Response{
		Status: check.Status,
		Checks: map[string]CheckResult{"jobmanager": check},
	}

	c.mu.Lock()
	c.cachedReady = response
	c.lastCheck = time.Now()
	c.mu.Unlock()

	return response
}

func (c *Checker) checkJobManager(ctx context.Context) CheckResult {
	if c.jobManager == nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "job manager not configured",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ov, err := c.jobManager.Overview(ctx)
	if err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: err.Error(),
		}
	}
	if ov.TaskManagers == 0 {
		return CheckResult{
			Status:  StatusDegraded,
			Message: "no task managers registered",
		}
	}

	return CheckResult{
		Status: StatusHealthy,
		Message: fmt.Sprintf("flink %s, %d task managers, %d/%d slots available",
			ov.FlinkVersion, ov.TaskManagers, ov.SlotsAvailable, ov.SlotsTotal),
	}
}

// IsHealthy returns true if the overall status is healthy.
func (r *Response) IsHealthy() bool {
	return r.Status == StatusHealthy
}

// IsReady returns true unless the overall status is unhealthy.
func (r *Response) IsReady() bool {
	return r.Status != StatusUnhealthy
}

// SetShuttingDown makes readiness fail so load balancers stop sending traffic.
func (c *Checker) SetShuttingDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shuttingDown = true
	c.cachedReady = nil
}
