package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// HealthMonitor runs a set of registered checks and aggregates their results.
type HealthMonitor struct {
	logger *logrus.Logger
	config *HealthConfig
	mu     sync.RWMutex
	checks map[string]HealthCheck
}

// HealthConfig configures health monitoring
type HealthConfig struct {
	Timeout            time.Duration `json:"timeout"`
	EnableDetailedLogs bool          `json:"enable_detailed_logs"`
}

// HealthCheck defines a health check function
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) HealthResult
	Critical() bool
}

// HealthResult represents the result of a health check
type HealthResult struct {
	Status    HealthStatus      `json:"status"`
	Message   string            `json:"message"`
	Duration  time.Duration     `json:"duration"`
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}

// HealthStatus represents the health status
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusUnknown   HealthStatus = "unknown"
)

// SystemStatus is the aggregated outcome of one RunChecks call.
type SystemStatus struct {
	OverallStatus   HealthStatus            `json:"overall_status"`
	CheckResults    map[string]HealthResult `json:"check_results"`
	LastCheck       time.Time               `json:"last_check"`
	CriticalIssues  []string                `json:"critical_issues"`
	TotalChecks     int                     `json:"total_checks"`
	HealthyChecks   int                     `json:"healthy_checks"`
	DegradedChecks  int                     `json:"degraded_checks"`
	UnhealthyChecks int                     `json:"unhealthy_checks"`
}

// BasicHealthCheck adapts a function to HealthCheck. A nil error is
// healthy; an error is unhealthy for critical checks and degraded otherwise.
type BasicHealthCheck struct {
	name      string
	checkFunc func(ctx context.Context) (map[string]string, error)
	critical  bool
}

// NewBasicCheck creates a BasicHealthCheck.
func NewBasicCheck(name string, critical bool, fn func(ctx context.Context) (map[string]string, error)) *BasicHealthCheck {
	return &BasicHealthCheck{name: name, checkFunc: fn, critical: critical}
}

func (c *BasicHealthCheck) Name() string   { return c.name }
func (c *BasicHealthCheck) Critical() bool { return c.critical }

func (c *BasicHealthCheck) Check(ctx context.Context) HealthResult {
	details, err := c.checkFunc(ctx)
	if err == nil {
		return HealthResult{Status: StatusHealthy, Message: "ok", Details: details}
	}
	status := StatusDegraded
	if c.critical {
		status = StatusUnhealthy
	}
	return HealthResult{Status: status, Message: err.Error(), Details: details}
}

// NewHealthMonitor creates a new health monitor
func NewHealthMonitor(config *HealthConfig, logger *logrus.Logger) *HealthMonitor {
	if config == nil {
		config = &HealthConfig{Timeout: 10 * time.Second}
	}

	if logger == nil {
		logger = logrus.New()
	}

	return &HealthMonitor{
		logger: logger,
		config: config,
		checks: make(map[string]HealthCheck),
	}
}

// RegisterCheck registers a new health check
func (hm *HealthMonitor) RegisterCheck(check HealthCheck) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.checks[check.Name()] = check
	hm.logger.WithField("check", check.Name()).Debug("Registered health check")
}

// RunCheck runs a specific health check manually
func (hm *HealthMonitor) RunCheck(ctx context.Context, checkName string) (HealthResult, error) {
	hm.mu.RLock()
	check, exists := hm.checks[checkName]
	hm.mu.RUnlock()

	if !exists {
		return HealthResult{}, fmt.Errorf("health check '%s' not found", checkName)
	}

	return hm.executeCheck(ctx, check), nil
}

// RunChecks executes all registered checks concurrently.
func (hm *HealthMonitor) RunChecks(ctx context.Context) *SystemStatus {
	hm.mu.RLock()
	checks := make(map[string]HealthCheck, len(hm.checks))
	for k, v := range hm.checks {
		checks[k] = v
	}
	hm.mu.RUnlock()

	type namedResult struct {
		name   string
		result HealthResult
	}

	var wg sync.WaitGroup
	resultsChan := make(chan namedResult, len(checks))
	for name, check := range checks {
		wg.Add(1)
		go func(n string, c HealthCheck) {
			defer wg.Done()
			resultsChan <- namedResult{n, hm.executeCheck(ctx, c)}
		}(name, check)
	}
	wg.Wait()
	close(resultsChan)

	status := &SystemStatus{
		CheckResults:   make(map[string]HealthResult, len(checks)),
		CriticalIssues: make([]string, 0),
		LastCheck:      time.Now(),
		TotalChecks:    len(checks),
	}
	for r := range resultsChan {
		status.CheckResults[r.name] = r.result
		switch r.result.Status {
		case StatusHealthy:
			status.HealthyChecks++
		case StatusDegraded:
			status.DegradedChecks++
		default:
			status.UnhealthyChecks++
			if checks[r.name].Critical() {
				status.CriticalIssues = append(status.CriticalIssues, r.name)
			}
		}
	}
	sort.Strings(status.CriticalIssues)
	status.OverallStatus = hm.calculateOverallStatus(status)

	return status
}

// executeCheck executes a single health check
func (hm *HealthMonitor) executeCheck(ctx context.Context, check HealthCheck) HealthResult {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, hm.config.Timeout)
	defer cancel()

	result := check.Check(checkCtx)
	result.Duration = time.Since(start)
	result.Timestamp = time.Now()

	if hm.config.EnableDetailedLogs {
		hm.logger.WithFields(logrus.Fields{
			"check":    check.Name(),
			"status":   result.Status,
			"duration": result.Duration,
			"message":  result.Message,
		}).Debug("Health check completed")
	}

	return result
}

func (hm *HealthMonitor) calculateOverallStatus(s *SystemStatus) HealthStatus {
	switch {
	case s.TotalChecks == 0:
		return StatusUnknown
	case len(s.CriticalIssues) > 0:
		return StatusUnhealthy
	case s.UnhealthyChecks > 0 || s.DegradedChecks > 0:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}
