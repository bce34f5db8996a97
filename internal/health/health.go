// Package health aggregates component probes into liveness and
// readiness signals for the admin endpoints.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CheckStatus represents the result of a health check
type CheckStatus int

const (
	StatusHealthy CheckStatus = iota
	StatusDegraded
	StatusUnhealthy
	StatusUnknown
)

func (s CheckStatus) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the status as its string form
func (s CheckStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// CheckResult contains the outcome of one component probe
type CheckResult struct {
	Status    CheckStatus            `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Duration  time.Duration          `json:"duration"`
	Timestamp time.Time              `json:"timestamp"`
	Component string                 `json:"component"`
	Critical  bool                   `json:"critical"`
}

// Checker probes one component
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
	// IsCritical marks checks whose failure makes the service not ready
	IsCritical() bool
	Timeout() time.Duration
}

// Overall summarizes the service state
type Overall struct {
	Status    CheckStatus   `json:"status"`
	Message   string        `json:"message,omitempty"`
	Ready     bool          `json:"ready"`
	Live      bool          `json:"live"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
}

// Manager runs registered checkers and caches their results
type Manager struct {
	mu          sync.RWMutex
	checkers    map[string]Checker
	lastResults map[string]CheckResult

	checkInterval time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
	logger        *zap.Logger
}

// NewManager creates a health manager with a 30s background interval
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		checkers:      make(map[string]Checker),
		lastResults:   make(map[string]CheckResult),
		checkInterval: 30 * time.Second,
		stopCh:        make(chan struct{}),
		logger:        logger,
	}
}

// RegisterChecker adds a component probe
func (m *Manager) RegisterChecker(checker Checker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := checker.Name()
	if name == "" {
		return fmt.Errorf("checker name cannot be empty")
	}
	if _, exists := m.checkers[name]; exists {
		return fmt.Errorf("checker %s already registered", name)
	}
	m.checkers[name] = checker
	m.logger.Info("Health checker registered",
		zap.String("checker", name),
		zap.Bool("critical", checker.IsCritical()))
	return nil
}

// RunChecks executes every checker and refreshes the result cache
func (m *Manager) RunChecks(ctx context.Context) map[string]CheckResult {
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	results := make(map[string]CheckResult, len(checkers))
	for _, c := range checkers {
		checkCtx, cancel := context.WithTimeout(ctx, c.Timeout())
		result := c.Check(checkCtx)
		cancel()
		results[c.Name()] = result
	}

	m.mu.Lock()
	for name, r := range results {
		m.lastResults[name] = r
	}
	m.mu.Unlock()
	return results
}

// LastResults returns the cached results without running new checks
func (m *Manager) LastResults() map[string]CheckResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]CheckResult, len(m.lastResults))
	for name, r := range m.lastResults {
		out[name] = r
	}
	return out
}

// GetOverallHealth runs all checks and folds them into one status
func (m *Manager) GetOverallHealth(ctx context.Context) Overall {
	start := time.Now()
	results := m.RunChecks(ctx)
	overall := summarize(results)
	overall.Timestamp = start
	overall.Duration = time.Since(start)
	return overall
}

// IsReady reports whether every critical component is functional
func (m *Manager) IsReady(ctx context.Context) bool {
	return m.GetOverallHealth(ctx).Ready
}

// IsLive reports process liveness; a running manager is alive
func (m *Manager) IsLive(ctx context.Context) bool {
	return true
}

// Start begins the background check loop
func (m *Manager) Start() {
	go func() {
		ticker := time.NewTicker(m.checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				m.RunChecks(ctx)
				cancel()
			case <-m.stopCh:
				return
			}
		}
	}()
}

// Stop ends the background loop
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func summarize(results map[string]CheckResult) Overall {
	if len(results) == 0 {
		return Overall{Status: StatusUnknown, Message: "no health checks registered", Ready: false, Live: true}
	}

	criticalFailures := 0
	nonCriticalFailures := 0
	degraded := 0
	for _, r := range results {
		switch r.Status {
		case StatusDegraded:
			degraded++
		case StatusUnhealthy:
			if r.Critical {
				criticalFailures++
			} else {
				nonCriticalFailures++
			}
		}
	}

	switch {
	case criticalFailures > 0:
		return Overall{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("%d critical component(s) failing", criticalFailures),
			Ready:   false,
			Live:    true,
		}
	case degraded > 0 || nonCriticalFailures > 0:
		return Overall{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("%d component(s) degraded or failing", degraded+nonCriticalFailures),
			Ready:   true,
			Live:    true,
		}
	default:
		return Overall{
			Status:  StatusHealthy,
			Message: fmt.Sprintf("all %d components healthy", len(results)),
			Ready:   true,
			Live:    true,
		}
	}
}
