package health

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/heroes-chatbot/orchestrator/internal/circuitbreaker"
)

const degradedLatency = 100 * time.Millisecond

// RedisChecker probes the session store
type RedisChecker struct {
	wrapper *circuitbreaker.RedisWrapper
	logger  *zap.Logger
	timeout time.Duration
}

// NewRedisChecker creates a checker for the session Redis
func NewRedisChecker(wrapper *circuitbreaker.RedisWrapper, logger *zap.Logger) *RedisChecker {
	return &RedisChecker{wrapper: wrapper, logger: logger, timeout: 5 * time.Second}
}

func (r *RedisChecker) Name() string           { return "redis" }
func (r *RedisChecker) IsCritical() bool       { return true }
func (r *RedisChecker) Timeout() time.Duration { return r.timeout }

func (r *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Component: "redis", Critical: true, Timestamp: start}

	if r.wrapper.IsCircuitBreakerOpen() {
		result.Status = StatusUnhealthy
		result.Error = "circuit breaker open"
		result.Message = "Redis circuit breaker is open"
		result.Duration = time.Since(start)
		return result
	}

	err := r.wrapper.Ping(ctx).Err()
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = "Redis ping failed"
		return result
	}

	if result.Duration > degradedLatency {
		result.Status = StatusDegraded
		result.Message = "Redis responding but with high latency"
	} else {
		result.Status = StatusHealthy
		result.Message = "Redis healthy"
	}
	result.Details = map[string]interface{}{"latency_ms": result.Duration.Milliseconds()}
	return result
}

// Pinger is anything that can verify its backing connection
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreChecker probes the historical snapshot database
type StoreChecker struct {
	store   Pinger
	logger  *zap.Logger
	timeout time.Duration
}

// NewStoreChecker creates a checker for the historical store
func NewStoreChecker(store Pinger, logger *zap.Logger) *StoreChecker {
	return &StoreChecker{store: store, logger: logger, timeout: 5 * time.Second}
}

func (s *StoreChecker) Name() string           { return "historical_store" }
func (s *StoreChecker) IsCritical() bool       { return false }
func (s *StoreChecker) Timeout() time.Duration { return s.timeout }

func (s *StoreChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Component: "historical_store", Critical: false, Timestamp: start}

	err := s.store.Ping(ctx)
	result.Duration = time.Since(start)
	if err != nil {
		// data was loaded at startup, so a lost connection degrades
		// rather than fails the service
		result.Status = StatusDegraded
		result.Error = err.Error()
		result.Message = "Historical database unreachable, serving cached data"
		return result
	}
	result.Status = StatusHealthy
	result.Message = "Historical store healthy"
	return result
}

// HTTPServiceChecker probes an upstream HTTP dependency
type HTTPServiceChecker struct {
	name     string
	url      string
	critical bool
	breaker  func() bool
	client   *http.Client
	logger   *zap.Logger
	timeout  time.Duration
}

// NewHTTPServiceChecker creates a checker hitting the given URL. The
// breaker func may be nil when no circuit breaker guards the service.
func NewHTTPServiceChecker(name, url string, critical bool, breaker func() bool, logger *zap.Logger) *HTTPServiceChecker {
	timeout := 5 * time.Second
	return &HTTPServiceChecker{
		name:     name,
		url:      url,
		critical: critical,
		breaker:  breaker,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
		timeout:  timeout,
	}
}

func (h *HTTPServiceChecker) Name() string           { return h.name }
func (h *HTTPServiceChecker) IsCritical() bool       { return h.critical }
func (h *HTTPServiceChecker) Timeout() time.Duration { return h.timeout }

func (h *HTTPServiceChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Component: h.name, Critical: h.critical, Timestamp: start}

	if h.breaker != nil && h.breaker() {
		result.Status = StatusUnhealthy
		result.Error = "circuit breaker open"
		result.Message = h.name + " circuit breaker is open"
		result.Duration = time.Since(start)
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result
	}

	resp, err := h.client.Do(req)
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = h.name + " unreachable"
		return result
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		result.Status = StatusUnhealthy
		result.Message = h.name + " returning server errors"
	case result.Duration > degradedLatency:
		result.Status = StatusDegraded
		result.Message = h.name + " responding but with high latency"
	default:
		result.Status = StatusHealthy
		result.Message = h.name + " healthy"
	}
	result.Details = map[string]interface{}{
		"status_code": resp.StatusCode,
		"latency_ms":  result.Duration.Milliseconds(),
	}
	return result
}
