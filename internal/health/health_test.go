package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeChecker struct {
	name     string
	critical bool
	status   CheckStatus
}

func (f fakeChecker) Name() string           { return f.name }
func (f fakeChecker) IsCritical() bool       { return f.critical }
func (f fakeChecker) Timeout() time.Duration { return time.Second }
func (f fakeChecker) Check(ctx context.Context) CheckResult {
	return CheckResult{Component: f.name, Critical: f.critical, Status: f.status, Timestamp: time.Now()}
}

func TestOverallHealthAggregation(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t))
	require.NoError(t, m.RegisterChecker(fakeChecker{name: "a", critical: true, status: StatusHealthy}))
	require.NoError(t, m.RegisterChecker(fakeChecker{name: "b", critical: false, status: StatusHealthy}))

	overall := m.GetOverallHealth(context.Background())
	assert.Equal(t, StatusHealthy, overall.Status)
	assert.True(t, overall.Ready)
	assert.True(t, overall.Live)
}

func TestCriticalFailureBlocksReadiness(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t))
	require.NoError(t, m.RegisterChecker(fakeChecker{name: "redis", critical: true, status: StatusUnhealthy}))

	overall := m.GetOverallHealth(context.Background())
	assert.Equal(t, StatusUnhealthy, overall.Status)
	assert.False(t, overall.Ready)
	assert.True(t, overall.Live)
}

func TestNonCriticalFailureDegrades(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t))
	require.NoError(t, m.RegisterChecker(fakeChecker{name: "store", critical: false, status: StatusUnhealthy}))
	require.NoError(t, m.RegisterChecker(fakeChecker{name: "redis", critical: true, status: StatusHealthy}))

	overall := m.GetOverallHealth(context.Background())
	assert.Equal(t, StatusDegraded, overall.Status)
	assert.True(t, overall.Ready)
}

func TestDuplicateCheckerRejected(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t))
	require.NoError(t, m.RegisterChecker(fakeChecker{name: "a"}))
	assert.Error(t, m.RegisterChecker(fakeChecker{name: "a"}))
}

func TestHTTPEndpoints(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t))
	require.NoError(t, m.RegisterChecker(fakeChecker{name: "a", critical: true, status: StatusHealthy}))
	handler := NewHTTPHandler(m, zaptest.NewLogger(t))
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	for _, path := range []string{"/health", "/health/ready", "/health/live", "/health/detailed"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"), path)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHTTPUnhealthyReturns503(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t))
	require.NoError(t, m.RegisterChecker(fakeChecker{name: "redis", critical: true, status: StatusUnhealthy}))
	handler := NewHTTPHandler(m, zaptest.NewLogger(t))
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func TestStoreCheckerDegradesOnFailure(t *testing.T) {
	checker := NewStoreChecker(fakePinger{err: errors.New("connection lost")}, zaptest.NewLogger(t))
	result := checker.Check(context.Background())
	assert.Equal(t, StatusDegraded, result.Status)
	assert.False(t, result.Critical)
}

func TestHTTPServiceChecker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewHTTPServiceChecker("llm_service", server.URL+"/health", false, nil, zaptest.NewLogger(t))
	result := checker.Check(context.Background())
	assert.NotEqual(t, StatusUnhealthy, result.Status)

	open := func() bool { return true }
	tripped := NewHTTPServiceChecker("llm_service", server.URL, false, open, zaptest.NewLogger(t))
	result = tripped.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.Equal(t, "circuit breaker open", result.Error)
}
