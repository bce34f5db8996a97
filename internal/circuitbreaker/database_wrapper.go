package circuitbreaker

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// DatabaseWrapper wraps an sqlx.DB with a circuit breaker. The historical
// store only reads at startup, but health probes keep flowing through the
// breaker for the lifetime of the process.
type DatabaseWrapper struct {
	db     *sqlx.DB
	cb     *CircuitBreaker
	logger *zap.Logger
}

// NewDatabaseWrapper creates a database wrapper with circuit breaker
func NewDatabaseWrapper(db *sqlx.DB, logger *zap.Logger) *DatabaseWrapper {
	config := GetDatabaseConfig().ToConfig()
	cb := NewCircuitBreaker("database", config, logger)
	GlobalMetricsCollector.RegisterCircuitBreaker("database", "historical-store", cb)

	return &DatabaseWrapper{db: db, cb: cb, logger: logger}
}

// PingContext wraps DB ping with circuit breaker
func (dw *DatabaseWrapper) PingContext(ctx context.Context) error {
	err := dw.cb.Execute(ctx, func() error {
		return dw.db.PingContext(ctx)
	})
	GlobalMetricsCollector.RecordRequest("database", "historical-store", dw.cb.State(), err == nil)
	return err
}

// SelectContext wraps sqlx SelectContext with circuit breaker
func (dw *DatabaseWrapper) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	err := dw.cb.Execute(ctx, func() error {
		return dw.db.SelectContext(ctx, dest, query, args...)
	})
	GlobalMetricsCollector.RecordRequest("database", "historical-store", dw.cb.State(), err == nil)
	return err
}

// IsCircuitBreakerOpen reports whether the breaker currently rejects requests
func (dw *DatabaseWrapper) IsCircuitBreakerOpen() bool {
	return dw.cb.State() == StateOpen
}

// DB returns the wrapped sqlx handle
func (dw *DatabaseWrapper) DB() *sqlx.DB { return dw.db }

// Close closes the underlying database handle
func (dw *DatabaseWrapper) Close() error { return dw.db.Close() }
