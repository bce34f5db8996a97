package historical

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/heroes-chatbot/orchestrator/internal/circuitbreaker"
	"github.com/heroes-chatbot/orchestrator/internal/config"
	"github.com/heroes-chatbot/orchestrator/internal/metrics"
	"github.com/heroes-chatbot/orchestrator/internal/personas"
)

const (
	portfolioQuery = `SELECT guru_id, as_of, symbols, summary, source FROM portfolio_snapshots ORDER BY as_of DESC`
	macroQuery     = `SELECT region, period, summary, base_rate, cpi_yoy, gdp_growth, fx_krw_usd, unemployment FROM macro_snapshots ORDER BY period DESC`
)

// Store answers portfolio and macro queries from an in-memory cache
type Store struct {
	db     *circuitbreaker.DatabaseWrapper
	logger *zap.Logger

	portfolio []PortfolioSnapshot
	macro     map[string][]MacroRecord
	loaded    bool
}

// NewStore opens and pings the configured database. Callers run Load
// separately so a missing snapshot table degrades instead of failing
// construction.
func NewStore(cfg config.HistoricalConfig, logger *zap.Logger) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite3"
	}
	dsn := cfg.DatabaseURL
	if driver == "sqlite3" {
		dsn = cfg.SQLitePath
		if dsn == "" {
			dsn = "./data/historical.db"
		}
	}

	rawDB, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open historical database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		rawDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	db := circuitbreaker.NewDatabaseWrapper(rawDB, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		rawDB.Close()
		return nil, fmt.Errorf("ping historical database: %w", err)
	}

	return &Store{db: db, logger: logger, macro: make(map[string][]MacroRecord)}, nil
}

// NewStoreFromDB wraps an already-open connection, mainly for tests
func NewStoreFromDB(db *sqlx.DB, logger *zap.Logger) *Store {
	return &Store{
		db:     circuitbreaker.NewDatabaseWrapper(db, logger),
		logger: logger,
		macro:  make(map[string][]MacroRecord),
	}
}

// Load reads every snapshot row into memory. The cache is never mutated
// afterwards, so readers need no synchronization.
func (s *Store) Load(ctx context.Context) error {
	var portfolio []PortfolioSnapshot
	if err := s.db.SelectContext(ctx, &portfolio, portfolioQuery); err != nil {
		return fmt.Errorf("load portfolio snapshots: %w", err)
	}

	var macroRows []MacroRecord
	if err := s.db.SelectContext(ctx, &macroRows, macroQuery); err != nil {
		return fmt.Errorf("load macro snapshots: %w", err)
	}

	macro := make(map[string][]MacroRecord)
	for _, row := range macroRows {
		macro[row.Region] = append(macro[row.Region], row)
	}
	for region := range macro {
		rows := macro[region]
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Period > rows[j].Period })
	}

	s.portfolio = portfolio
	s.macro = macro
	s.loaded = true
	s.logger.Info("Historical cache loaded",
		zap.Int("portfolio_rows", len(portfolio)),
		zap.Int("macro_rows", len(macroRows)),
		zap.Int("macro_regions", len(macro)))
	return nil
}

// Close releases the underlying connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is still alive
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// PortfolioHistory returns the most recent snapshots for a persona.
// With a symbol, only snapshots holding it are considered.
func (s *Store) PortfolioHistory(persona personas.ID, symbol string, topK int) []PortfolioSnapshot {
	metrics.HistoricalLookups.WithLabelValues("portfolio").Inc()

	var out []PortfolioSnapshot
	for _, snap := range s.portfolio {
		if personas.Normalize(snap.GuruID) != persona {
			continue
		}
		if symbol != "" && !snap.HoldsSymbol(symbol) {
			continue
		}
		out = append(out, snap)
		if topK > 0 && len(out) >= topK {
			break
		}
	}
	s.logger.Debug("Portfolio history lookup",
		zap.String("persona", string(persona)),
		zap.String("symbol", symbol),
		zap.Int("rows", len(out)))
	return out
}

// MacroRegime returns the most recent quarters for a region.
// lastN <= 0 returns every cached quarter.
func (s *Store) MacroRegime(region string, lastN int) []MacroRecord {
	metrics.HistoricalLookups.WithLabelValues("macro").Inc()

	rows := s.macro[region]
	if lastN > 0 && len(rows) > lastN {
		rows = rows[:lastN]
	}
	out := make([]MacroRecord, len(rows))
	copy(out, rows)
	s.logger.Debug("Macro regime lookup",
		zap.String("region", region),
		zap.Int("rows", len(out)))
	return out
}

// CoverageRecord synthesizes a summary row describing the span of macro
// data held for a region. Returns nil when no rows exist.
func CoverageRecord(region string, rows []MacroRecord) *MacroRecord {
	periods := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.Period != "" {
			periods = append(periods, r.Period)
		}
	}
	if len(periods) == 0 {
		return nil
	}
	// rows arrive newest first
	latest := periods[0]
	earliest := periods[len(periods)-1]
	return &MacroRecord{
		Region:     region,
		Period:     "데이터 커버리지",
		Summary:    fmt.Sprintf("%s 데이터 커버리지: %s ~ %s (총 %d개 분기)", RegionLabel(region), earliest, latest, len(periods)),
		RecordType: "coverage_summary",
	}
}
