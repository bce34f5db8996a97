package historical

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/heroes-chatbot/orchestrator/internal/personas"
)

func loadedStore(t *testing.T) *Store {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	mock.ExpectQuery("SELECT guru_id, as_of, symbols").WillReturnRows(
		sqlmock.NewRows([]string{"guru_id", "as_of", "symbols", "summary", "source"}).
			AddRow("buffett", "2024-Q2", "AAPL,KO,BAC", "애플 비중 축소", "13F").
			AddRow("buffett", "2024-Q1", "AAPL,KO", "변동 없음", "13F").
			AddRow("buffett", "2023-Q4", "AAPL,OXY", "옥시덴탈 추가 매수", "13F").
			AddRow("lynch", "2024-Q2", "005930.KS", "전자 업종 확대", "fund"))

	mock.ExpectQuery("SELECT region, period, summary").WillReturnRows(
		sqlmock.NewRows([]string{"region", "period", "summary", "base_rate", "cpi_yoy", "gdp_growth", "fx_krw_usd", "unemployment"}).
			AddRow("KR", "2024-Q2", "완만한 둔화", 3.5, 2.7, 2.3, 1350.0, 2.8).
			AddRow("KR", "2024-Q1", "긴축 유지", 3.5, 3.1, 2.0, 1330.0, 2.9).
			AddRow("KR", "2023-Q4", "고금리 지속", 3.5, 3.3, 1.4, 1310.0, 3.0).
			AddRow("US", "2024-Q2", "연착륙 기대", 5.5, 3.0, 2.8, nil, 4.0))

	store := NewStoreFromDB(sqlx.NewDb(mockDB, "sqlmock"), zaptest.NewLogger(t))
	require.NoError(t, store.Load(context.Background()))
	return store
}

func TestFailedLoadLeavesStoreServingEmpty(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	mock.ExpectQuery("SELECT guru_id, as_of, symbols").
		WillReturnError(errSnapshotTableMissing)

	store := NewStoreFromDB(sqlx.NewDb(mockDB, "sqlmock"), zaptest.NewLogger(t))
	require.Error(t, store.Load(context.Background()))

	assert.Empty(t, store.PortfolioHistory(personas.Buffett, "", 5))
	assert.Empty(t, store.MacroRegime("KR", 4))
}

var errSnapshotTableMissing = errors.New("relation \"portfolio_snapshots\" does not exist")

func TestPortfolioHistoryBySymbol(t *testing.T) {
	store := loadedStore(t)

	snaps := store.PortfolioHistory(personas.Buffett, "KO", 5)
	require.Len(t, snaps, 2)
	assert.Equal(t, "2024-Q2", snaps[0].AsOf)
	assert.Equal(t, "2024-Q1", snaps[1].AsOf)
}

func TestPortfolioHistoryWithoutSymbol(t *testing.T) {
	store := loadedStore(t)

	snaps := store.PortfolioHistory(personas.Buffett, "", 10)
	assert.Len(t, snaps, 3)

	limited := store.PortfolioHistory(personas.Buffett, "", 2)
	assert.Len(t, limited, 2)
}

func TestPortfolioHistoryNormalizesPersona(t *testing.T) {
	store := loadedStore(t)

	snaps := store.PortfolioHistory(personas.Normalize("peter_lynch"), "005930", 5)
	require.Len(t, snaps, 1)
	assert.Equal(t, "2024-Q2", snaps[0].AsOf)
}

func TestMacroRegimeLimitsQuarters(t *testing.T) {
	store := loadedStore(t)

	rows := store.MacroRegime("KR", 2)
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-Q2", rows[0].Period)
	assert.Equal(t, "2024-Q1", rows[1].Period)

	all := store.MacroRegime("KR", 0)
	assert.Len(t, all, 3)

	assert.Empty(t, store.MacroRegime("JP", 4))
}

func TestCoverageRecord(t *testing.T) {
	store := loadedStore(t)

	rows := store.MacroRegime("KR", 0)
	cov := CoverageRecord("KR", rows)
	require.NotNil(t, cov)
	assert.Equal(t, "coverage_summary", cov.RecordType)
	assert.Equal(t, "한국 데이터 커버리지: 2023-Q4 ~ 2024-Q2 (총 3개 분기)", cov.Summary)

	assert.Nil(t, CoverageRecord("JP", nil))
}

func TestMacroRecordText(t *testing.T) {
	store := loadedStore(t)

	rows := store.MacroRegime("US", 1)
	require.Len(t, rows, 1)
	text := rows[0].Text()
	assert.Contains(t, text, "[Macro-미국] 2024-Q2 경제지표")
	assert.Contains(t, text, "기준금리(%): 5.50")
	assert.NotContains(t, text, "원/달러 환율")
	assert.Contains(t, text, "요약: 연착륙 기대")
}

func TestPortfolioSnapshotText(t *testing.T) {
	snap := PortfolioSnapshot{AsOf: "2024-Q1", Symbols: "AAPL,KO", Summary: "변동 없음"}
	text := snap.Text()
	assert.Contains(t, text, "[2024-Q1 기준 포트폴리오]")
	assert.Contains(t, text, "AAPL,KO")
	assert.Contains(t, text, "변동 없음")
}
