package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/heroes-chatbot/orchestrator/internal/personas"
	"github.com/heroes-chatbot/orchestrator/internal/symbols"
)

func newRouter(t *testing.T) *Router {
	t.Helper()
	logger := zaptest.NewLogger(t)
	return New(symbols.NewResolver(logger), logger)
}

func TestRouteIntentLadder(t *testing.T) {
	r := newRouter(t)

	tests := []struct {
		name    string
		message string
		want    Intent
	}{
		{"greeting", "안녕하세요!", IntentSmalltalk},
		{"who are you", "너는 누구야?", IntentSmalltalk},
		{"empty", "", IntentSmalltalk},

		{"portfolio history", "버핏 포트폴리오에 삼성전자 있어?", IntentHistoricalData},
		{"13f", "최근 13F 보유 종목 알려줘", IntentHistoricalData},
		{"past without speech", "예전 보유 비중이 어떻게 변했어?", IntentHistoricalData},

		{"macro rates", "요즘 기준금리랑 물가 어때?", IntentMacroOutlook},
		{"macro fx", "환율이 경제에 미치는 영향은?", IntentMacroOutlook},

		{"price question", "삼성전자 현재가 알려줘", IntentCompanyMetrics},
		{"per question", "005930 PER 얼마야?", IntentCompanyMetrics},

		{"analysis verbs keep analysis", "삼성전자 주가 전망 어때?", IntentCompanyAnalysis},

		{"philosophy via mentor name", "버핏의 투자 철학 알려줘", IntentPhilosophy},
		{"philosophy rag", "주주서한 근거로 안전마진 설명해줘", IntentPhilosophy},

		{"comparison", "삼성전자 vs 카카오 비교해줘", IntentCompareCompanies},

		{"research", "애널리스트 리포트 요약해줘", IntentResearchAnalysis},
		{"news", "오늘 뉴스 내용 정리해줘", IntentNewsAnalysis},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := r.Route(tt.message, "buffett")
			assert.Equal(t, tt.want, q.Intent, "message=%q", tt.message)
		})
	}
}

func TestRouteMetricsWinsOverPhilosophyPhrasing(t *testing.T) {
	r := newRouter(t)

	// "알려줘" alone suggests philosophy, but with a symbol and a metric
	// keyword the query is a plain metric lookup.
	q := r.Route("삼성전자 PBR 알려줘", "buffett")
	assert.Equal(t, IntentCompanyMetrics, q.Intent)
	assert.Equal(t, []string{"005930"}, q.Symbols)
}

func TestRouteComparisonNeedsTwoSymbols(t *testing.T) {
	r := newRouter(t)

	q := r.Route("삼성전자랑 뭐가 차이야?", "lynch")
	assert.NotEqual(t, IntentCompareCompanies, q.Intent)

	q = r.Route("삼성전자 기아 중에 뭐가 나아?", "lynch")
	assert.Equal(t, IntentCompareCompanies, q.Intent)
	assert.Len(t, q.Symbols, 2)
}

func TestRouteMacroRegions(t *testing.T) {
	r := newRouter(t)

	q := r.Route("미국이랑 한국 경제지표 비교해줘", "buffett")
	assert.Equal(t, IntentMacroOutlook, q.Intent)
	assert.ElementsMatch(t, []string{"KR", "US"}, q.MacroRegions)

	q = r.Route("기준금리 어때?", "buffett")
	assert.Equal(t, IntentMacroOutlook, q.Intent)
	assert.Equal(t, []string{"KR"}, q.MacroRegions)
	assert.Equal(t, "KR", q.Region)
}

func TestRouteHistoricalBeatsMacro(t *testing.T) {
	r := newRouter(t)

	q := r.Route("과거 물가 높던 시기에 포트폴리오 어땠어?", "buffett")
	assert.Equal(t, IntentHistoricalData, q.Intent)
}

func TestRoutePersonaNormalized(t *testing.T) {
	r := newRouter(t)

	q := r.Route("안녕", "cathie_wood")
	assert.Equal(t, personas.Wood, q.Persona)

	q = r.Route("안녕", "")
	assert.Equal(t, personas.Buffett, q.Persona)
}

func TestRouteMentorEconomicOpinion(t *testing.T) {
	r := newRouter(t)

	q := r.Route("버핏의 시장 관점이 궁금해", "buffett")
	assert.Equal(t, IntentPhilosophy, q.Intent)
}

func TestIntentPredicates(t *testing.T) {
	assert.True(t, IntentPhilosophy.NeedsRetrieval())
	assert.False(t, IntentCompanyMetrics.NeedsRetrieval())
	assert.True(t, IntentMacroOutlook.NeedsHistorical())
	assert.True(t, IntentHistoricalData.NeedsHistorical())
	assert.False(t, IntentPhilosophy.NeedsHistorical())
	assert.True(t, IntentCompareCompanies.NeedsLiveQuotes())
	assert.False(t, IntentSmalltalk.NeedsLiveQuotes())
}
